package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Snapshot is the serializable representation of a trained chain,
// sufficient to exactly reconstruct its state. Elements appear once in
// Vocabulary, in first-seen order; contexts and outcomes reference them
// by index.
type Snapshot[T comparable] struct {
	Order        int               `json:"order"`
	WildcardDims []int             `json:"wildcard_dims"`
	Vocabulary   []T               `json:"vocabulary"`
	Contexts     []SnapshotContext `json:"contexts"`
}

// SnapshotContext is one trained context window and its outcome weights.
type SnapshotContext struct {
	Slots    []int             `json:"slots"`
	Outcomes []SnapshotOutcome `json:"outcomes"`
}

// SnapshotOutcome is a single (element, accumulated weight) bucket.
type SnapshotOutcome struct {
	Element int    `json:"element"`
	Weight  uint64 `json:"weight"`
}

func parseIDs(key string) ([]int, error) {
	fields := strings.Fields(key)
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("malformed context key %q: %w", key, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// Snapshot captures the chain's full trained state. Contexts are emitted
// in a canonical order (sorted by slot ids) so that equal chains produce
// equal snapshots.
func (c *Chain[T]) Snapshot() *Snapshot[T] {
	s := &Snapshot[T]{
		Order:        c.order,
		WildcardDims: c.WildcardDims(),
		Vocabulary:   make([]T, len(c.elems)),
		Contexts:     make([]SnapshotContext, 0, len(c.contexts)),
	}
	copy(s.Vocabulary, c.elems)

	for key, die := range c.contexts {
		// Keys are produced by appendIDs, so parsing cannot fail here.
		slots, _ := parseIDs(key)
		outcomes := make([]SnapshotOutcome, die.Len())
		for i, elem := range die.items {
			outcomes[i] = SnapshotOutcome{Element: c.vocab[elem], Weight: die.weightAt(i)}
		}
		s.Contexts = append(s.Contexts, SnapshotContext{Slots: slots, Outcomes: outcomes})
	}

	sort.Slice(s.Contexts, func(a, b int) bool {
		sa, sb := s.Contexts[a].Slots, s.Contexts[b].Slots
		for i := range sa {
			if sa[i] != sb[i] {
				return sa[i] < sb[i]
			}
		}
		return false
	})
	return s
}

// Restore builds a fresh chain from a snapshot.
func Restore[T comparable](s *Snapshot[T]) (*Chain[T], error) {
	c, err := New[T](s.Order, s.WildcardDims)
	if err != nil {
		return nil, err
	}
	if err := c.merge(s); err != nil {
		return nil, err
	}
	return c, nil
}

// Export writes the chain's snapshot as indented JSON.
func (c *Chain[T]) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c.Snapshot())
}

// Import reads a JSON snapshot and merges its data into the chain: bucket
// weights are added, not overwritten. The snapshot's order and wildcard
// dimensions must match the chain's.
func (c *Chain[T]) Import(r io.Reader) error {
	var s Snapshot[T]
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("failed to decode json snapshot: %w", err)
	}
	if s.Order != c.order {
		return fmt.Errorf("%w: snapshot order %d does not match chain order %d", ErrInvalidConfiguration, s.Order, c.order)
	}
	if !equalDims(s.WildcardDims, c.dims) {
		return fmt.Errorf("%w: snapshot wildcard dimensions %v do not match chain dimensions %v", ErrInvalidConfiguration, s.WildcardDims, c.dims)
	}
	return c.merge(&s)
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int(nil), a...)
	sort.Ints(as)
	for i, d := range as {
		if d != b[i] {
			return false
		}
	}
	return true
}

func (c *Chain[T]) merge(s *Snapshot[T]) error {
	view := make([]T, c.order)
	for _, sc := range s.Contexts {
		if len(sc.Slots) != c.order {
			return fmt.Errorf("snapshot consistency error: context has %d slots, chain order is %d", len(sc.Slots), c.order)
		}
		for i, id := range sc.Slots {
			if id < 0 || id >= len(s.Vocabulary) {
				return fmt.Errorf("snapshot consistency error: slot element id %d not in vocabulary", id)
			}
			view[i] = s.Vocabulary[id]
		}
		for _, out := range sc.Outcomes {
			if out.Element < 0 || out.Element >= len(s.Vocabulary) {
				return fmt.Errorf("snapshot consistency error: outcome element id %d not in vocabulary", out.Element)
			}
			if out.Weight == 0 {
				return fmt.Errorf("%w: snapshot outcome has zero weight", ErrInvalidWeight)
			}
			c.train(view, s.Vocabulary[out.Element], out.Weight)
		}
	}
	return nil
}
