package markov

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

// Slot is one position in a query context window: either a known element
// or an unknown that will be resolved against the chain's wildcard
// dimensions.
type Slot[T comparable] struct {
	elem  T
	known bool
}

// Known wraps an element into a known slot.
func Known[T comparable](elem T) Slot[T] {
	return Slot[T]{elem: elem, known: true}
}

// Unknown returns a slot with no element. Only slots at wildcard
// dimensions may be unknown at query time.
func Unknown[T comparable]() Slot[T] {
	return Slot[T]{}
}

// Element returns the slot's element and whether it is known.
func (s Slot[T]) Element() (T, bool) {
	return s.elem, s.known
}

// Chain is a higher-order Markov chain over elements of type T. It maps
// fixed-length context windows to weighted outcome distributions, with a
// set of wildcard dimensions that may be left unknown at query time and
// are then marginalized over.
//
// A Chain is not safe for concurrent mutation: Train must not race with
// other calls on the same instance. Once training has ceased, the query
// methods may run concurrently.
type Chain[T comparable] struct {
	order  int
	dims   []int  // wildcard dimensions, sorted ascending
	isWild []bool // per-slot wildcard flag, len == order

	vocab map[T]int
	elems []T // elements in first-seen order; index is the element id

	// contexts maps fully-known trained windows (as interned-id keys) to
	// their distributions. marginal carries the same weights projected
	// onto the non-wildcard slots; it is nil when there are no wildcard
	// dimensions.
	contexts map[string]*WeightedDie[T]
	marginal map[string]*WeightedDie[T]

	logger *slog.Logger
}

// New creates a chain of the given order. An order of 0 degenerates to a
// single global weighted die. wildcardDims lists the slot indices that
// may be unknown at query time; each must be in [0, order) and appear
// once.
func New[T comparable](order int, wildcardDims []int) (*Chain[T], error) {
	if order < 0 {
		return nil, fmt.Errorf("%w: order must be non-negative, got %d", ErrInvalidConfiguration, order)
	}
	isWild := make([]bool, order)
	dims := make([]int, 0, len(wildcardDims))
	for _, d := range wildcardDims {
		if d < 0 || d >= order {
			return nil, fmt.Errorf("%w: wildcard dimension %d out of range [0, %d)", ErrInvalidConfiguration, d, order)
		}
		if isWild[d] {
			return nil, fmt.Errorf("%w: duplicate wildcard dimension %d", ErrInvalidConfiguration, d)
		}
		isWild[d] = true
	}
	for d := 0; d < order; d++ {
		if isWild[d] {
			dims = append(dims, d)
		}
	}
	c := &Chain[T]{
		order:    order,
		dims:     dims,
		isWild:   isWild,
		vocab:    make(map[T]int),
		contexts: make(map[string]*WeightedDie[T]),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if len(dims) > 0 {
		c.marginal = make(map[string]*WeightedDie[T])
	}
	return c, nil
}

// SetLogger sets the logger for the chain. By default, all logs are
// discarded.
func (c *Chain[T]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Order returns the chain's context window length.
func (c *Chain[T]) Order() int {
	return c.order
}

// WildcardDims returns the wildcard dimensions in ascending order.
func (c *Chain[T]) WildcardDims() []int {
	out := make([]int, len(c.dims))
	copy(out, c.dims)
	return out
}

// intern returns the dense id for elem, assigning the next id on first
// sight. Ids double as the element's natural first-seen ordering.
func (c *Chain[T]) intern(elem T) int {
	if id, ok := c.vocab[elem]; ok {
		return id
	}
	id := len(c.elems)
	c.vocab[elem] = id
	c.elems = append(c.elems, elem)
	return id
}

func appendIDs(buf []byte, ids []int) []byte {
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	return buf
}

// fullKey builds the context-store key for a fully-known window. The
// second return is false when a slot holds an element the chain has never
// seen, which can never match a stored context.
func (c *Chain[T]) fullKey(view []Slot[T]) (string, bool) {
	ids := make([]int, len(view))
	for i, s := range view {
		id, ok := c.vocab[s.elem]
		if !ok {
			return "", false
		}
		ids[i] = id
	}
	return string(appendIDs(nil, ids)), true
}

// projKey builds the marginal-table key from the non-wildcard slots.
func (c *Chain[T]) projKey(view []Slot[T]) (string, bool) {
	ids := make([]int, 0, c.order-len(c.dims))
	for i, s := range view {
		if c.isWild[i] {
			continue
		}
		id, ok := c.vocab[s.elem]
		if !ok {
			return "", false
		}
		ids = append(ids, id)
	}
	return string(appendIDs(nil, ids)), true
}

// Train adds weight to the outcome's bucket in the distribution keyed by
// view. The window must be fully known and exactly order elements long,
// and the weight must be positive. Repeated calls for the same (view,
// outcome) accumulate.
func (c *Chain[T]) Train(view []T, outcome T, weight int) error {
	if len(view) != c.order {
		return fmt.Errorf("%w: training window has %d slots, chain order is %d", ErrMalformedContext, len(view), c.order)
	}
	if weight <= 0 {
		return fmt.Errorf("%w: weight must be positive, got %d", ErrInvalidWeight, weight)
	}
	c.train(view, outcome, uint64(weight))
	return nil
}

func (c *Chain[T]) train(view []T, outcome T, weight uint64) {
	ids := make([]int, len(view))
	for i, e := range view {
		ids[i] = c.intern(e)
	}
	c.intern(outcome)

	key := string(appendIDs(nil, ids))
	die := c.contexts[key]
	if die == nil {
		die = NewWeightedDie[T]()
		c.contexts[key] = die
	}
	die.add(outcome, weight)

	if c.marginal != nil {
		proj := make([]int, 0, c.order-len(c.dims))
		for i, id := range ids {
			if !c.isWild[i] {
				proj = append(proj, id)
			}
		}
		pkey := string(appendIDs(nil, proj))
		pdie := c.marginal[pkey]
		if pdie == nil {
			pdie = NewWeightedDie[T]()
			c.marginal[pkey] = pdie
		}
		pdie.add(outcome, weight)
	}
}

// resolve maps a query window to its distribution, or to nil when the
// chain holds no data for it. A nil die with a nil error is the "no data"
// success path, not a failure.
func (c *Chain[T]) resolve(view []Slot[T]) (*WeightedDie[T], error) {
	if len(view) != c.order {
		return nil, fmt.Errorf("%w: query window has %d slots, chain order is %d", ErrMalformedContext, len(view), c.order)
	}
	allKnown := true
	for i, s := range view {
		if s.known {
			continue
		}
		if !c.isWild[i] {
			return nil, fmt.Errorf("%w: slot %d is unknown but not a wildcard dimension", ErrMalformedContext, i)
		}
		allKnown = false
	}

	if allKnown {
		if key, ok := c.fullKey(view); ok {
			if die, ok := c.contexts[key]; ok {
				return die, nil
			}
		}
	}

	if c.marginal == nil {
		return nil, nil
	}
	key, ok := c.projKey(view)
	if !ok {
		return nil, nil
	}
	if die, ok := c.marginal[key]; ok {
		return die, nil
	}
	c.logger.Debug("resolution dead end", slog.String("marginal_key", key))
	return nil, nil
}

// Generate samples the next element for a fully-known context window.
// The boolean is false when the chain has no data for the window, which
// is the expected dead-end signal during constrained generation.
func (c *Chain[T]) Generate(view []T) (T, bool, error) {
	return c.GenerateFromPartial(knownSlots(view))
}

// GenerateFromPartial samples the next element for a window that may have
// unknown slots at wildcard dimensions, marginalizing over the stored
// contexts that agree on the non-wildcard slots.
func (c *Chain[T]) GenerateFromPartial(view []Slot[T]) (T, bool, error) {
	die, err := c.resolve(view)
	if err != nil || die == nil {
		var zero T
		return zero, false, err
	}
	elem, ok := die.RollRandom()
	return elem, ok, nil
}

// GenerateDeterministic resolves the window like GenerateFromPartial but
// selects by rank instead of a random draw: rank 0 is the heaviest
// outcome, ties broken by first insertion into the distribution. Useful
// for reproducible tests and exhaustive enumeration.
func (c *Chain[T]) GenerateDeterministic(view []Slot[T], rank int) (T, bool, error) {
	die, err := c.resolve(view)
	if err != nil || die == nil {
		var zero T
		return zero, false, err
	}
	elem, ok := die.RollDeterministic(rank)
	return elem, ok, nil
}

// Probability returns the normalized weight of outcome under the resolved
// distribution for view, in [0, 1]. An unseen context or outcome yields
// 0, not an error.
func (c *Chain[T]) Probability(view []Slot[T], outcome T) (float64, error) {
	die, err := c.resolve(view)
	if err != nil || die == nil {
		return 0, err
	}
	return die.Probability(outcome), nil
}

func knownSlots[T comparable](view []T) []Slot[T] {
	slots := make([]Slot[T], len(view))
	for i, e := range view {
		slots[i] = Known(e)
	}
	return slots
}

// ChainStats holds aggregate counters for a chain's context store.
type ChainStats struct {
	Contexts    int    // distinct trained context windows
	Outcomes    int    // sum of distinct outcomes across contexts
	TotalWeight uint64 // sum of all trained weights
	VocabSize   int    // distinct elements seen
}

// Stats returns a snapshot of the chain's store counters. Marginal
// bookkeeping is excluded; only the trained contexts are counted.
func (c *Chain[T]) Stats() ChainStats {
	s := ChainStats{
		Contexts:  len(c.contexts),
		VocabSize: len(c.elems),
	}
	for _, die := range c.contexts {
		s.Outcomes += die.Len()
		s.TotalWeight += die.Total()
	}
	return s
}
