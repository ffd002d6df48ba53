package markov

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// WeightedDie holds the weighted successor set for a single context. Each
// distinct element owns one bucket whose weight accumulates across Add
// calls. Buckets are kept as a running cumulative weight sequence, so a
// roll is a binary search over weight space.
type WeightedDie[T comparable] struct {
	items   []T      // elements in first-insertion order
	running []uint64 // cumulative weights, strictly increasing
	index   map[T]int
}

// NewWeightedDie creates an empty die. Rolling an empty die yields no
// result; it becomes rollable after the first successful Add.
func NewWeightedDie[T comparable]() *WeightedDie[T] {
	return &WeightedDie[T]{index: make(map[T]int)}
}

// Add increases the weight of elem's bucket by weight, creating the bucket
// if elem has not been seen before. The weight must be positive.
func (d *WeightedDie[T]) Add(elem T, weight int) error {
	if weight <= 0 {
		return fmt.Errorf("%w: weight must be positive, got %d", ErrInvalidWeight, weight)
	}
	d.add(elem, uint64(weight))
	return nil
}

func (d *WeightedDie[T]) add(elem T, weight uint64) {
	if i, ok := d.index[elem]; ok {
		for j := i; j < len(d.running); j++ {
			d.running[j] += weight
		}
		return
	}
	var total uint64
	if n := len(d.running); n > 0 {
		total = d.running[n-1]
	}
	d.index[elem] = len(d.items)
	d.items = append(d.items, elem)
	d.running = append(d.running, total+weight)
}

// Len returns the number of distinct elements on the die.
func (d *WeightedDie[T]) Len() int {
	return len(d.items)
}

// Total returns the sum of all bucket weights.
func (d *WeightedDie[T]) Total() uint64 {
	if n := len(d.running); n > 0 {
		return d.running[n-1]
	}
	return 0
}

// weightAt returns the bucket weight of the element at insertion index i.
func (d *WeightedDie[T]) weightAt(i int) uint64 {
	if i == 0 {
		return d.running[0]
	}
	return d.running[i] - d.running[i-1]
}

// WeightOf returns elem's accumulated bucket weight, or 0 if elem has
// never been added.
func (d *WeightedDie[T]) WeightOf(elem T) uint64 {
	i, ok := d.index[elem]
	if !ok {
		return 0
	}
	return d.weightAt(i)
}

// Probability returns elem's bucket weight divided by the total weight.
// An unseen element or an empty die yields 0, not an error.
func (d *WeightedDie[T]) Probability(elem T) float64 {
	total := d.Total()
	if total == 0 {
		return 0
	}
	w := d.WeightOf(elem)
	if w == 0 {
		return 0
	}
	return lessLossyDivide(w, total)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lessLossyDivide reduces the ratio by its gcd before converting to float,
// keeping exact results for ratios like 2/4 that large raw weights would
// otherwise smear.
func lessLossyDivide(numerator, denominator uint64) float64 {
	g := gcd(numerator, denominator)
	return float64(numerator/g) / float64(denominator/g)
}

// Roll returns the element whose cumulative-weight bucket contains draw.
// The draw is reduced modulo the total weight, so any uint64 is a valid
// input. Returns false only when the die is empty.
func (d *WeightedDie[T]) Roll(draw uint64) (T, bool) {
	var zero T
	total := d.Total()
	if total == 0 {
		return zero, false
	}
	draw %= total
	i := sort.Search(len(d.running), func(i int) bool { return d.running[i] > draw })
	return d.items[i], true
}

// RollRandom rolls the die with a uniform random draw over weight space.
func (d *WeightedDie[T]) RollRandom() (T, bool) {
	total := d.Total()
	if total == 0 {
		var zero T
		return zero, false
	}
	return d.Roll(rand.Uint64N(total))
}

// RollDeterministic returns the element at position rank when buckets are
// ordered by descending weight, ties broken by first insertion. The rank
// is reduced modulo Len, mirroring Roll's modulo semantics, so callers
// enumerating outcomes should bound rank with Len. The result is a pure
// function of die state and rank.
func (d *WeightedDie[T]) RollDeterministic(rank int) (T, bool) {
	n := len(d.items)
	if n == 0 {
		var zero T
		return zero, false
	}
	rank = ((rank % n) + n) % n
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.weightAt(order[a]) > d.weightAt(order[b])
	})
	return d.items[order[rank]], true
}
