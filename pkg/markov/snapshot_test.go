package markov

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	c := trainAlphabet(t)

	var buf bytes.Buffer
	if err := c.Export(&buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	restored, err := New[rune](1, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := restored.Import(&buf); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if !reflect.DeepEqual(c.Snapshot(), restored.Snapshot()) {
		t.Error("snapshots differ after export/import round trip")
	}
	if p, _ := restored.Probability(knownSlots([]rune{'y'}), 'z'); p != 1 {
		t.Errorf("restored Probability(y, z) = %v, want 1", p)
	}
	if got, ok, _ := restored.Generate([]rune{'m'}); !ok || got != 'n' {
		t.Errorf("restored Generate(m) = (%q, %v), want (n, true)", got, ok)
	}
}

func TestRestore(t *testing.T) {
	c, err := New[string](2, []int{1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Train([]string{"A", "B"}, "X", 2); err != nil {
		t.Fatal(err)
	}
	if err := c.Train([]string{"A", "C"}, "X", 1); err != nil {
		t.Fatal(err)
	}

	restored, err := Restore(c.Snapshot())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if got, want := restored.Order(), 2; got != want {
		t.Errorf("Order() = %d, want %d", got, want)
	}
	if got := restored.WildcardDims(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("WildcardDims() = %v, want [1]", got)
	}

	// The marginal table is rebuilt, so partial queries survive a restore.
	partial := []Slot[string]{Known("A"), Unknown[string]()}
	if p, err := restored.Probability(partial, "X"); err != nil || p != 1 {
		t.Errorf("restored Probability(A ?, X) = (%v, %v), want 1", p, err)
	}
}

func TestSnapshotCanonicalOrder(t *testing.T) {
	buildChain := func(reverse bool) *Chain[rune] {
		c, err := New[rune](1, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		runes := []rune(alphabet)
		if reverse {
			for i := len(runes) - 1; i >= 1; i-- {
				if err := c.Train([]rune{runes[i-1]}, runes[i], 1); err != nil {
					t.Fatal(err)
				}
			}
		} else {
			for i := 1; i < len(runes); i++ {
				if err := c.Train([]rune{runes[i-1]}, runes[i], 1); err != nil {
					t.Fatal(err)
				}
			}
		}
		return c
	}

	// Same training order: snapshots are byte-for-byte comparable.
	if !reflect.DeepEqual(buildChain(false).Snapshot(), buildChain(false).Snapshot()) {
		t.Error("chains trained identically produced different snapshots")
	}

	// Different training order renumbers the vocabulary, so compare the
	// observable distributions instead.
	a, b := buildChain(false), buildChain(true)
	runes := []rune(alphabet)
	for i := 0; i < len(runes)-1; i++ {
		pa, _ := a.Probability(knownSlots([]rune{runes[i]}), runes[i+1])
		pb, _ := b.Probability(knownSlots([]rune{runes[i]}), runes[i+1])
		if pa != pb {
			t.Errorf("Probability(%q, %q) differs across training orders: %v vs %v", runes[i], runes[i+1], pa, pb)
		}
	}
}

func TestImportMerges(t *testing.T) {
	c, err := New[int](1, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Train([]int{1}, 2, 3); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := c.Export(&buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	// Importing into the same chain doubles the weights.
	if err := c.Import(&buf); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if stats := c.Stats(); stats.TotalWeight != 6 {
		t.Errorf("TotalWeight after self-import = %d, want 6", stats.TotalWeight)
	}
	if p, _ := c.Probability(knownSlots([]int{1}), 2); p != 1 {
		t.Errorf("Probability(1, 2) after self-import = %v, want 1", p)
	}
}

func TestImportMismatch(t *testing.T) {
	src, err := New[int](2, []int{0})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := src.Train([]int{1, 2}, 3, 1); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name  string
		order int
		dims  []int
	}{
		{name: "order mismatch", order: 1, dims: nil},
		{name: "wildcard mismatch", order: 2, dims: []int{1}},
		{name: "missing wildcards", order: 2, dims: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := src.Export(&buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			dst, err := New[int](tc.order, tc.dims)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if err := dst.Import(&buf); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Import() error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}
