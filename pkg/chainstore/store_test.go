package chainstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tilecraft/markovgen/pkg/markov"
)

// setupTestStore creates a new SQLite database in a temp dir and a Store
// for testing. It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (context.Context, *Store[string]) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// Setup is idempotent.
	if err := SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema() failed: %v", err)
	}

	s, err := New[string](db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	return context.Background(), s
}

func trainedChain(t *testing.T) *markov.Chain[string] {
	t.Helper()
	c, err := markov.New[string](2, []int{1})
	if err != nil {
		t.Fatalf("markov.New() error = %v", err)
	}
	pairs := []struct {
		view    []string
		outcome string
		weight  int
	}{
		{[]string{"A", "B"}, "X", 3},
		{[]string{"A", "C"}, "X", 1},
		{[]string{"A", "B"}, "Y", 1},
		{[]string{"D", "B"}, "Z", 2},
	}
	for _, p := range pairs {
		if err := c.Train(p.view, p.outcome, p.weight); err != nil {
			t.Fatalf("Train(%v) error = %v", p.view, err)
		}
	}
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx, s := setupTestStore(t)
	chain := trainedChain(t)

	if err := s.Save(ctx, "test_chain", chain); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := s.Load(ctx, "test_chain")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Order() != 2 {
		t.Errorf("Order() = %d, want 2", loaded.Order())
	}
	if dims := loaded.WildcardDims(); len(dims) != 1 || dims[0] != 1 {
		t.Errorf("WildcardDims() = %v, want [1]", dims)
	}

	// Exact distributions survive.
	view := []markov.Slot[string]{markov.Known("A"), markov.Known("B")}
	if p, _ := loaded.Probability(view, "X"); p != 0.75 {
		t.Errorf("Probability(A B, X) = %v, want 0.75", p)
	}

	// Partial resolution survives: marginal over slot 1 for A is
	// X:4, Y:1.
	partial := []markov.Slot[string]{markov.Known("A"), markov.Unknown[string]()}
	if p, _ := loaded.Probability(partial, "X"); p != 0.8 {
		t.Errorf("Probability(A ?, X) = %v, want 0.8", p)
	}

	want := chain.Stats()
	got := loaded.Stats()
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestSaveReplaces(t *testing.T) {
	ctx, s := setupTestStore(t)

	if err := s.Save(ctx, "chain", trainedChain(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	small, err := markov.New[string](1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := small.Train([]string{"a"}, "b", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "chain", small); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, "chain")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Order() != 1 {
		t.Errorf("Order() after replace = %d, want 1", loaded.Order())
	}
	if stats := loaded.Stats(); stats.Contexts != 1 || stats.TotalWeight != 1 {
		t.Errorf("Stats() after replace = %+v, want 1 context with weight 1 (save must replace, not merge)", stats)
	}

	// The replaced chain must not leak rows into the stats.
	dbStats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if dbStats.ChainCount != 1 || dbStats.ContextCount != 1 || dbStats.TotalWeight != 1 {
		t.Errorf("store Stats() = %+v, want 1/1/1", dbStats)
	}
}

func TestListAndDelete(t *testing.T) {
	ctx, s := setupTestStore(t)

	if err := s.Save(ctx, "first", trainedChain(t)); err != nil {
		t.Fatal(err)
	}
	other, err := markov.New[string](0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Train(nil, "x", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "second", other); err != nil {
		t.Fatal(err)
	}

	chains, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(chains) != 2 {
		t.Fatalf("List() returned %d chains, want 2", len(chains))
	}
	if info := chains["first"]; info.Order != 2 || len(info.WildcardDims) != 1 {
		t.Errorf("List()['first'] = %+v, want order 2 with one wildcard dim", info)
	}

	if err := s.Delete(ctx, "first"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "first"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
	chains, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(chains) != 1 {
		t.Errorf("List() after delete returned %d chains, want 1", len(chains))
	}
}

func TestLoadMissing(t *testing.T) {
	ctx, s := setupTestStore(t)
	if _, err := s.Load(ctx, "no_such_chain"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "no_such_chain"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStoreStats(t *testing.T) {
	ctx, s := setupTestStore(t)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ChainCount != 0 || stats.TotalWeight != 0 {
		t.Errorf("Stats() on empty store = %+v, want zeros", stats)
	}

	if err := s.Save(ctx, "chain", trainedChain(t)); err != nil {
		t.Fatal(err)
	}
	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ChainCount != 1 || stats.ContextCount != 3 || stats.TotalWeight != 7 {
		t.Errorf("Stats() = %+v, want ChainCount 1, ContextCount 3, TotalWeight 7", stats)
	}
}
