package chainstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tilecraft/markovgen/pkg/markov"
)

// ErrNotFound is returned by Load and Delete when no chain with the given
// name exists in the database.
var ErrNotFound = errors.New("chainstore: chain not found")

// ChainInfo holds the metadata for one stored chain.
type ChainInfo struct {
	Id           int
	Name         string
	Order        int
	WildcardDims []int
}

// StoreStats holds aggregate counters for the whole database.
type StoreStats struct {
	ChainCount   int    // stored chains
	ContextCount int    // stored context windows across all chains
	TotalWeight  uint64 // sum of all stored outcome weights
}

// SetupSchema initializes the chain tables in the provided database. It
// is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaChains = `
CREATE TABLE IF NOT EXISTS chains (
    chain_id INTEGER PRIMARY KEY,
    chain_name TEXT NOT NULL UNIQUE,
    chain_order INTEGER NOT NULL,
    wildcard_dims TEXT NOT NULL DEFAULT ''
);
`
		schemaVocabulary = `
CREATE TABLE IF NOT EXISTS chain_vocabulary (
    chain_id INTEGER NOT NULL,
    element_id INTEGER NOT NULL,
    element_json TEXT NOT NULL,
    PRIMARY KEY (chain_id, element_id)
);
`
		schemaContexts = `
CREATE TABLE IF NOT EXISTS chain_contexts (
    chain_id INTEGER NOT NULL,
    context_id INTEGER NOT NULL,
    context_key TEXT NOT NULL,
    PRIMARY KEY (chain_id, context_id),
    UNIQUE (chain_id, context_key)
);
`
		schemaWeights = `
CREATE TABLE IF NOT EXISTS chain_weights (
    chain_id INTEGER NOT NULL,
    context_id INTEGER NOT NULL,
    element_id INTEGER NOT NULL,
    weight INTEGER NOT NULL,
    PRIMARY KEY (chain_id, context_id, element_id)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaChains, schemaVocabulary, schemaContexts, schemaWeights} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes chains of one element type against a database
// prepared with SetupSchema.
type Store[T comparable] struct {
	db                *sql.DB
	stmtGetChain      *sql.Stmt
	stmtListChains    *sql.Stmt
	stmtGetVocabulary *sql.Stmt
	stmtGetContexts   *sql.Stmt
	stmtGetWeights    *sql.Stmt
	stmtChainCount    *sql.Stmt
	stmtContextCount  *sql.Stmt
	stmtWeightSum     *sql.Stmt
	logger            *slog.Logger
}

// New creates a Store over db, pre-compiling its SQL statements. It
// returns an error if any preparation fails.
func New[T comparable](db *sql.DB) (*Store[T], error) {
	stmtGetChain, err := db.Prepare(`SELECT chain_id, chain_order, wildcard_dims FROM chains WHERE chain_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListChains, err := db.Prepare(`SELECT chain_id, chain_name, chain_order, wildcard_dims FROM chains;`)
	if err != nil {
		return nil, err
	}

	stmtGetVocabulary, err := db.Prepare(`SELECT element_id, element_json FROM chain_vocabulary WHERE chain_id = ? ORDER BY element_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetContexts, err := db.Prepare(`SELECT context_id, context_key FROM chain_contexts WHERE chain_id = ? ORDER BY context_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetWeights, err := db.Prepare(`SELECT context_id, element_id, weight FROM chain_weights WHERE chain_id = ? ORDER BY context_id, element_id;`)
	if err != nil {
		return nil, err
	}

	stmtChainCount, err := db.Prepare(`SELECT COUNT(*) FROM chains;`)
	if err != nil {
		return nil, err
	}

	stmtContextCount, err := db.Prepare(`SELECT COUNT(*) FROM chain_contexts;`)
	if err != nil {
		return nil, err
	}

	stmtWeightSum, err := db.Prepare(`SELECT coalesce(SUM(weight), 0) FROM chain_weights;`)
	if err != nil {
		return nil, err
	}

	return &Store[T]{
		db:                db,
		stmtGetChain:      stmtGetChain,
		stmtListChains:    stmtListChains,
		stmtGetVocabulary: stmtGetVocabulary,
		stmtGetContexts:   stmtGetContexts,
		stmtGetWeights:    stmtGetWeights,
		stmtChainCount:    stmtChainCount,
		stmtContextCount:  stmtContextCount,
		stmtWeightSum:     stmtWeightSum,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store[T]) Close() {
	_ = s.stmtGetChain.Close()
	_ = s.stmtListChains.Close()
	_ = s.stmtGetVocabulary.Close()
	_ = s.stmtGetContexts.Close()
	_ = s.stmtGetWeights.Close()
	_ = s.stmtChainCount.Close()
	_ = s.stmtContextCount.Close()
	_ = s.stmtWeightSum.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are
// discarded.
func (s *Store[T]) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func joinDims(dims []int) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, " ")
}

func parseDims(text string) ([]int, error) {
	fields := strings.Fields(text)
	dims := make([]int, len(fields))
	for i, f := range fields {
		d, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("malformed wildcard_dims %q: %w", text, err)
		}
		dims[i] = d
	}
	return dims, nil
}

func joinSlots(slots []int) string {
	parts := make([]string, len(slots))
	for i, id := range slots {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

// Save writes the chain's snapshot under the given name, replacing any
// chain previously stored under it. The operation is performed within a
// single transaction.
func (s *Store[T]) Save(ctx context.Context, name string, chain *markov.Chain[T]) error {
	snap := chain.Snapshot()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	dims := joinDims(snap.WildcardDims)

	var chainID int
	err = tx.QueryRowContext(ctx, `SELECT chain_id FROM chains WHERE chain_name = ?`, name).Scan(&chainID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `INSERT INTO chains (chain_name, chain_order, wildcard_dims) VALUES (?, ?, ?)`, name, snap.Order, dims)
		if err != nil {
			return fmt.Errorf("failed to insert chain '%s': %w", name, err)
		}
		newID, _ := res.LastInsertId()
		chainID = int(newID)
	case err != nil:
		return fmt.Errorf("failed to query for chain '%s': %w", name, err)
	default:
		if _, err = tx.ExecContext(ctx, `UPDATE chains SET chain_order = ?, wildcard_dims = ? WHERE chain_id = ?`, snap.Order, dims, chainID); err != nil {
			return fmt.Errorf("failed to update chain '%s': %w", name, err)
		}
		for _, table := range []string{"chain_weights", "chain_contexts", "chain_vocabulary"} {
			if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE chain_id = ?`, chainID); err != nil {
				return fmt.Errorf("failed to clear %s for chain %d: %w", table, chainID, err)
			}
		}
	}

	stmtInsertVocab, err := tx.PrepareContext(ctx, `INSERT INTO chain_vocabulary (chain_id, element_id, element_json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare vocabulary insert: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertVocab)

	for id, elem := range snap.Vocabulary {
		data, err := json.Marshal(elem)
		if err != nil {
			return fmt.Errorf("failed to encode element %d: %w", id, err)
		}
		if _, err = stmtInsertVocab.ExecContext(ctx, chainID, id, string(data)); err != nil {
			return fmt.Errorf("failed to insert element %d: %w", id, err)
		}
	}

	stmtInsertContext, err := tx.PrepareContext(ctx, `INSERT INTO chain_contexts (chain_id, context_id, context_key) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare context insert: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertContext)

	stmtInsertWeight, err := tx.PrepareContext(ctx, `INSERT INTO chain_weights (chain_id, context_id, element_id, weight) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare weight insert: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertWeight)

	var weightRows int
	for contextID, sc := range snap.Contexts {
		if _, err = stmtInsertContext.ExecContext(ctx, chainID, contextID, joinSlots(sc.Slots)); err != nil {
			return fmt.Errorf("failed to insert context %d: %w", contextID, err)
		}
		for _, out := range sc.Outcomes {
			if _, err = stmtInsertWeight.ExecContext(ctx, chainID, contextID, out.Element, int64(out.Weight)); err != nil {
				return fmt.Errorf("failed to insert weight (%d -> %d): %w", contextID, out.Element, err)
			}
			weightRows++
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit save: %w", err)
	}

	s.logger.InfoContext(ctx, "Chain saved",
		slog.String("chain_name", name),
		slog.Int("chain_id", chainID),
		slog.Int("vocabulary_size", len(snap.Vocabulary)),
		slog.Int("contexts_saved", len(snap.Contexts)),
		slog.Int("weights_saved", weightRows),
	)
	return nil
}

// Load reconstructs the chain stored under name. Outcome insertion order
// is normalized to element-id order, which preserves every weight and
// keeps deterministic selection reproducible for a fixed stored state.
func (s *Store[T]) Load(ctx context.Context, name string) (*markov.Chain[T], error) {
	var chainID, order int
	var dimsText string
	err := s.stmtGetChain.QueryRowContext(ctx, name).Scan(&chainID, &order, &dimsText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chain '%s': %w", name, err)
	}

	dims, err := parseDims(dimsText)
	if err != nil {
		return nil, err
	}

	snap := &markov.Snapshot[T]{Order: order, WildcardDims: dims}

	rows, err := s.stmtGetVocabulary.QueryContext(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	for rows.Next() {
		var id int
		var data string
		if err = rows.Scan(&id, &data); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if id != len(snap.Vocabulary) {
			_ = rows.Close()
			return nil, fmt.Errorf("consistency error: vocabulary ids for chain %d are not dense at %d", chainID, id)
		}
		var elem T
		if err = json.Unmarshal([]byte(data), &elem); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to decode element %d: %w", id, err)
		}
		snap.Vocabulary = append(snap.Vocabulary, elem)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	contextIndex := make(map[int]int)
	rows, err = s.stmtGetContexts.QueryContext(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	for rows.Next() {
		var id int
		var key string
		if err = rows.Scan(&id, &key); err != nil {
			_ = rows.Close()
			return nil, err
		}
		slots, err := parseDims(key)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		contextIndex[id] = len(snap.Contexts)
		snap.Contexts = append(snap.Contexts, markov.SnapshotContext{Slots: slots})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.stmtGetWeights.QueryContext(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weights: %w", err)
	}
	for rows.Next() {
		var contextID, elementID int
		var weight int64
		if err = rows.Scan(&contextID, &elementID, &weight); err != nil {
			_ = rows.Close()
			return nil, err
		}
		i, ok := contextIndex[contextID]
		if !ok {
			_ = rows.Close()
			return nil, fmt.Errorf("consistency error: weight references unknown context %d", contextID)
		}
		snap.Contexts[i].Outcomes = append(snap.Contexts[i].Outcomes, markov.SnapshotOutcome{Element: elementID, Weight: uint64(weight)})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	chain, err := markov.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore chain '%s': %w", name, err)
	}

	s.logger.InfoContext(ctx, "Chain loaded",
		slog.String("chain_name", name),
		slog.Int("chain_id", chainID),
		slog.Int("contexts_loaded", len(snap.Contexts)),
	)
	return chain, nil
}

// List retrieves metadata for all stored chains, keyed by chain name.
func (s *Store[T]) List(ctx context.Context) (map[string]ChainInfo, error) {
	rows, err := s.stmtListChains.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	chains := make(map[string]ChainInfo)
	for rows.Next() {
		var info ChainInfo
		var dimsText string
		if err = rows.Scan(&info.Id, &info.Name, &info.Order, &dimsText); err != nil {
			return nil, err
		}
		if info.WildcardDims, err = parseDims(dimsText); err != nil {
			return nil, err
		}
		chains[info.Name] = info
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return chains, nil
}

// Delete removes the chain stored under name and all of its data. It
// returns ErrNotFound if no such chain exists.
func (s *Store[T]) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for delete: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var chainID int
	err = tx.QueryRowContext(ctx, `SELECT chain_id FROM chains WHERE chain_name = ?`, name).Scan(&chainID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to query chain '%s': %w", name, err)
	}

	for _, table := range []string{"chain_weights", "chain_contexts", "chain_vocabulary", "chains"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE chain_id = ?`, chainID); err != nil {
			return fmt.Errorf("failed to delete from %s for chain %d: %w", table, chainID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit delete: %w", err)
	}

	s.logger.InfoContext(ctx, "Chain removed",
		slog.String("chain_name", name),
		slog.Int("chain_id", chainID),
	)
	return nil
}

// Stats returns aggregate counters for the whole database.
func (s *Store[T]) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	if err := s.stmtChainCount.QueryRowContext(ctx).Scan(&stats.ChainCount); err != nil {
		return nil, err
	}
	if err := s.stmtContextCount.QueryRowContext(ctx).Scan(&stats.ContextCount); err != nil {
		return nil, err
	}
	var sum int64
	if err := s.stmtWeightSum.QueryRowContext(ctx).Scan(&sum); err != nil {
		return nil, err
	}
	stats.TotalWeight = uint64(sum)
	return stats, nil
}
