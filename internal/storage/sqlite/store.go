// Package sqlite implements the storage interface using SQLite.
//
// File layout:
//   - store.go: Store struct, New() constructor, schema init, Close
//   - transaction.go: dedicated-connection transactions (BEGIN IMMEDIATE)
//   - loads.go: Bronze load headers and raw rows
//   - taxonomies.go: taxonomy header upsert and lookup
//   - dictionary.go: append-only node-type / attribute-type catalogs
//   - nodes.go: natural-key node upserts and placeholder lookup
//   - attributes.go: node attribute upserts
//   - reconcile.go: temp staging tables and soft-delete reconciliation
//   - versions.go: taxonomy version chain
//   - mappings.go: mappings, mapping versions, rule evaluation queries
//   - rules.go: mapping rule and assignment administration
//   - gold.go: Gold projection sync
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
)

// Verify Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// memSeq distinguishes concurrently open in-memory databases.
var memSeq atomic.Int64

// Store implements storage.Store on a single SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// setupWASMCache configures WASM compilation caching so the embedded
// SQLite build is compiled once per machine rather than per process.
// Falls back to an in-memory cache when the cache dir is unavailable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "taxo", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (and if needed initializes) the database at path.
// Use ":memory:" for an in-process ephemeral store.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	if path == ":memory:" {
		// Named per-open with a shared cache: the pool's connections see
		// the same data, distinct stores stay isolated.
		connStr = fmt.Sprintf("file:taxomem%d?mode=memory&cache=shared", memSeq.Add(1))
	} else {
		connStr = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Pipeline invocations hold one connection each for the duration of
	// their transaction; a single-digit pool is all the model needs.
	db.SetMaxOpenConns(4)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.dbPath }

// Close closes the underlying database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// UnderlyingDB exposes the pool for advanced queries (tests, doctor-style
// inspection). Pipelines must not use it.
func (s *Store) UnderlyingDB() *sql.DB { return s.db }

// dbtx is the subset of database/sql shared by *sql.DB, *sql.Conn and
// *sql.Tx; query helpers take it so Store and transaction methods share
// one implementation.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
