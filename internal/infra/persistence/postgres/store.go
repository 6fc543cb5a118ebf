// Package postgres persists the catalog to Postgres through the pgx
// database/sql driver, using the same bucket snapshot layout as sqlite.
package postgres

import (
	"context"
	"database/sql"
	"sync"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"flowcore/internal/catalog/core"
	"flowcore/internal/infra/persistence/memory"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/flowcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a snapshotting Postgres-backed catalog.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

var _ core.Store = (*Store)(nil)

// New connects to dsn (default defaultDSN), ensures the state table exists
// and hydrates the memory store from any existing snapshot.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := ensureStateTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snap, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.New()
	mem.ImportState(snap)
	return &Store{Store: mem, db: db}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "ensure state table")
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, errors.Wrap(err, "select state")
	}
	defer func() { _ = rows.Close() }()
	var snap memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, errors.Wrap(err, "scan state")
		}
		if err := snap.Decode(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, errors.Wrap(err, "iterate state")
	}
	return snap, nil
}

func (s *Store) persist(ctx context.Context, snap memory.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, err := snap.Encode(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return errors.Wrapf(err, "upsert %s", bucket)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	committed = true
	return nil
}

// Driver returns the catalog driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// PutGate upserts rec and snapshots the catalog.
func (s *Store) PutGate(ctx context.Context, rec core.GateRecord) (core.GateRecord, error) {
	return memory.Mutate(ctx, s.Store, &s.mu, s.persist, func() (core.GateRecord, error) {
		return s.Store.PutGate(ctx, rec)
	})
}

// DeleteGate removes name and snapshots the catalog.
func (s *Store) DeleteGate(ctx context.Context, name string) (bool, error) {
	return memory.Mutate(ctx, s.Store, &s.mu, s.persist, func() (bool, error) {
		return s.Store.DeleteGate(ctx, name)
	})
}

// Annotate upserts a and snapshots the catalog.
func (s *Store) Annotate(ctx context.Context, a core.Annotation) (core.Annotation, error) {
	return memory.Mutate(ctx, s.Store, &s.mu, s.persist, func() (core.Annotation, error) {
		return s.Store.Annotate(ctx, a)
	})
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
