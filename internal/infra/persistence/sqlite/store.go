// Package sqlite persists the catalog to a SQLite file. State lives in the
// embedded memory store and is snapshotted, one JSON payload per bucket,
// after every successful write.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"flowcore/internal/catalog/core"
	"flowcore/internal/infra/persistence/memory"
)

// Store is a snapshotting SQLite-backed catalog.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ core.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and loads any
// existing snapshot.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "flowcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(err, "create dirs")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create state table")
	}
	s := &Store{Store: memory.New(), db: db, path: path}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return errors.Wrap(err, "select state")
	}
	defer func() { _ = rows.Close() }()
	var snap memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return errors.Wrap(err, "scan state")
		}
		if err := snap.Decode(bucket, payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate state")
	}
	s.ImportState(snap)
	return nil
}

func (s *Store) persist(ctx context.Context, snap memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, err := snap.Encode(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return errors.Wrapf(err, "upsert %s", bucket)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Driver returns the catalog driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

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

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
