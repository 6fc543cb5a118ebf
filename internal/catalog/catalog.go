// Package catalog stores named gate definitions and sample annotations and
// selects a persistence backend from configuration.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"flowcore/internal/catalog/core"
	"flowcore/internal/infra/persistence/memory"
	"flowcore/internal/infra/persistence/postgres"
	"flowcore/internal/infra/persistence/sqlite"
	"flowcore/pkg/gate"
)

type (
	// Driver identifies a catalog backend.
	Driver = core.Driver
	// GateRecord is a named gate definition.
	GateRecord = core.GateRecord
	// Annotation is a note attached to a sample.
	Annotation = core.Annotation
	// Store is the catalog contract.
	Store = core.Store
)

const (
	// DriverMemory keeps records in process memory.
	DriverMemory = core.DriverMemory
	// DriverSQLite persists to a SQLite file.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres persists to Postgres.
	DriverPostgres = core.DriverPostgres
)

// ErrNotFound is returned for unknown gate names.
var ErrNotFound = core.ErrNotFound

// Config selects a backend.
type Config struct {
	Driver      Driver `mapstructure:"driver"` // memory|sqlite|postgres (default sqlite)
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite, "":
		return sqlite.New(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, errors.Newf("unknown catalog driver %s", cfg.Driver)
	}
}

// NewGateRecord describes g under name.
func NewGateRecord(name string, g gate.Gate) (GateRecord, error) {
	spec, err := gate.Describe(g)
	if err != nil {
		return GateRecord{}, err
	}
	return GateRecord{Name: name, Spec: spec}, nil
}

// BuildGate reconstructs the gate stored in rec.
func BuildGate(rec GateRecord) (gate.Gate, error) {
	g, err := gate.FromSpec(rec.Spec)
	if err != nil {
		return nil, errors.Wrapf(err, "gate %s", rec.Name)
	}
	return g, nil
}
