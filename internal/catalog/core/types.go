// Package core defines the catalog records and the Store contract shared by
// the memory, sqlite and postgres backends.
package core

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"flowcore/pkg/gate"
)

// Driver identifies a catalog backend.
type Driver string

const (
	// DriverMemory keeps records in process memory.
	DriverMemory Driver = "memory"
	// DriverSQLite snapshots records into a SQLite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres snapshots records into Postgres.
	DriverPostgres Driver = "postgres"
)

// GateRecord is a named, serialised gate definition.
type GateRecord struct {
	Name      string    `json:"name"`
	Spec      gate.Spec `json:"spec"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Annotation is a key/value note attached to a stored sample.
type Annotation struct {
	SampleKey string    `json:"sample_key"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists gate definitions and sample annotations.
type Store interface {
	// PutGate validates and upserts rec by name, keeping the original
	// creation time on update.
	PutGate(ctx context.Context, rec GateRecord) (GateRecord, error)
	GetGate(ctx context.Context, name string) (GateRecord, error)
	// ListGates returns every record ordered by name.
	ListGates(ctx context.Context) ([]GateRecord, error)
	DeleteGate(ctx context.Context, name string) (bool, error)
	// Annotate upserts a by (SampleKey, Key).
	Annotate(ctx context.Context, a Annotation) (Annotation, error)
	// Annotations returns the notes for sampleKey ordered by key.
	Annotations(ctx context.Context, sampleKey string) ([]Annotation, error)
	Close() error
	Driver() Driver
}

// ErrNotFound is returned for unknown gate names.
var ErrNotFound = errors.New("catalog: not found")

// ValidateGate checks that rec is named and describes a constructible gate.
func ValidateGate(rec GateRecord) error {
	if strings.TrimSpace(rec.Name) == "" {
		return errors.New("catalog: gate name required")
	}
	if _, err := gate.FromSpec(rec.Spec); err != nil {
		return errors.Wrapf(err, "catalog: gate %s", rec.Name)
	}
	return nil
}

// ValidateAnnotation checks the annotation key fields.
func ValidateAnnotation(a Annotation) error {
	if strings.TrimSpace(a.SampleKey) == "" || strings.TrimSpace(a.Key) == "" {
		return errors.New("catalog: annotation needs a sample key and a key")
	}
	return nil
}
