// Package memory implements the catalog Store in process memory. The sqlite
// and postgres backends embed it and snapshot its state after every write.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"flowcore/internal/catalog/core"
)

// Store holds gates by name and annotations by sample and key.
type Store struct {
	mu          sync.RWMutex
	gates       map[string]core.GateRecord
	annotations map[string]map[string]core.Annotation
	now         func() time.Time
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		gates:       make(map[string]core.GateRecord),
		annotations: make(map[string]map[string]core.Annotation),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Driver returns the catalog driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// PutGate implements core.Store.
func (s *Store) PutGate(_ context.Context, rec core.GateRecord) (core.GateRecord, error) {
	if err := core.ValidateGate(rec); err != nil {
		return core.GateRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if prev, ok := s.gates[rec.Name]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	s.gates[rec.Name] = rec
	return rec, nil
}

// GetGate implements core.Store.
func (s *Store) GetGate(_ context.Context, name string) (core.GateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.gates[name]
	if !ok {
		return core.GateRecord{}, errors.Wrapf(core.ErrNotFound, "gate %s", name)
	}
	return rec, nil
}

// ListGates implements core.Store.
func (s *Store) ListGates(_ context.Context) ([]core.GateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.GateRecord, 0, len(s.gates))
	for _, rec := range s.gates {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteGate implements core.Store.
func (s *Store) DeleteGate(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.gates[name]
	delete(s.gates, name)
	return ok, nil
}

// Annotate implements core.Store.
func (s *Store) Annotate(_ context.Context, a core.Annotation) (core.Annotation, error) {
	if err := core.ValidateAnnotation(a); err != nil {
		return core.Annotation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	notes, ok := s.annotations[a.SampleKey]
	if !ok {
		notes = make(map[string]core.Annotation)
		s.annotations[a.SampleKey] = notes
	}
	a.CreatedAt = s.now()
	if prev, ok := notes[a.Key]; ok {
		a.CreatedAt = prev.CreatedAt
	}
	notes[a.Key] = a
	return a, nil
}

// Annotations implements core.Store.
func (s *Store) Annotations(_ context.Context, sampleKey string) ([]core.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := s.annotations[sampleKey]
	out := make([]core.Annotation, 0, len(notes))
	for _, a := range notes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close implements core.Store.
func (s *Store) Close() error { return nil }

// Snapshot is the full store state, grouped into persistence buckets.
type Snapshot struct {
	Gates       []core.GateRecord `json:"gates"`
	Annotations []core.Annotation `json:"annotations"`
}

// Buckets lists the snapshot bucket names in persistence order.
var Buckets = []string{"gates", "annotations"}

// ExportState returns a snapshot ordered by gate name and by sample then key.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap Snapshot
	for _, rec := range s.gates {
		snap.Gates = append(snap.Gates, rec)
	}
	for _, notes := range s.annotations {
		for _, a := range notes {
			snap.Annotations = append(snap.Annotations, a)
		}
	}
	sort.Slice(snap.Gates, func(i, j int) bool { return snap.Gates[i].Name < snap.Gates[j].Name })
	sort.Slice(snap.Annotations, func(i, j int) bool {
		ai, aj := snap.Annotations[i], snap.Annotations[j]
		if ai.SampleKey != aj.SampleKey {
			return ai.SampleKey < aj.SampleKey
		}
		return ai.Key < aj.Key
	})
	return snap
}

// ImportState replaces the store contents with snap.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates = make(map[string]core.GateRecord, len(snap.Gates))
	for _, rec := range snap.Gates {
		s.gates[rec.Name] = rec
	}
	s.annotations = make(map[string]map[string]core.Annotation)
	for _, a := range snap.Annotations {
		notes, ok := s.annotations[a.SampleKey]
		if !ok {
			notes = make(map[string]core.Annotation)
			s.annotations[a.SampleKey] = notes
		}
		notes[a.Key] = a
	}
}

// Encode marshals one bucket of the snapshot.
func (snap Snapshot) Encode(bucket string) ([]byte, error) {
	switch bucket {
	case "gates":
		return json.Marshal(snap.Gates)
	case "annotations":
		return json.Marshal(snap.Annotations)
	default:
		return nil, errors.Newf("unknown bucket %s", bucket)
	}
}

// Decode fills one bucket of the snapshot from payload. Unknown buckets are
// ignored.
func (snap *Snapshot) Decode(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch bucket {
	case "gates":
		err = json.Unmarshal(payload, &snap.Gates)
	case "annotations":
		err = json.Unmarshal(payload, &snap.Annotations)
	default:
		return nil
	}
	return errors.Wrapf(err, "decode %s", bucket)
}

// Mutate runs fn under mu and then persists the resulting state. When
// persisting fails the previous state is restored and the error returned.
func Mutate[T any](ctx context.Context, s *Store, mu *sync.Mutex, persist func(context.Context, Snapshot) error, fn func() (T, error)) (T, error) {
	mu.Lock()
	defer mu.Unlock()
	prev := s.ExportState()
	v, err := fn()
	if err != nil {
		return v, err
	}
	if err := persist(ctx, s.ExportState()); err != nil {
		s.ImportState(prev)
		var zero T
		return zero, err
	}
	return v, nil
}
