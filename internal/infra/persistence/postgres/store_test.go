package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/catalog/core"
	"flowcore/internal/infra/persistence/postgres/testutil"
	"flowcore/pkg/gate"
)

func withStub(t *testing.T) *testutil.StubConn {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driverName)
		return db, nil
	})
	t.Cleanup(restore)
	return conn
}

func quadrantRecord(t *testing.T) core.GateRecord {
	t.Helper()
	g, err := gate.NewQuadrant([]string{"CD4", "CD8"}, []float64{100, 200}, "+-")
	require.NoError(t, err)
	spec, err := gate.Describe(g)
	require.NoError(t, err)
	return core.GateRecord{Name: "cd4-single", Spec: spec}
}

func TestStoreSnapshotsBuckets(t *testing.T) {
	ctx := context.Background()
	conn := withStub(t)
	s, err := New(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, core.DriverPostgres, s.Driver())
	assert.Contains(t, conn.Execs[0], "CREATE TABLE IF NOT EXISTS state")

	_, err = s.PutGate(ctx, quadrantRecord(t))
	require.NoError(t, err)
	_, err = s.Annotate(ctx, core.Annotation{SampleKey: "k", Key: "panel", Value: "T"})
	require.NoError(t, err)

	require.Len(t, conn.State, 2, "one row per bucket after upserts")
	var gates []core.GateRecord
	require.NoError(t, json.Unmarshal(conn.State["gates"], &gates))
	require.Len(t, gates, 1)
	assert.Equal(t, "+-", gates[0].Spec.Region)
}

func TestStoreHydratesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	conn := withStub(t)
	payload, err := json.Marshal([]core.GateRecord{quadrantRecord(t)})
	require.NoError(t, err)
	conn.State["gates"] = payload
	conn.State["annotations"] = []byte(`[{"sample_key":"k","key":"donor","value":"D3"}]`)
	s, err := New(ctx, "postgres://example/flowcore")
	require.NoError(t, err)
	rec, err := s.GetGate(ctx, "cd4-single")
	require.NoError(t, err)
	assert.Equal(t, gate.KindQuadrant, rec.Spec.Kind)
	notes, err := s.Annotations(ctx, "k")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "D3", notes[0].Value)
}

func TestStoreRollsBackOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	conn := withStub(t)
	s, err := New(ctx, "")
	require.NoError(t, err)
	_, err = s.Annotate(ctx, core.Annotation{SampleKey: "k", Key: "panel", Value: "T"})
	require.NoError(t, err)
	before := conn.State["gates"]

	conn.FailCommit = true
	_, err = s.PutGate(ctx, quadrantRecord(t))
	require.Error(t, err)
	_, err = s.GetGate(ctx, "cd4-single")
	assert.True(t, errors.Is(err, core.ErrNotFound), "memory state restored")
	assert.Equal(t, before, conn.State["gates"], "uncommitted upsert discarded")

	conn.FailCommit = false
	conn.FailExec = true
	_, err = s.DeleteGate(ctx, "cd4-single")
	assert.Error(t, err)
}

func TestNewFailures(t *testing.T) {
	ctx := context.Background()

	conn := withStub(t)
	conn.FailPing = true
	_, err := New(ctx, "")
	assert.Error(t, err, "ping fails")

	conn = withStub(t)
	conn.FailExec = true
	_, err = New(ctx, "")
	assert.ErrorContains(t, err, "ensure state table")

	conn = withStub(t)
	conn.RowsErr = errors.New("network reset")
	_, err = New(ctx, "")
	assert.ErrorContains(t, err, "iterate state")

	conn = withStub(t)
	conn.State["gates"] = []byte("{")
	_, err = New(ctx, "")
	assert.Error(t, err, "corrupt snapshot")

	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	_, err = New(ctx, "")
	assert.Error(t, err)
}
