package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	rec := NewExpvarRecorder("")
	var buf bytes.Buffer
	tr := NewJSONTracer(&buf)

	require.NoError(t, Instrument(ctx, rec, tr, "open", func(context.Context) error { return nil }))
	boom := errors.New("boom")
	err := Instrument(ctx, rec, tr, "open", func(context.Context) error { return boom })
	assert.Same(t, boom, err)

	snap := rec.Snapshot()
	assert.Equal(t, int64(1), snap.Results["open"]["success"])
	assert.Equal(t, int64(1), snap.Results["open"]["error"])
	assert.GreaterOrEqual(t, snap.DurationsMS["open"], 0.0)

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "boom", entries[1].Error)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var e TraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, "error", e.Status)
}

func TestInstrumentNilCollaborators(t *testing.T) {
	called := false
	err := Instrument(context.Background(), nil, nil, "noop", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestExpvarPublished(t *testing.T) {
	rec := NewExpvarRecorder("flowcore_test_metrics")
	rec.Observe(context.Background(), "import", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)
	v := expvar.Get("flowcore_test_metrics")
	require.NotNil(t, v)
	var snap ExpvarSnapshot
	require.NoError(t, json.Unmarshal([]byte(v.String()), &snap))
	assert.InDelta(t, 2.0, snap.DurationsMS["import"], 1e-9)
	assert.Len(t, snap.Results, 1)
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg, "")
	require.NoError(t, err)
	all := Multi(rec, nil, NoopRecorder())

	all.Observe(context.Background(), "open", true, 10*time.Millisecond)
	all.Observe(context.Background(), "open", false, time.Millisecond)
	all.Observe(context.Background(), "open", true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.operations.WithLabelValues("open", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("open", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration))

	_, err = NewPrometheusRecorder(reg, "")
	assert.Error(t, err, "duplicate registration")
	_, err = NewPrometheusRecorder(nil, "x")
	assert.Error(t, err)
}

func TestSpanEndsOnce(t *testing.T) {
	tr := NewJSONTracer(nil)
	_, span := tr.Start(context.Background(), "x")
	span.End(nil)
	span.End(errors.New("late"))
	require.Len(t, tr.Entries(), 1)
	assert.Empty(t, tr.Entries()[0].Error)
}
