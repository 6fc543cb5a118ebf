package samples

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"flowcore/internal/blob"
	"flowcore/internal/observability"
	"flowcore/pkg/fcs"
	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

type countingStore struct {
	blob.Store
	ranges atomic.Int64
}

func (c *countingStore) GetRange(ctx context.Context, key string, off, n int64) (io.ReadCloser, error) {
	c.ranges.Add(1)
	return c.Store.GetRange(ctx, key, off, n)
}

var events = [][]float64{{120, 3, 400}, {340, 8, 90}, {560, 1, 15}, {780, 9, 2200}}

func encode(t *testing.T, names []string) []byte {
	t.Helper()
	d, err := matrix.NewFromRows(events)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, fcs.Write(&buf, names, d, fcs.WriteOptions{
		DataType: fcs.Double,
		Keywords: fcs.KeywordsFromPairs("$FIL", "tube-3.fcs"),
	}))
	return buf.Bytes()
}

func TestImportAndOpen(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: blob.NewMemory()}
	core, logs := observer.New(zapcore.InfoLevel)
	rec := observability.NewExpvarRecorder("")
	repo, err := New(store, WithLogger(zap.New(core)), WithMetrics(rec))
	require.NoError(t, err)

	info, err := repo.Import(ctx, "runs/2024-03/tube-3.fcs", bytes.NewReader(encode(t, []string{"FSC", "SSC", "CD4"})))
	require.NoError(t, err)
	assert.Equal(t, ContentType, info.ContentType)
	assert.Equal(t, "3", info.Metadata["par"])
	assert.Equal(t, "4", info.Metadata["tot"])
	assert.Equal(t, "D", info.Metadata["datatype"])
	assert.Equal(t, "tube-3.fcs", info.Metadata["fil"])
	require.Equal(t, 1, logs.FilterMessage("imported sample").Len())

	store.ranges.Store(0)
	fr, err := repo.Open(ctx, "runs/2024-03/tube-3.fcs")
	require.NoError(t, err)
	assert.Equal(t, "tube-3", fr.ID())
	assert.Equal(t, []string{"FSC", "SSC", "CD4"}, fr.ColumnNames())
	assert.False(t, fr.Loaded())
	headerReads := store.ranges.Load()
	assert.Positive(t, headerReads)

	d, err := fr.Data()
	require.NoError(t, err)
	assert.Equal(t, events, d.ToRows())
	assert.Equal(t, headerReads+1, store.ranges.Load(), "events come from one ranged read")

	assert.True(t, repo.Cached("runs/2024-03/tube-3.fcs"))
	store.ranges.Store(0)
	again, err := repo.Open(ctx, "runs/2024-03/tube-3.fcs")
	require.NoError(t, err)
	assert.Zero(t, store.ranges.Load(), "cached header needs no ranged reads")
	assert.NotSame(t, fr, again)

	snap := rec.Snapshot()
	assert.Equal(t, int64(1), snap.Results["import"]["success"])
	assert.Equal(t, int64(2), snap.Results["open"]["success"])
}

func TestImportRejectsNonFCS(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	repo, err := New(store)
	require.NoError(t, err)

	_, err = repo.Import(ctx, "notes.txt", strings.NewReader("these are not events"))
	require.Error(t, err)
	assert.True(t, flowerr.IsFormat(err), "%v", err)
	list, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	b := encode(t, []string{"FSC", "SSC", "CD4"})
	_, err = repo.Import(ctx, "a.fcs", bytes.NewReader(b))
	require.NoError(t, err)
	_, err = repo.Import(ctx, "a.fcs", bytes.NewReader(b))
	assert.True(t, errors.Is(err, blob.ErrExists))
}

func TestConcurrentOpensParseOnce(t *testing.T) {
	ctx := context.Background()
	b := encode(t, []string{"FSC", "SSC", "CD4"})

	single := &countingStore{Store: blob.NewMemory()}
	r1, err := New(single)
	require.NoError(t, err)
	_, err = r1.Import(ctx, "k.fcs", bytes.NewReader(b))
	require.NoError(t, err)
	single.ranges.Store(0)
	_, err = r1.Open(ctx, "k.fcs")
	require.NoError(t, err)
	onceCost := single.ranges.Load()

	shared := &countingStore{Store: blob.NewMemory()}
	r2, err := New(shared)
	require.NoError(t, err)
	_, err = r2.Import(ctx, "k.fcs", bytes.NewReader(b))
	require.NoError(t, err)
	shared.ranges.Store(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fr, err := r2.Open(ctx, "k.fcs")
			assert.NoError(t, err)
			assert.Equal(t, "k", fr.ID())
		}()
	}
	wg.Wait()
	assert.Equal(t, onceCost, shared.ranges.Load())
}

func TestDeleteDropsCachedHeader(t *testing.T) {
	ctx := context.Background()
	repo, err := New(blob.NewMemory(), WithHeaderCacheSize(4))
	require.NoError(t, err)

	_, err = repo.Import(ctx, "k.fcs", bytes.NewReader(encode(t, []string{"FSC", "SSC", "CD4"})))
	require.NoError(t, err)
	_, err = repo.Open(ctx, "k.fcs")
	require.NoError(t, err)

	ok, err := repo.Delete(ctx, "k.fcs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, repo.Cached("k.fcs"))

	_, err = repo.Import(ctx, "k.fcs", bytes.NewReader(encode(t, []string{"FSC", "SSC", "CD8"})))
	require.NoError(t, err)
	fr, err := repo.Open(ctx, "k.fcs")
	require.NoError(t, err)
	assert.Equal(t, "CD8", fr.ColumnNames()[2])

	_, err = repo.Open(ctx, "missing.fcs")
	assert.True(t, errors.Is(err, blob.ErrNotFound))
}

func TestOpenOverS3(t *testing.T) {
	ctx := context.Background()
	tr := observability.NewJSONTracer(nil)
	repo, err := New(blob.NewMockS3ForTests(), WithTracer(tr))
	require.NoError(t, err)

	_, err = repo.Import(ctx, "plate1/A01.fcs", bytes.NewReader(encode(t, []string{"FSC", "SSC", "CD4"})))
	require.NoError(t, err)
	list, err := repo.List(ctx, "plate1/")
	require.NoError(t, err)
	require.Len(t, list, 1)

	fr, err := repo.Open(ctx, "plate1/A01.fcs")
	require.NoError(t, err)
	d, err := fr.Data()
	require.NoError(t, err)
	assert.Equal(t, events, d.ToRows())

	ops := []string{}
	for _, e := range tr.Entries() {
		ops = append(ops, e.Operation)
	}
	assert.Equal(t, []string{"import", "list", "open"}, ops)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(blob.NewMemory(), WithHeaderCacheSize(0))
	assert.Error(t, err)
}
