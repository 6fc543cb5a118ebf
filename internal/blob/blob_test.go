package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/pkg/fcs"
	"flowcore/pkg/matrix"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewMockS3ForTests(),
	}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "runs/a.fcs", strings.NewReader("0123456789"), PutOptions{
				ContentType: "application/vnd.isac.fcs",
				Metadata:    map[string]string{"par": "3"},
			})
			require.NoError(t, err)
			assert.Equal(t, "runs/a.fcs", info.Key)
			assert.Equal(t, int64(10), info.Size)

			_, err = s.Put(ctx, "runs/a.fcs", strings.NewReader("x"), PutOptions{})
			assert.True(t, errors.Is(err, ErrExists), "%v", err)

			head, err := s.Head(ctx, "runs/a.fcs")
			require.NoError(t, err)
			assert.Equal(t, int64(10), head.Size)
			assert.Equal(t, "application/vnd.isac.fcs", head.ContentType)
			if s.Driver() != DriverS3 {
				assert.Equal(t, "3", head.Metadata["par"])
			}

			got, rc, err := s.Get(ctx, "runs/a.fcs")
			require.NoError(t, err)
			assert.Equal(t, int64(10), got.Size)
			assert.Equal(t, "0123456789", readAll(t, rc))

			_, _, err = s.Get(ctx, "runs/missing.fcs")
			assert.True(t, errors.Is(err, ErrNotFound), "%v", err)
			_, err = s.Head(ctx, "runs/missing.fcs")
			assert.True(t, errors.Is(err, ErrNotFound), "%v", err)

			_, err = s.Put(ctx, "runs/b.fcs", strings.NewReader("b"), PutOptions{})
			require.NoError(t, err)
			_, err = s.Put(ctx, "other/c.fcs", strings.NewReader("c"), PutOptions{})
			require.NoError(t, err)
			list, err := s.List(ctx, "runs/")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "runs/a.fcs", list[0].Key)
			assert.Equal(t, "runs/b.fcs", list[1].Key)
			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			ok, err := s.Delete(ctx, "runs/b.fcs")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Delete(ctx, "runs/b.fcs")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestGetRange(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		off, n int64
		want   string
	}{
		{0, 10, "0123456789"},
		{2, 3, "234"},
		{8, 10, "89"},
		{9, 1, "9"},
		{10, 5, ""},
		{20, 1, ""},
		{4, 0, ""},
	}
	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Put(ctx, "k", strings.NewReader("0123456789"), PutOptions{})
			require.NoError(t, err)
			for _, tc := range cases {
				rc, err := s.GetRange(ctx, "k", tc.off, tc.n)
				require.NoError(t, err, "off=%d n=%d", tc.off, tc.n)
				assert.Equal(t, tc.want, readAll(t, rc), "off=%d n=%d", tc.off, tc.n)
			}
			_, err = s.GetRange(ctx, "k", -1, 2)
			assert.Error(t, err)
			_, err = s.GetRange(ctx, "nope", 0, 2)
			assert.True(t, errors.Is(err, ErrNotFound), "%v", err)
		})
	}
}

func TestReaderAtParsesFCS(t *testing.T) {
	ctx := context.Background()
	d, err := matrix.NewFromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, fcs.Write(&buf, []string{"FSC", "SSC"}, d, fcs.WriteOptions{}))

	for name, s := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Put(ctx, "tube.fcs", bytes.NewReader(buf.Bytes()), PutOptions{})
			require.NoError(t, err)
			ra, err := NewReaderAt(ctx, s, "tube.fcs")
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), ra.Size())

			f, err := fcs.Parse(ra)
			require.NoError(t, err)
			assert.Equal(t, []string{"FSC", "SSC"}, f.ChannelNames())
			got, err := f.ReadData(ra)
			require.NoError(t, err)
			assert.Equal(t, d.ToRows(), got.ToRows())

			p := make([]byte, 8)
			n, err := ra.ReadAt(p, ra.Size()-4)
			assert.Equal(t, 4, n)
			assert.ErrorIs(t, err, io.EOF)
			_, err = ra.ReadAt(p, ra.Size())
			assert.ErrorIs(t, err, io.EOF)
		})
	}

	_, err = NewReaderAt(ctx, NewMemory(), "absent")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	stores := drivers(t)

	_, err := stores["memory"].PresignURL(ctx, "k", SignedURLOptions{})
	assert.ErrorIs(t, err, ErrUnsupported)

	u, err := stores["fs"].PresignURL(ctx, "runs/a.fcs", SignedURLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "http://local.blob/runs/a.fcs", u)
	_, err = stores["fs"].PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, ErrUnsupported)

	u, err = stores["s3"].PresignURL(ctx, "runs/a.fcs", SignedURLOptions{})
	require.NoError(t, err)
	assert.Contains(t, u, "mock.s3.local")
	assert.Contains(t, u, "X-Amz-Signature")
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/b.meta"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err, "bucket required")

	s, err = Open(ctx, Config{Driver: DriverS3, S3: S3Config{Bucket: "b", Region: "eu-west-1", Endpoint: "http://localhost:9000", PathStyle: true, AccessKeyID: "a", SecretAccessKey: "s"}})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, s.Driver())

	_, err = Open(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}
