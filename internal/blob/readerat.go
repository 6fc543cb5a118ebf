package blob

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

// ReaderAt exposes a stored blob as an io.ReaderAt with a known size, so FCS
// files can be parsed and lazily decoded without downloading them whole.
// Every ReadAt is one ranged read against the store.
type ReaderAt struct {
	ctx   context.Context
	store Store
	info  Info
}

// NewReaderAt heads key to learn its size. ctx bounds every later read.
func NewReaderAt(ctx context.Context, store Store, key string) (*ReaderAt, error) {
	info, err := store.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ReaderAt{ctx: ctx, store: store, info: info}, nil
}

// Size returns the blob length in bytes.
func (r *ReaderAt) Size() int64 { return r.info.Size }

// Info returns the metadata observed when the reader was created.
func (r *ReaderAt) Info() Info { return r.info }

// ReadAt implements io.ReaderAt.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Newf("blob %s: negative offset %d", r.info.Key, off)
	}
	if off >= r.info.Size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	rc, err := r.store.GetRange(r.ctx, r.info.Key, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()
	n, err := io.ReadFull(rc, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}
