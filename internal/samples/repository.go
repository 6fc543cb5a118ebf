// Package samples stores FCS files in a blob store and opens them as lazy
// frames. Headers are parsed with ranged reads and cached, so reopening a
// sample costs one Head call until its events are needed.
package samples

import (
	"bytes"
	"context"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"flowcore/internal/blob"
	"flowcore/internal/observability"
	"flowcore/pkg/fcs"
	"flowcore/pkg/flowframe"
)

// ContentType is the registered media type for FCS data.
const ContentType = "application/vnd.isac.fcs"

// DefaultHeaderCacheSize bounds the parsed-header cache.
const DefaultHeaderCacheSize = 128

// Config holds repository settings loaded from configuration.
type Config struct {
	HeaderCacheSize int `mapstructure:"header_cache_size"`
}

// Repository imports and opens samples.
type Repository struct {
	store   blob.Store
	headers *lru.Cache[string, header]
	group   singleflight.Group
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
	log     *zap.Logger
}

// header is a parsed file plus the blob version it was parsed from.
type header struct {
	file    *fcs.File
	size    int64
	etag    string
	modTime time.Time
}

func (h header) matches(info blob.Info) bool {
	return h.size == info.Size && h.etag == info.ETag && h.modTime.Equal(info.LastModified)
}

// Option configures a Repository.
type Option func(*Repository) error

// WithLogger sets the repository logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Repository) error {
		if log != nil {
			r.log = log
		}
		return nil
	}
}

// WithMetrics reports import/open/list/delete outcomes to rec.
func WithMetrics(rec observability.MetricsRecorder) Option {
	return func(r *Repository) error {
		if rec != nil {
			r.metrics = rec
		}
		return nil
	}
}

// WithTracer opens a span per operation.
func WithTracer(t observability.Tracer) Option {
	return func(r *Repository) error {
		if t != nil {
			r.tracer = t
		}
		return nil
	}
}

// WithHeaderCacheSize overrides DefaultHeaderCacheSize.
func WithHeaderCacheSize(n int) Option {
	return func(r *Repository) error {
		c, err := lru.New[string, header](n)
		if err != nil {
			return errors.Wrapf(err, "header cache size %d", n)
		}
		r.headers = c
		return nil
	}
}

// New returns a repository over store.
func New(store blob.Store, opts ...Option) (*Repository, error) {
	if store == nil {
		return nil, errors.New("samples: blob store required")
	}
	r := &Repository{
		store:   store,
		metrics: observability.NoopRecorder(),
		tracer:  observability.NoopTracer(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.headers == nil {
		r.headers, _ = lru.New[string, header](DefaultHeaderCacheSize)
	}
	return r, nil
}

// Import validates r as an FCS data set and stores it under key. Data that
// does not parse is rejected with the parser's FormatError and nothing is
// written.
func (r *Repository) Import(ctx context.Context, key string, src io.Reader) (blob.Info, error) {
	var info blob.Info
	err := observability.Instrument(ctx, r.metrics, r.tracer, "import", func(ctx context.Context) error {
		b, err := io.ReadAll(src)
		if err != nil {
			return errors.Wrapf(err, "read %s", key)
		}
		f, err := fcs.ParseBytes(b, fcs.WithLogger(r.log))
		if err != nil {
			return errors.Wrapf(err, "import %s", key)
		}
		info, err = r.store.Put(ctx, key, bytes.NewReader(b), blob.PutOptions{
			ContentType: ContentType,
			Metadata:    metadata(f),
		})
		if err != nil {
			return err
		}
		r.headers.Remove(key)
		r.log.Info("imported sample",
			zap.String("key", key),
			zap.Int("events", f.Tot()),
			zap.Int("channels", f.Par()),
			zap.String("version", f.Version()))
		return nil
	})
	return info, err
}

func metadata(f *fcs.File) map[string]string {
	md := map[string]string{
		"version": f.Version(),
		"par":     strconv.Itoa(f.Par()),
		"tot":     strconv.Itoa(f.Tot()),
	}
	if v, ok := f.Keyword("$DATATYPE"); ok {
		md["datatype"] = v
	}
	if v, ok := f.Keyword("$FIL"); ok && v != "" {
		md["fil"] = v
	}
	return md
}

// Open returns a lazy frame over the sample at key. Only the header and
// TEXT segments are read here; the events are fetched with one ranged read
// on first access. ctx also bounds that later read. The default frame ID is
// the key's base name without extension.
func (r *Repository) Open(ctx context.Context, key string, opts ...flowframe.Option) (*flowframe.Frame, error) {
	var fr *flowframe.Frame
	err := observability.Instrument(ctx, r.metrics, r.tracer, "open", func(ctx context.Context) error {
		src, err := blob.NewReaderAt(ctx, r.store, key)
		if err != nil {
			return err
		}
		f, err := r.header(key, src.Info(), src)
		if err != nil {
			return err
		}
		base := []flowframe.Option{flowframe.WithID(frameID(key)), flowframe.WithLogger(r.log)}
		fr, err = flowframe.FromFile(f, src, append(base, opts...)...)
		return err
	})
	return fr, err
}

func (r *Repository) header(key string, info blob.Info, src fcs.Source) (*fcs.File, error) {
	if h, ok := r.headers.Get(key); ok && h.matches(info) {
		return h.file, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		if h, ok := r.headers.Get(key); ok && h.matches(info) {
			return h.file, nil
		}
		f, err := fcs.Parse(src, fcs.WithLogger(r.log.With(zap.String("key", key))))
		if err != nil {
			return nil, errors.Wrapf(err, "sample %s", key)
		}
		r.headers.Add(key, header{file: f, size: info.Size, etag: info.ETag, modTime: info.LastModified})
		r.log.Debug("parsed sample header", zap.String("key", key), zap.Int("par", f.Par()))
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fcs.File), nil
}

// List returns the samples whose key starts with prefix.
func (r *Repository) List(ctx context.Context, prefix string) ([]blob.Info, error) {
	var out []blob.Info
	err := observability.Instrument(ctx, r.metrics, r.tracer, "list", func(ctx context.Context) error {
		var err error
		out, err = r.store.List(ctx, prefix)
		return err
	})
	return out, err
}

// Delete removes the sample and drops its cached header.
func (r *Repository) Delete(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := observability.Instrument(ctx, r.metrics, r.tracer, "delete", func(ctx context.Context) error {
		var err error
		ok, err = r.store.Delete(ctx, key)
		r.headers.Remove(key)
		return err
	})
	return ok, err
}

// Cached reports whether key's header is in the cache.
func (r *Repository) Cached(key string) bool { return r.headers.Contains(key) }

func frameID(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
