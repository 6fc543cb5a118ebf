// Package flowframe is the event container for one sample.
//
// A Frame pairs an event matrix with its channel descriptors, the
// compensation applied to it, the per-channel transform history and free-form
// metadata. Frames loaded from FCS data decode the DATA segment only when the
// events are first needed. Every operation returns a new Frame; the receiver
// is never modified, so frames can be shared between goroutines.
//
// A Frame satisfies matrix.Source, so gates and transforms accept it wherever
// they accept a plain matrix or table.
package flowframe

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowcore/pkg/compensation"
	"flowcore/pkg/fcs"
	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
	"flowcore/pkg/transform"
)

// Frame is an immutable view of a sample's events.
type Frame struct {
	id       string
	channels []fcs.Channel
	names    []string
	file     *fcs.File // nil for array-backed frames
	data     *cell
	rows     int
	comp     *compensation.Matrix
	history  map[string][]transform.Transform
	meta     map[string]string
	index    []int // original row of each event; nil is the identity
	log      *zap.Logger
	engine   *compensation.Engine
}

var _ matrix.Source = (*Frame)(nil)

// Option configures frame construction.
type Option func(*options)

type compMode int

const (
	compNone compMode = iota
	compExplicit
	compAuto
)

type options struct {
	id      string
	log     *zap.Logger
	comp    compMode
	matrix  *compensation.Matrix
	maxCond float64
}

// WithID overrides the default frame ID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the logger used by the frame and its parser.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithCompensation applies m when the events are materialised. A nil m
// selects the spillover matrix declared in the file and skips compensation
// when there is none.
func WithCompensation(m *compensation.Matrix) Option {
	return func(o *options) {
		if m == nil {
			o.comp = compAuto
			o.matrix = nil
			return
		}
		o.comp = compExplicit
		o.matrix = m
	}
}

// WithMaxCondition overrides compensation.DefaultMaxCondition.
func WithMaxCondition(c float64) Option {
	return func(o *options) { o.maxCond = c }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), maxCond: compensation.DefaultMaxCondition}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load parses the header and TEXT segments of the file at path. Event data
// is read on first use. The default ID is the file's base name without
// extension.
func Load(path string, opts ...Option) (*Frame, error) {
	o := buildOptions(opts)
	f, src, err := fcs.Open(path, fcs.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	if o.id == "" {
		base := filepath.Base(path)
		o.id = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return fromFile(f, src, o)
}

// LoadSource is Load for an arbitrary byte source.
func LoadSource(src fcs.Source, opts ...Option) (*Frame, error) {
	o := buildOptions(opts)
	f, err := fcs.Parse(src, fcs.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	return fromFile(f, src, o)
}

// FromFile wraps an already parsed file whose events live in src.
func FromFile(f *fcs.File, src fcs.Source, opts ...Option) (*Frame, error) {
	if f == nil || src == nil {
		return nil, flowerr.MissingDataf("frame needs a parsed file and its source")
	}
	return fromFile(f, src, buildOptions(opts))
}

func fromFile(f *fcs.File, src fcs.Source, o options) (*Frame, error) {
	fr := newFrame(o, f.Channels)
	fr.file = f
	fr.rows = f.Tot()
	m, err := resolveCompensation(f, fr.names, o)
	if err != nil {
		return nil, flowerr.Wrapf(err, "frame %s", fr.id)
	}
	fr.comp = m
	fr.data = lazy(func() (*matrix.Dense, error) {
		d, err := f.ReadData(src)
		if err != nil {
			return nil, flowerr.Wrapf(err, "frame %s", fr.id)
		}
		if m != nil {
			if d, err = fr.engine.Apply(d, fr.names, m); err != nil {
				return nil, flowerr.Wrapf(err, "frame %s", fr.id)
			}
		}
		fr.log.Debug("materialised events", zap.Int("events", f.Tot()), zap.Bool("compensated", m != nil))
		return d, nil
	})
	return fr, nil
}

// FromArray wraps an in-memory matrix. The matrix is copied.
func FromArray(data *matrix.Dense, channelNames []string, opts ...Option) (*Frame, error) {
	if data == nil {
		return nil, flowerr.MissingDataf("nil event matrix")
	}
	rows, cols := data.Shape()
	if cols != len(channelNames) {
		return nil, flowerr.Dimensionf("%d channel names for %d columns", len(channelNames), cols)
	}
	seen := make(map[string]bool, cols)
	chans := make([]fcs.Channel, cols)
	for j, n := range channelNames {
		if n == "" || seen[n] {
			return nil, flowerr.Dimensionf("channel names must be unique and non-empty, got %q", n)
		}
		seen[n] = true
		chans[j] = fcs.Channel{Index: j, ShortName: n}
	}
	o := buildOptions(opts)
	fr := newFrame(o, chans)
	fr.rows = rows
	d := data.Clone()
	if o.comp == compExplicit {
		var err error
		if d, err = fr.engine.Apply(d, fr.names, o.matrix); err != nil {
			return nil, err
		}
		fr.comp = o.matrix
	}
	fr.data = eager(d)
	return fr, nil
}

func newFrame(o options, chans []fcs.Channel) *Frame {
	id := o.id
	if id == "" {
		id = uuid.NewString()
	}
	names := make([]string, len(chans))
	for i, c := range chans {
		names[i] = c.ShortName
	}
	log := o.log.With(zap.String("frame", id))
	return &Frame{
		id:       id,
		channels: chans,
		names:    names,
		history:  map[string][]transform.Transform{},
		meta:     map[string]string{},
		log:      log,
		engine:   compensation.NewEngine(compensation.WithMaxCondition(o.maxCond), compensation.WithLogger(log)),
	}
}

func resolveCompensation(f *fcs.File, names []string, o options) (*compensation.Matrix, error) {
	var m *compensation.Matrix
	switch o.comp {
	case compNone:
		return nil, nil
	case compExplicit:
		m = o.matrix
	case compAuto:
		s, err := f.Spillover()
		if err != nil {
			return nil, err
		}
		if s == nil {
			o.log.Debug("no spillover matrix, skipping compensation")
			return nil, nil
		}
		if m, err = compensation.FromSpillover(s); err != nil {
			return nil, err
		}
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, ch := range m.Channels() {
		if !have[ch] {
			return nil, flowerr.Dimensionf("compensation channel %q not present in data", ch)
		}
	}
	return m, nil
}

// ID returns the frame identifier.
func (f *Frame) ID() string { return f.id }

// File returns the parsed FCS file backing the frame, or nil.
func (f *Frame) File() *fcs.File { return f.file }

// Keywords returns a copy of the file keywords, or nil for array frames.
func (f *Frame) Keywords() *fcs.Keywords {
	if f.file == nil {
		return nil
	}
	return f.file.Keywords()
}

// Channels returns the channel descriptors in column order.
func (f *Frame) Channels() []fcs.Channel { return append([]fcs.Channel(nil), f.channels...) }

// Compensation returns the matrix applied (or pending) on this frame, or nil.
func (f *Frame) Compensation() *compensation.Matrix { return f.comp }

// Loaded reports whether the events are in memory.
func (f *Frame) Loaded() bool { return f.data.cached() != nil }

// Data returns the event matrix, decoding it on first use. The matrix is
// shared with the frame and must not be modified; use AsArray for a copy.
func (f *Frame) Data() (*matrix.Dense, error) { return f.data.get() }

// Shape returns events x channels without materialising the events.
func (f *Frame) Shape() (int, int) { return f.rows, len(f.names) }

// Tot is the number of events.
func (f *Frame) Tot() int { return f.rows }

// ColumnNames returns the channel short names.
func (f *Frame) ColumnNames() []string { return append([]string(nil), f.names...) }

// Column returns a copy of column j.
func (f *Frame) Column(j int) ([]float64, error) {
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	return d.Column(j)
}

// ColumnIndex returns the position of the named channel.
func (f *Frame) ColumnIndex(name string) (int, error) {
	for j, n := range f.names {
		if n == name {
			return j, nil
		}
	}
	return 0, flowerr.Dimensionf("frame %s has no channel %q", f.id, name)
}

// AsArray returns a copy of the event matrix.
func (f *Frame) AsArray() (*matrix.Dense, error) {
	d, err := f.Data()
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// AsTable returns a labelled copy of the event matrix.
func (f *Frame) AsTable() (*matrix.Table, error) {
	d, err := f.AsArray()
	if err != nil {
		return nil, err
	}
	return matrix.NewTable(d, f.names)
}

// Index returns the original row of every event, so gated frames can be
// traced back to the file they came from.
func (f *Frame) Index() []int {
	if f.index != nil {
		return append([]int(nil), f.index...)
	}
	out := make([]int, f.rows)
	for i := range out {
		out[i] = i
	}
	return out
}

// Meta returns a copy of the frame metadata.
func (f *Frame) Meta() map[string]string {
	out := make(map[string]string, len(f.meta))
	for k, v := range f.meta {
		out[k] = v
	}
	return out
}

// History returns the transforms applied to channel, oldest first.
func (f *Frame) History(channel string) []transform.Spec {
	h := f.history[channel]
	out := make([]transform.Spec, len(h))
	for i, t := range h {
		out[i] = t.Spec()
	}
	return out
}

// derive copies f's descriptors onto a new frame holding data.
func (f *Frame) derive(suffix string, data *matrix.Dense) *Frame {
	rows, _ := data.Shape()
	id := f.id + "-" + suffix
	return &Frame{
		id:       id,
		channels: f.channels,
		names:    f.names,
		file:     f.file,
		data:     eager(data),
		rows:     rows,
		comp:     f.comp,
		history:  f.history,
		meta:     f.meta,
		index:    f.index,
		log:      f.log,
		engine:   f.engine,
	}
}
