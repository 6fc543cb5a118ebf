// Package fcs reads and writes Flow Cytometry Standard data sets.
//
// Parse decodes the HEADER and TEXT segments only; event data stays in the
// Source until ReadData or ReadEvents is called. The parser is permissive
// where the standard is routinely violated in practice (unknown versions,
// missing $PnE, a DATA segment one byte too long) and strict where guessing
// would corrupt values (byte order, data type, bit widths).
package fcs

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"flowcore/pkg/flowerr"
)

// File is a parsed FCS data set. It is immutable once returned by Parse.
type File struct {
	Header   Header
	Channels []Channel
	Data     DataRef
	Segments Segments

	keywords *Keywords
}

// Segments are the resolved byte ranges, with TEXT keyword offsets applied
// where the header defers to them.
type Segments struct {
	Text             Segment `json:"text"`
	SupplementalText Segment `json:"supplemental_text"`
	Data             Segment `json:"data"`
	Analysis         Segment `json:"analysis"`
}

// Option configures Parse.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger routes parser warnings to log.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Version returns the header version tag, e.g. "FCS3.1".
func (f *File) Version() string { return f.Header.Version }

// Keywords returns a copy of the merged TEXT keywords.
func (f *File) Keywords() *Keywords { return f.keywords.Clone() }

// Keyword returns a single keyword value.
func (f *File) Keyword(key string) (string, bool) { return f.keywords.Get(key) }

// Par returns the number of channels.
func (f *File) Par() int { return len(f.Channels) }

// Tot returns the number of events.
func (f *File) Tot() int { return f.Data.Events }

// ChannelNames returns the $PnN names in column order.
func (f *File) ChannelNames() []string {
	out := make([]string, len(f.Channels))
	for i, c := range f.Channels {
		out[i] = c.ShortName
	}
	return out
}

// Open parses the file at path and returns it with a Source for later data
// reads.
func Open(path string, opts ...Option) (*File, *FileSource, error) {
	src, err := NewFileSource(path)
	if err != nil {
		return nil, nil, err
	}
	o := buildOptions(opts)
	f, err := Parse(src, WithLogger(o.log.With(zap.String("file", filepath.Base(path)))))
	if err != nil {
		return nil, nil, flowerr.Wrapf(err, "parse %s", path)
	}
	return f, src, nil
}

// ParseBytes parses an in-memory data set.
func ParseBytes(b []byte, opts ...Option) (*File, error) {
	return Parse(BytesSource(b), opts...)
}

// ReadFile reads and decodes a whole file eagerly.
func ReadFile(path string, opts ...Option) (*File, []byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, flowerr.WrapIO(err, "read %s", path)
	}
	f, err := ParseBytes(b, opts...)
	if err != nil {
		return nil, nil, err
	}
	return f, b, nil
}

// Parse reads the HEADER and TEXT segments of src and validates everything
// needed to decode the DATA segment later.
func Parse(src Source, opts ...Option) (*File, error) {
	o := buildOptions(opts)
	size := src.Size()
	if size < HeaderSize {
		return nil, flowerr.Formatf("stream is %d bytes, shorter than the %d byte header", size, HeaderSize)
	}
	hb, err := readFull(src, 0, HeaderSize, "header")
	if err != nil {
		return nil, err
	}
	h, err := parseHeader(hb)
	if err != nil {
		return nil, err
	}
	if !KnownVersion(h.Version) {
		o.log.Warn("unrecognised FCS version, parsing permissively", zap.String("version", h.Version))
	}

	f := &File{Header: h}
	f.Segments.Text = h.Text
	if err := checkSegment("TEXT", h.Text, size); err != nil {
		return nil, err
	}
	if h.Text.IsZero() {
		return nil, flowerr.Formatf("header declares no TEXT segment")
	}
	raw, err := readFull(src, h.Text.Begin, h.Text.Len(), "TEXT segment")
	if err != nil {
		return nil, err
	}
	kw, err := parseText(raw)
	if err != nil {
		return nil, flowerr.WrapFormat(err, "TEXT segment")
	}

	if stext, err := keywordSegment(kw, "$BEGINSTEXT", "$ENDSTEXT"); err != nil {
		return nil, err
	} else if !stext.IsZero() {
		if err := checkSegment("supplemental TEXT", stext, size); err != nil {
			return nil, err
		}
		sraw, err := readFull(src, stext.Begin, stext.Len(), "supplemental TEXT segment")
		if err != nil {
			return nil, err
		}
		skw, err := parseText(sraw)
		if err != nil {
			return nil, flowerr.WrapFormat(err, "supplemental TEXT segment")
		}
		kw.Merge(skw)
		f.Segments.SupplementalText = stext
	}
	f.keywords = kw

	if err := f.resolveLayout(o.log, size); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) resolveLayout(log *zap.Logger, size int64) error {
	kw := f.keywords
	for _, req := range []string{"$PAR", "$TOT", "$DATATYPE", "$BYTEORD", "$MODE"} {
		if !kw.Has(req) {
			return flowerr.Formatf("required keyword %s missing", req)
		}
	}
	if mode := kw.Value("$MODE"); mode != "L" {
		return flowerr.Formatf("$MODE %q not supported; only list mode (L) is", mode)
	}
	par, err := kw.Int("$PAR")
	if err != nil {
		return err
	}
	if par < 1 {
		return flowerr.Formatf("$PAR must be positive, got %d", par)
	}
	tot, err := kw.Int("$TOT")
	if err != nil {
		return err
	}
	if tot < 0 {
		return flowerr.Formatf("$TOT must not be negative, got %d", tot)
	}
	if f.Channels, err = buildChannels(kw, int(par), log); err != nil {
		return err
	}
	enc, err := buildEncoding(kw, f.Channels)
	if err != nil {
		return err
	}

	data := f.Header.Data
	if data.IsZero() {
		if data, err = keywordSegment(kw, "$BEGINDATA", "$ENDDATA"); err != nil {
			return err
		}
	}
	analysis := f.Header.Analysis
	if analysis.IsZero() {
		// analysis offsets are optional; bad ones only matter to Analysis()
		analysis, _ = keywordSegment(kw, "$BEGINANALYSIS", "$ENDANALYSIS")
	}
	f.Segments.Data = data
	f.Segments.Analysis = analysis

	bpe := int64(enc.BytesPerEvent())
	want := tot * bpe
	got := data.Len()
	switch {
	case got == want:
	case got == want+1:
		log.Debug("DATA segment is one byte longer than $TOT x $PnB implies",
			zap.Int64("declared", got), zap.Int64("expected", want))
	default:
		return flowerr.Formatf("DATA segment is %d bytes but $TOT=%d x %d bytes per event = %d",
			got, tot, bpe, want)
	}
	if want > 0 && data.Begin+want > size {
		return flowerr.Formatf("DATA segment [%d,%d] extends past end of stream (%d bytes)", data.Begin, data.End, size)
	}
	f.Data = DataRef{Offset: data.Begin, Length: want, Events: int(tot), Encoding: enc}
	return nil
}

func keywordSegment(kw *Keywords, beginKey, endKey string) (Segment, error) {
	if !kw.Has(beginKey) && !kw.Has(endKey) {
		return Segment{}, nil
	}
	b, err := kw.Int(beginKey)
	if err != nil {
		return Segment{}, err
	}
	e, err := kw.Int(endKey)
	if err != nil {
		return Segment{}, err
	}
	if b < 0 || e < 0 {
		return Segment{}, flowerr.Formatf("%s/%s must not be negative (%d, %d)", beginKey, endKey, b, e)
	}
	return Segment{Begin: b, End: e}, nil
}

func checkSegment(name string, s Segment, size int64) error {
	if s.IsZero() {
		return nil
	}
	if s.Begin < HeaderSize || s.End < s.Begin || s.End >= size {
		return flowerr.Formatf("%s segment [%d,%d] inconsistent with stream length %d", name, s.Begin, s.End, size)
	}
	return nil
}

// Analysis parses the optional ANALYSIS segment. It returns nil, nil when
// the data set has none.
func (f *File) Analysis(src Source) (*Keywords, error) {
	seg := f.Segments.Analysis
	if seg.IsZero() {
		return nil, nil
	}
	if err := checkSegment("ANALYSIS", seg, src.Size()); err != nil {
		return nil, err
	}
	raw, err := readFull(src, seg.Begin, seg.Len(), "ANALYSIS segment")
	if err != nil {
		return nil, err
	}
	kw, err := parseText(raw)
	if err != nil {
		return nil, flowerr.WrapFormat(err, "ANALYSIS segment")
	}
	return kw, nil
}
