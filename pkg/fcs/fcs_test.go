package fcs

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

func sampleRows(tot, par int) [][]float64 {
	rows := make([][]float64, tot)
	for i := range rows {
		rows[i] = make([]float64, par)
		for j := range rows[i] {
			rows[i][j] = float64(i*10+j) + 0.5
		}
	}
	return rows
}

func TestParseFloatLittleEndian(t *testing.T) {
	rows := sampleRows(100, 4)
	raw := layout{kv: floatKeywords(4, 100, "1,2,3,4"), data: float32Data(rows, binary.LittleEndian)}.build()

	f, err := ParseBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "FCS3.1", f.Version())
	assert.Equal(t, 4, f.Par())
	assert.Equal(t, 100, f.Tot())
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, f.ChannelNames())
	assert.Equal(t, int64(1600), f.Data.Length)

	m, err := f.ReadData(BytesSource(raw))
	require.NoError(t, err)
	r, c := m.Shape()
	assert.Equal(t, 100, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, rows[37], m.Row(37))

	part, err := f.ReadEvents(BytesSource(raw), 10, 12)
	require.NoError(t, err)
	assert.Equal(t, rows[10:12], part.ToRows())

	_, err = f.ReadEvents(BytesSource(raw), 90, 101)
	assert.True(t, flowerr.IsDimension(err))
}

func TestParseBigEndian(t *testing.T) {
	rows := sampleRows(3, 2)
	raw := layout{kv: floatKeywords(2, 3, "4,3,2,1"), data: float32Data(rows, binary.BigEndian)}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	m, err := f.ReadData(BytesSource(raw))
	require.NoError(t, err)
	assert.Equal(t, rows, m.ToRows())
}

func TestByteOrder(t *testing.T) {
	cases := []struct {
		in   string
		want binary.ByteOrder
		ok   bool
	}{
		{"1,2,3,4", binary.LittleEndian, true},
		{"1,2", binary.LittleEndian, true},
		{"4,3,2,1", binary.BigEndian, true},
		{"2,1", binary.BigEndian, true},
		{"1,2,3,4,5,6,7,8", binary.LittleEndian, true},
		{"3,4,1,2", nil, false},
		{"1,3,2,4", nil, false},
		{"x", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseByteOrder(tc.in)
			if !tc.ok {
				assert.True(t, flowerr.IsFormat(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIntegerMasksAndMixedWidths(t *testing.T) {
	kv := []string{
		"$PAR", "3", "$TOT", "2", "$DATATYPE", "I", "$BYTEORD", "1,2,3,4", "$MODE", "L",
		"$P1N", "a", "$P1B", "16", "$P1R", "1000", "$P1E", "0,0",
		"$P2N", "b", "$P2B", "16", "$P2R", "65536", "$P2E", "0,0",
		"$P3N", "c", "$P3B", "8", "$P3R", "256", "$P3E", "0,0",
	}
	var data []byte
	le := binary.LittleEndian
	data = le.AppendUint16(data, 0xFFFF)
	data = le.AppendUint16(data, 0xFFFF)
	data = append(data, 7)
	data = le.AppendUint16(data, 5)
	data = le.AppendUint16(data, 40000)
	data = append(data, 255)

	raw := layout{kv: kv, data: data}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Data.Encoding.BytesPerEvent())
	assert.Equal(t, []uint64{1023, 0, 0}, f.Data.Encoding.Masks)

	m, err := f.ReadData(BytesSource(raw))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1023, 65535, 7}, {5, 40000, 255}}, m.ToRows())
}

func TestRangeIncompatibleWithBits(t *testing.T) {
	kv := []string{
		"$PAR", "1", "$TOT", "0", "$DATATYPE", "I", "$BYTEORD", "1,2", "$MODE", "L",
		"$P1N", "a", "$P1B", "8", "$P1R", "1024", "$P1E", "0,0",
	}
	_, err := ParseBytes(layout{kv: kv}.build())
	assert.True(t, flowerr.IsFormat(err))
}

func TestUnsupportedLayouts(t *testing.T) {
	base := func(mut func(kv []string) []string) []byte {
		kv := floatKeywords(2, 1, "1,2,3,4")
		kv = mut(kv)
		return layout{kv: kv, data: make([]byte, 8)}.build()
	}
	set := func(key, val string) func([]string) []string {
		return func(kv []string) []string {
			for i := 0; i < len(kv); i += 2 {
				if kv[i] == key {
					kv[i+1] = val
				}
			}
			return kv
		}
	}
	drop := func(key string) func([]string) []string {
		return func(kv []string) []string {
			out := kv[:0]
			for i := 0; i < len(kv); i += 2 {
				if kv[i] != key {
					out = append(out, kv[i], kv[i+1])
				}
			}
			return out
		}
	}
	cases := map[string][]byte{
		"ascii datatype":   base(set("$DATATYPE", "A")),
		"unknown datatype": base(set("$DATATYPE", "X")),
		"histogram mode":   base(set("$MODE", "U")),
		"float not 32 bit": base(set("$P2B", "16")),
		"mixed byte order": base(set("$BYTEORD", "2,1,4,3")),
		"missing par":      base(drop("$PAR")),
		"missing name":     base(drop("$P2N")),
		"missing range":    base(drop("$P1R")),
		"tot too large":    base(set("$TOT", "3")),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBytes(raw)
			require.Error(t, err)
			assert.True(t, flowerr.IsFormat(err), "%+v", err)
		})
	}
}

func TestDoubleRequires64Bits(t *testing.T) {
	kv := []string{
		"$PAR", "1", "$TOT", "1", "$DATATYPE", "D", "$BYTEORD", "1,2,3,4", "$MODE", "L",
		"$P1N", "a", "$P1B", "32", "$P1R", "1024", "$P1E", "0,0",
	}
	_, err := ParseBytes(layout{kv: kv, data: make([]byte, 4)}.build())
	assert.True(t, flowerr.IsFormat(err))
}

func TestHeaderErrors(t *testing.T) {
	_, err := ParseBytes([]byte("FCS3.1    "))
	assert.True(t, flowerr.IsFormat(err))

	raw := layout{version: "XYZ1.0", kv: floatKeywords(1, 0, "1,2,3,4")}.build()
	_, err = ParseBytes(raw)
	assert.True(t, flowerr.IsFormat(err))

	raw = layout{kv: floatKeywords(1, 0, "1,2,3,4")}.build()
	copy(raw[10:18], []byte("   99999"))
	_, err = ParseBytes(raw)
	assert.True(t, flowerr.IsFormat(err), "text offsets beyond stream")
}

func TestBlankAndMinusOneOffsets(t *testing.T) {
	v, err := parseOffsetField([]byte("        "))
	require.NoError(t, err)
	assert.Zero(t, v)
	v, err = parseOffsetField([]byte("      -1"))
	require.NoError(t, err)
	assert.Zero(t, v)
	_, err = parseOffsetField([]byte("     abc"))
	assert.True(t, flowerr.IsFormat(err))
}

func TestUnknownVersionWarns(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	raw := layout{version: "FCS9.9", kv: floatKeywords(1, 1, "1,2,3,4"), data: make([]byte, 4)}.build()
	f, err := ParseBytes(raw, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(t, "FCS9.9", f.Version())
	assert.Equal(t, 1, logs.FilterMessageSnippet("unrecognised FCS version").Len())

	core, logs = observer.New(zap.DebugLevel)
	raw = layout{version: "FCS3.0", kv: floatKeywords(1, 1, "1,2,3,4"), data: make([]byte, 4)}.build()
	_, err = ParseBytes(raw, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}

func TestMissingAmplificationDefaultsToLinear(t *testing.T) {
	kv := []string{
		"$PAR", "1", "$TOT", "1", "$DATATYPE", "F", "$BYTEORD", "1,2,3,4", "$MODE", "L",
		"$P1N", "FSC-A", "$P1B", "32", "$P1R", "1024",
	}
	core, logs := observer.New(zap.DebugLevel)
	f, err := ParseBytes(layout{kv: kv, data: make([]byte, 4)}.build(), WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(t, Amplification{}, f.Channels[0].Amplification)
	assert.False(t, f.Channels[0].Amplification.IsLog())
	assert.Equal(t, 1, logs.FilterMessageSnippet("amplification").Len())
}

func TestTextSegment(t *testing.T) {
	kw, err := parseText([]byte("/$P1N/a//b/$p1s/long name/"))
	require.NoError(t, err)
	assert.Equal(t, "a/b", kw.Value("$P1N"))
	assert.Equal(t, "long name", kw.Value("$P1S"), "keys are case-insensitive")
	assert.Equal(t, []string{"$P1N", "$P1S"}, kw.Keys())

	kw, err = parseText([]byte("|A|1|B|2|"))
	require.NoError(t, err)
	assert.Equal(t, "2", kw.Value("b"))

	for name, raw := range map[string]string{
		"odd tokens":     "/A/1/B/",
		"empty keyword":  "//A/1/",
		"no final delim": "/A/1/B/2",
		"too short":      "/",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseText([]byte(raw))
			assert.True(t, flowerr.IsFormat(err))
		})
	}
}

func TestDataOffsetsFromText(t *testing.T) {
	rows := sampleRows(5, 2)
	raw := layout{kv: floatKeywords(2, 5, "1,2,3,4"), data: float32Data(rows, binary.LittleEndian), textOnly: true}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	assert.True(t, f.Header.Data.IsZero())
	assert.False(t, f.Segments.Data.IsZero())
	m, err := f.ReadData(BytesSource(raw))
	require.NoError(t, err)
	assert.Equal(t, rows, m.ToRows())

	raw = layout{kv: floatKeywords(2, 5, "1,2,3,4"), data: float32Data(rows, binary.LittleEndian), textOnly: true, noDataKeys: true}.build()
	_, err = ParseBytes(raw)
	assert.True(t, flowerr.IsFormat(err))
}

func TestDataLengthTolerance(t *testing.T) {
	rows := sampleRows(2, 1)
	data := float32Data(rows, binary.LittleEndian)

	core, logs := observer.New(zap.DebugLevel)
	raw := layout{kv: floatKeywords(1, 2, "1,2,3,4"), data: data, declaredLen: len(data) + 1}.build()
	f, err := ParseBytes(raw, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(t, int64(8), f.Data.Length)
	assert.Equal(t, 1, logs.FilterMessageSnippet("one byte longer").Len())

	raw = layout{kv: floatKeywords(1, 2, "1,2,3,4"), data: data, declaredLen: len(data) + 2}.build()
	_, err = ParseBytes(raw)
	assert.True(t, flowerr.IsFormat(err))
}

func TestTruncatedDataIsIOError(t *testing.T) {
	rows := sampleRows(10, 2)
	raw := layout{kv: floatKeywords(2, 10, "1,2,3,4"), data: float32Data(rows, binary.LittleEndian)}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	_, err = f.ReadData(BytesSource(raw[:len(raw)-10]))
	require.Error(t, err)
	assert.True(t, flowerr.IsIO(err))
}

func TestSupplementalTextMerged(t *testing.T) {
	kv := append(floatKeywords(1, 1, "1,2,3,4"), "$CYT", "primary")
	raw := layout{kv: kv, data: make([]byte, 4), stext: "/$CYT/supplemental/$OP/someone/"}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "primary", f.Keywords().Value("$CYT"))
	assert.Equal(t, "someone", f.Keywords().Value("$OP"))
	assert.False(t, f.Segments.SupplementalText.IsZero())
}

func TestAnalysisSegment(t *testing.T) {
	raw := layout{kv: floatKeywords(1, 1, "1,2,3,4"), data: make([]byte, 4), analysis: "/GATE1/12/"}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	a, err := f.Analysis(BytesSource(raw))
	require.NoError(t, err)
	assert.Equal(t, "12", a.Value("gate1"))

	bad := layout{kv: floatKeywords(1, 1, "1,2,3,4"), data: make([]byte, 4), analysis: "/GATE1/12"}.build()
	f, err = ParseBytes(bad)
	require.NoError(t, err, "a broken analysis segment must not fail parsing")
	_, err = f.Analysis(BytesSource(bad))
	assert.True(t, flowerr.IsFormat(err))

	plain := layout{kv: floatKeywords(1, 1, "1,2,3,4"), data: make([]byte, 4)}.build()
	f, err = ParseBytes(plain)
	require.NoError(t, err)
	a, err = f.Analysis(BytesSource(plain))
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestSpillover(t *testing.T) {
	kv := append(floatKeywords(2, 1, "1,2,3,4"), "$SPILL", "2,c1,c2,1,0.1,0.2,1")
	raw := layout{kv: kv, data: make([]byte, 8)}.build()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	s, err := f.Spillover()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "$SPILL", s.Keyword)
	assert.Equal(t, []string{"c1", "c2"}, s.Channels)
	assert.Equal(t, [][]float64{{1, 0.1}, {0.2, 1}}, s.Values.ToRows())

	none, err := SpilloverFromKeywords(KeywordsFromPairs("$PAR", "2"))
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = ParseSpillover("2,a,b,1,0")
	assert.True(t, flowerr.IsFormat(err))
	_, err = ParseSpillover("x,a")
	assert.True(t, flowerr.IsFormat(err))

	_, err = FormatSpillover([]string{"a"}, matrix.Identity(1))
	assert.True(t, flowerr.IsDimension(err))
}

func TestWriteRoundTrip(t *testing.T) {
	rows := [][]float64{{1, 2.5, 100}, {3, 4.25, 2000}, {5, 6, 70000}}
	data, err := matrix.NewFromRows(rows)
	require.NoError(t, err)
	sp, _ := matrix.NewFromRows([][]float64{{1, 0.1}, {0.2, 1}})

	var buf bytes.Buffer
	err = Write(&buf, []string{"FSC-A", "FL1-A", "FL2/A"}, data, WriteOptions{
		DataType:  Double,
		ByteOrder: binary.BigEndian,
		Keywords:  KeywordsFromPairs("$PnE", "0,0", "$P2S", "CD4 / FITC", "$TOT", "999"),
		Spillover: &Spillover{Channels: []string{"FL1-A", "FL2/A"}, Values: sp},
	})
	require.NoError(t, err)

	raw := buf.Bytes()
	f, err := ParseBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "FCS3.1", f.Version())
	assert.Equal(t, int64(256), f.Segments.Text.Begin)
	assert.Equal(t, []string{"FSC-A", "FL1-A", "FL2/A"}, f.ChannelNames())
	assert.Equal(t, "CD4 / FITC", f.Channels[1].LongName)
	assert.Equal(t, "3", f.Keywords().Value("$TOT"), "reserved keywords come from the data")
	assert.Len(t, f.Keywords().Value("$BEGINDATA"), 12)
	// column maxima 5, 6, 70000: mean log2 ≈ 7.0
	assert.Equal(t, int64(128), f.Channels[0].Range)
	assert.Equal(t, binary.BigEndian, f.Data.Encoding.Order)

	m, err := f.ReadData(BytesSource(raw))
	require.NoError(t, err)
	assert.Equal(t, rows, m.ToRows())

	s, err := f.Spillover()
	require.NoError(t, err)
	assert.Equal(t, []string{"FL1-A", "FL2/A"}, s.Channels)
	assert.True(t, s.Values.EqualApprox(sp, 0))

	assert.Empty(t, filterMissing(ValidateKeywords(f.Keywords())))
}

func filterMissing(fs []Finding) []Finding {
	var out []Finding
	for _, f := range fs {
		if f.Message != "required keyword missing" {
			out = append(out, f)
		}
	}
	return out
}

func TestWriteRejectsBadInput(t *testing.T) {
	data := matrix.New(1, 2)
	var buf bytes.Buffer
	assert.True(t, flowerr.IsFormat(Write(&buf, []string{"a", "a"}, data, WriteOptions{})))
	assert.True(t, flowerr.IsFormat(Write(&buf, []string{"a", "b,c"}, data, WriteOptions{})))
	assert.True(t, flowerr.IsDimension(Write(&buf, []string{"a"}, data, WriteOptions{})))
	assert.True(t, flowerr.IsFormat(Write(&buf, []string{"a", "b"}, data, WriteOptions{Delimiter: '$'})))
	assert.True(t, flowerr.IsFormat(Write(&buf, []string{"a", "b"}, data, WriteOptions{DataType: Integer})))
}

func TestEstimateRange(t *testing.T) {
	d, _ := matrix.NewFromRows([][]float64{{1000, 250000}, {10, 100000}})
	// log2(1000)≈9.97, log2(250000)≈17.93, mean≈13.95
	assert.Equal(t, int64(1<<14), EstimateRange(d))
	assert.Equal(t, int64(1<<18), EstimateRange(matrix.New(0, 2)))
}

func TestValidateKeywords(t *testing.T) {
	kw := KeywordsFromPairs(
		"$PAR", "1", "$P1N", "a", "$P1B", "x32", "$FOO", "1", "$DATE", "01-Jan-2020", "CUSTOM", "ok",
	)
	findings := ValidateKeywords(kw)
	byKey := map[string][]string{}
	for _, f := range findings {
		byKey[f.Keyword] = append(byKey[f.Keyword], f.Message)
	}
	assert.Contains(t, byKey, "$FOO")
	assert.Contains(t, byKey, "$P1B")
	assert.Contains(t, byKey, "$P1R")
	assert.Contains(t, byKey, "$TOT")
	assert.NotContains(t, byKey, "$DATE")
	assert.NotContains(t, byKey, "CUSTOM")

	assert.Equal(t, "$PnB", CanonicalKeyword("$P12B"))
	assert.Equal(t, "$CSVnFLAG", CanonicalKeyword("$csv3flag"))
	assert.Equal(t, "", CanonicalKeyword("$NOPE"))
}

func TestOpenFileSource(t *testing.T) {
	rows := sampleRows(4, 2)
	raw := layout{kv: floatKeywords(2, 4, "1,2,3,4"), data: float32Data(rows, binary.LittleEndian)}.build()
	path := filepath.Join(t.TempDir(), "sample.fcs")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	f, src, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Path())
	m, err := f.ReadData(src)
	require.NoError(t, err)
	assert.Equal(t, rows, m.ToRows())

	require.NoError(t, os.Remove(path))
	_, err = f.ReadData(src)
	require.Error(t, err)
	assert.True(t, flowerr.IsIO(err))
	assert.True(t, flowerr.Is(err, fs.ErrNotExist))

	_, _, err = Open(path)
	assert.True(t, flowerr.IsIO(err))
}
