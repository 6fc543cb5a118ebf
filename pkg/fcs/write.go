package fcs

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

const (
	writeTextOffset  = 256
	dataOffsetDigits = 12
	maxHeaderOffset  = 99_999_999
)

// reserved keywords are derived from the Write arguments; caller values are
// ignored with a warning.
var reserved = map[string]bool{
	"$PnN": true, "$DATATYPE": true, "$TOT": true, "$BEGINSTEXT": true,
	"$BEGINDATA": true, "$BEGINANALYSIS": true, "$ENDSTEXT": true, "$ENDDATA": true,
	"$ENDANALYSIS": true, "$BYTEORD": true, "$PAR": true, "$MODE": true,
	"$NEXTDATA": true, "$PnB": true,
}

// WriteOptions control Write. The zero value writes little-endian float32
// data with '/' as delimiter.
type WriteOptions struct {
	Delimiter byte
	DataType  DataType // Float or Double
	ByteOrder binary.ByteOrder
	// Keywords are extra TEXT keywords. A generic $Pn keyword (e.g. "$PnE")
	// applies to every channel.
	Keywords *Keywords
	// Spillover, when set, is written as $SPILLOVER.
	Spillover *Spillover
	Logger    *zap.Logger
}

// Write encodes data as an FCS 3.1 data set. channels are the $PnN short
// names and must be unique, printable and free of commas.
func Write(w io.Writer, channels []string, data *matrix.Dense, opts WriteOptions) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	delim := opts.Delimiter
	if delim == 0 {
		delim = '/'
	}
	if !ValidDelimiter(delim) {
		return flowerr.Formatf("invalid delimiter %q", delim)
	}
	dt := opts.DataType
	if dt == 0 {
		dt = Float
	}
	if dt != Float && dt != Double {
		return flowerr.Formatf("can only write $DATATYPE F or D, not %s", dt)
	}
	order := opts.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}

	tot, par := data.Shape()
	if par != len(channels) {
		return flowerr.Dimensionf("%d channel names for %d data columns", len(channels), par)
	}
	seen := make(map[string]bool, par)
	for _, name := range channels {
		if name == "" || !IsPrintable(name) || strings.Contains(name, ",") {
			return flowerr.Formatf("invalid channel name %q", name)
		}
		if seen[name] {
			return flowerr.Formatf("channel name %q occurs more than once", name)
		}
		seen[name] = true
	}

	text, err := userKeywords(opts.Keywords, par, delim, log)
	if err != nil {
		return err
	}

	bits := 32
	if dt == Double {
		bits = 64
	}
	byteord := "1,2,3,4"
	if order == binary.BigEndian {
		byteord = "4,3,2,1"
	}
	text.Set("$BYTEORD", byteord)
	text.Set("$DATATYPE", dt.String())
	text.Set("$MODE", "L")
	text.Set("$NEXTDATA", "0")
	text.Set("$PAR", strconv.Itoa(par))
	text.Set("$TOT", strconv.Itoa(tot))
	text.Set("$BEGINANALYSIS", "0")
	text.Set("$ENDANALYSIS", "0")
	text.Set("$BEGINSTEXT", "0")
	text.Set("$ENDSTEXT", "0")
	for i, name := range channels {
		text.Set(ParamKey(i+1, "B"), strconv.Itoa(bits))
		text.Set(ParamKey(i+1, "N"), name)
	}
	placeholder := strings.Repeat("0", dataOffsetDigits)
	text.Set("$BEGINDATA", placeholder)
	text.Set("$ENDDATA", placeholder)

	if opts.Spillover != nil {
		if text.Has("$SPILLOVER") {
			log.Warn("overwriting $SPILLOVER keyword")
		}
		sp, err := FormatSpillover(opts.Spillover.Channels, opts.Spillover.Values)
		if err != nil {
			return err
		}
		text.Set("$SPILLOVER", sp)
	}

	rng := strconv.FormatInt(EstimateRange(data), 10)
	for i := 0; i < par; i++ {
		text.SetDefault(ParamKey(i+1, "E"), "0,0")
		text.SetDefault(ParamKey(i+1, "R"), rng)
	}

	textLen := int64(1)
	for _, k := range text.Keys() {
		textLen += 2 + int64(len(escape(k, delim))) + int64(len(escape(text.Value(k), delim)))
	}
	textBegin := int64(writeTextOffset)
	textEnd := textBegin + textLen - 1
	if textEnd > maxHeaderOffset {
		return flowerr.Formatf("TEXT segment of %d bytes does not fit the header offsets", textLen)
	}
	dataBegin := textEnd + 1
	dataLen := int64(tot) * int64(par) * int64(bits/8)
	dataEnd := dataBegin + dataLen - 1
	if dataLen == 0 {
		dataEnd = dataBegin
	}
	text.Set("$BEGINDATA", fmt.Sprintf("%0*d", dataOffsetDigits, dataBegin))
	text.Set("$ENDDATA", fmt.Sprintf("%0*d", dataOffsetDigits, dataEnd))

	bw := bufio.NewWriter(w)
	hdr := fmt.Sprintf("FCS3.1    %8d%8d", textBegin, textEnd)
	if dataEnd <= maxHeaderOffset && dataLen > 0 {
		hdr += fmt.Sprintf("%8d%8d", dataBegin, dataEnd)
	} else {
		hdr += fmt.Sprintf("%8d%8d", 0, 0)
	}
	hdr += fmt.Sprintf("%8d%8d", 0, 0)
	hdr += strings.Repeat(" ", writeTextOffset-len(hdr))
	if _, err := bw.WriteString(hdr); err != nil {
		return flowerr.WrapIO(err, "write header")
	}

	var tb strings.Builder
	tb.WriteByte(delim)
	for _, k := range text.Keys() {
		tb.WriteString(escape(k, delim))
		tb.WriteByte(delim)
		tb.WriteString(escape(text.Value(k), delim))
		tb.WriteByte(delim)
	}
	if int64(tb.Len()) != textLen {
		return flowerr.Newf("TEXT segment length %d, computed %d", tb.Len(), textLen)
	}
	if _, err := bw.WriteString(tb.String()); err != nil {
		return flowerr.WrapIO(err, "write TEXT segment")
	}

	buf := make([]byte, bits/8)
	for _, v := range data.RawData() {
		if dt == Double {
			order.PutUint64(buf, math.Float64bits(v))
		} else {
			order.PutUint32(buf, math.Float32bits(float32(v)))
		}
		if _, err := bw.Write(buf); err != nil {
			return flowerr.WrapIO(err, "write DATA segment")
		}
	}
	return flowerr.WrapIO(bw.Flush(), "flush")
}

func userKeywords(kw *Keywords, par int, delim byte, log *zap.Logger) (*Keywords, error) {
	out := NewKeywords()
	if kw == nil {
		return out, nil
	}
	for _, key := range kw.Keys() {
		val := kw.Value(key)
		if !IsPrintable(key) || key[0] == delim {
			return nil, flowerr.Formatf("invalid keyword %q", key)
		}
		canon := CanonicalKeyword(key)
		if reserved[canon] {
			log.Warn("keyword is derived from the data and will be ignored", zap.String("keyword", key))
			continue
		}
		// generic per-parameter form, e.g. $PNE, expands to every channel
		if canon != "" && strings.HasPrefix(canon, "$Pn") && normKey(key) == strings.ToUpper(canon) {
			suffix := strings.TrimPrefix(canon, "$Pn")
			for n := 1; n <= par; n++ {
				out.Set(ParamKey(n, suffix), val)
			}
			continue
		}
		out.Set(key, val)
	}
	for _, f := range ValidateKeywords(out) {
		if f.Message == "required keyword missing" {
			continue
		}
		log.Warn("keyword does not follow FCS 3.1", zap.String("keyword", f.Keyword), zap.String("detail", f.Message))
	}
	return out, nil
}

func escape(s string, delim byte) string {
	d := string(delim)
	return strings.ReplaceAll(s, d, d+d)
}

// EstimateRange guesses $PnR from data: two to the power of the rounded mean
// log2 of the column maxima. Non-positive maxima count as 1; an empty matrix
// yields 2^18.
func EstimateRange(data *matrix.Dense) int64 {
	rows, cols := data.Shape()
	if rows == 0 || cols == 0 {
		return 1 << 18
	}
	var sum float64
	for j := 0; j < cols; j++ {
		mx := math.Inf(-1)
		for i := 0; i < rows; i++ {
			if v := data.At(i, j); v > mx {
				mx = v
			}
		}
		if mx < 1 {
			mx = 1
		}
		sum += math.Log2(mx)
	}
	return int64(1) << int(math.Round(sum/float64(cols)))
}
