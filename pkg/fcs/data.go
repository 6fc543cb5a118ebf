package fcs

import (
	"encoding/binary"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// DataType is the $DATATYPE value.
type DataType byte

// Supported and recognised data types.
const (
	Integer DataType = 'I'
	Float   DataType = 'F'
	Double  DataType = 'D'
	ASCII   DataType = 'A'
)

func (d DataType) String() string { return string(rune(d)) }

// Encoding describes how one event is laid out in the DATA segment.
type Encoding struct {
	DataType DataType
	Order    binary.ByteOrder
	Bits     []int    // per channel
	Masks    []uint64 // per channel; 0 means unmasked
}

// BytesPerEvent returns the sum of all channel widths in bytes.
func (e Encoding) BytesPerEvent() int {
	n := 0
	for _, b := range e.Bits {
		n += b / 8
	}
	return n
}

// DataRef locates the event matrix inside the data set without holding it.
type DataRef struct {
	Offset   int64    `json:"offset"`
	Length   int64    `json:"length"`
	Events   int      `json:"events"`
	Encoding Encoding `json:"-"`
}

// parseByteOrder maps a $BYTEORD permutation to an endianness: ascending is
// little endian, descending big endian.
func parseByteOrder(raw string) (binary.ByteOrder, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, flowerr.Formatf("$BYTEORD %q is not a list of integers", raw)
		}
		vals[i] = v
	}
	n := len(vals)
	asc, desc := true, true
	for i, v := range vals {
		if v != i+1 {
			asc = false
		}
		if v != n-i {
			desc = false
		}
	}
	switch {
	case asc:
		return binary.LittleEndian, nil
	case desc:
		return binary.BigEndian, nil
	}
	return nil, flowerr.Formatf("$BYTEORD %q: mixed byte orders are not supported", raw)
}

func buildEncoding(kw *Keywords, chans []Channel) (Encoding, error) {
	dt := strings.ToUpper(strings.TrimSpace(kw.Value("$DATATYPE")))
	if dt == "" {
		return Encoding{}, flowerr.Formatf("required keyword $DATATYPE missing")
	}
	if !kw.Has("$BYTEORD") {
		return Encoding{}, flowerr.Formatf("required keyword $BYTEORD missing")
	}
	order, err := parseByteOrder(kw.Value("$BYTEORD"))
	if err != nil {
		return Encoding{}, err
	}
	enc := Encoding{DataType: DataType(dt[0]), Order: order, Bits: make([]int, len(chans))}
	if len(dt) != 1 {
		return Encoding{}, flowerr.Formatf("$DATATYPE %q not supported", dt)
	}
	for i, ch := range chans {
		enc.Bits[i] = ch.Bits
	}

	switch enc.DataType {
	case Float, Double:
		want := 32
		if enc.DataType == Double {
			want = 64
		}
		for _, ch := range chans {
			if ch.Bits != want {
				return Encoding{}, flowerr.Formatf("$DATATYPE %s requires $PnB=%d for every channel; %s has %d",
					enc.DataType, want, ch.ShortName, ch.Bits)
			}
		}
	case Integer:
		enc.Masks = make([]uint64, len(chans))
		for i, ch := range chans {
			switch ch.Bits {
			case 8, 16, 32, 64:
			default:
				return Encoding{}, flowerr.Formatf("channel %s: %d-bit integers not supported", ch.ShortName, ch.Bits)
			}
			mask, err := rangeMask(ch)
			if err != nil {
				return Encoding{}, err
			}
			enc.Masks[i] = mask
		}
	case ASCII:
		return Encoding{}, flowerr.Formatf("$DATATYPE A (ASCII) is not supported")
	default:
		return Encoding{}, flowerr.Formatf("$DATATYPE %q not supported", dt)
	}
	return enc, nil
}

// rangeMask returns the bit mask implied by $PnR: the next power of two at or
// above the range, minus one. A range equal to 2^bits needs no mask.
func rangeMask(ch Channel) (uint64, error) {
	if ch.Range <= 0 {
		return 0, nil
	}
	if ch.Bits < 64 && uint64(ch.Range) == uint64(1)<<ch.Bits {
		return 0, nil
	}
	width := bits.Len64(uint64(ch.Range - 1))
	if width >= 64 {
		return 0, nil
	}
	mask := uint64(1)<<width - 1
	if ch.Bits < 64 && mask >= uint64(1)<<ch.Bits {
		return 0, flowerr.Formatf("channel %s: $PnR %d incompatible with $PnB %d", ch.ShortName, ch.Range, ch.Bits)
	}
	return mask, nil
}

// decode converts raw event bytes into out, row-major.
func (e Encoding) decode(raw []byte, events int, out []float64) {
	par := len(e.Bits)
	switch e.DataType {
	case Float:
		for k := 0; k < events*par; k++ {
			out[k] = float64(math.Float32frombits(e.Order.Uint32(raw[4*k:])))
		}
		return
	case Double:
		for k := 0; k < events*par; k++ {
			out[k] = math.Float64frombits(e.Order.Uint64(raw[8*k:]))
		}
		return
	}
	pos := 0
	for i := 0; i < events; i++ {
		row := out[i*par : (i+1)*par]
		for j, b := range e.Bits {
			var v uint64
			switch b {
			case 8:
				v = uint64(raw[pos])
			case 16:
				v = uint64(e.Order.Uint16(raw[pos:]))
			case 32:
				v = uint64(e.Order.Uint32(raw[pos:]))
			case 64:
				v = e.Order.Uint64(raw[pos:])
			}
			if m := e.Masks[j]; m != 0 {
				v &= m
			}
			row[j] = float64(v)
			pos += b / 8
		}
	}
}

// ReadData decodes every event into a new matrix.
func (f *File) ReadData(src Source) (*matrix.Dense, error) {
	return f.ReadEvents(src, 0, f.Data.Events)
}

// ReadEvents decodes events [start, end) into a new matrix.
func (f *File) ReadEvents(src Source, start, end int) (*matrix.Dense, error) {
	if start < 0 || end > f.Data.Events || start > end {
		return nil, flowerr.Dimensionf("event range [%d,%d) outside [0,%d)", start, end, f.Data.Events)
	}
	enc := f.Data.Encoding
	bpe := int64(enc.BytesPerEvent())
	n := end - start
	raw, err := readFull(src, f.Data.Offset+int64(start)*bpe, int64(n)*bpe, "DATA segment")
	if err != nil {
		return nil, err
	}
	out := make([]float64, n*len(f.Channels))
	enc.decode(raw, n, out)
	return matrix.NewFromData(n, len(f.Channels), out)
}
