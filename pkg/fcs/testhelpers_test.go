package fcs

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// layout assembles raw FCS bytes so tests can produce malformed data sets
// that Write would refuse to emit.
type layout struct {
	version     string
	delim       byte
	kv          []string // alternating key, value (unescaped)
	data        []byte
	declaredLen int  // DATA length written to offsets; 0 means len(data)
	textOnly    bool // leave header DATA offsets zero so $BEGINDATA applies
	noDataKeys  bool
	analysis    string // raw ANALYSIS segment including delimiters
	stext       string // raw supplemental TEXT segment
}

func (l layout) text(db, de, ab, ae, sb, se int) string {
	d := string(l.delim)
	esc := func(s string) string { return strings.ReplaceAll(s, d, d+d) }
	var b strings.Builder
	b.WriteString(d)
	for i := 0; i+1 < len(l.kv); i += 2 {
		b.WriteString(esc(l.kv[i]) + d + esc(l.kv[i+1]) + d)
	}
	if !l.noDataKeys {
		fmt.Fprintf(&b, "$BEGINDATA%s%012d%s$ENDDATA%s%012d%s", d, db, d, d, de, d)
	}
	if l.analysis != "" {
		fmt.Fprintf(&b, "$BEGINANALYSIS%s%012d%s$ENDANALYSIS%s%012d%s", d, ab, d, d, ae, d)
	}
	if l.stext != "" {
		fmt.Fprintf(&b, "$BEGINSTEXT%s%012d%s$ENDSTEXT%s%012d%s", d, sb, d, d, se, d)
	}
	return b.String()
}

func (l layout) build() []byte {
	if l.version == "" {
		l.version = "FCS3.1"
	}
	if l.delim == 0 {
		l.delim = '/'
	}
	tlen := len(l.text(0, 0, 0, 0, 0, 0))
	textBegin := HeaderSize
	textEnd := textBegin + tlen - 1
	dataBegin := textEnd + 1
	dlen := len(l.data)
	if l.declaredLen != 0 {
		dlen = l.declaredLen
	}
	dataEnd := dataBegin + dlen - 1
	anaBegin, anaEnd := 0, 0
	next := dataBegin + len(l.data)
	if l.analysis != "" {
		anaBegin, anaEnd = next, next+len(l.analysis)-1
		next = anaEnd + 1
	}
	sBegin, sEnd := 0, 0
	if l.stext != "" {
		sBegin, sEnd = next, next+len(l.stext)-1
	}
	text := l.text(dataBegin, dataEnd, anaBegin, anaEnd, sBegin, sEnd)

	hd, he := dataBegin, dataEnd
	if l.textOnly {
		hd, he = 0, 0
	}
	hdr := fmt.Sprintf("%-6s    %8d%8d%8d%8d%8d%8d", l.version, textBegin, textEnd, hd, he, anaBegin, anaEnd)
	out := []byte(hdr + text)
	out = append(out, l.data...)
	out = append(out, l.analysis...)
	out = append(out, l.stext...)
	return out
}

// floatLayout returns keywords for par float32 channels named c1..cN.
func floatKeywords(par, tot int, order string) []string {
	kv := []string{
		"$PAR", strconv.Itoa(par),
		"$TOT", strconv.Itoa(tot),
		"$DATATYPE", "F",
		"$BYTEORD", order,
		"$MODE", "L",
	}
	for n := 1; n <= par; n++ {
		kv = append(kv,
			ParamKey(n, "N"), fmt.Sprintf("c%d", n),
			ParamKey(n, "B"), "32",
			ParamKey(n, "R"), "262144",
			ParamKey(n, "E"), "0,0",
		)
	}
	return kv
}

func float32Data(rows [][]float64, order binary.ByteOrder) []byte {
	var out []byte
	buf := make([]byte, 4)
	for _, r := range rows {
		for _, v := range r {
			order.PutUint32(buf, math.Float32bits(float32(v)))
			out = append(out, buf...)
		}
	}
	return out
}
