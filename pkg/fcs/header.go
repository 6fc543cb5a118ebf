package fcs

import (
	"strconv"
	"strings"

	"flowcore/pkg/flowerr"
)

// HeaderSize is the length of the fixed HEADER segment.
const HeaderSize = 58

// Segment is an inclusive byte range [Begin, End] within the data set. The
// zero Segment means "absent".
type Segment struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// IsZero reports whether the segment is absent.
func (s Segment) IsZero() bool { return s.Begin == 0 && s.End == 0 }

// Len returns the number of bytes covered, or 0 when absent.
func (s Segment) Len() int64 {
	if s.IsZero() || s.End < s.Begin {
		return 0
	}
	return s.End - s.Begin + 1
}

// Header is the decoded HEADER segment.
type Header struct {
	Version  string  `json:"version"`
	Text     Segment `json:"text"`
	Data     Segment `json:"data"`
	Analysis Segment `json:"analysis"`
}

var knownVersions = map[string]bool{
	"FCS2.0": true,
	"FCS3.0": true,
	"FCS3.1": true,
	"FCS3.2": true,
}

// KnownVersion reports whether v is a version accepted without warning.
func KnownVersion(v string) bool { return knownVersions[v] }

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, flowerr.Formatf("header is %d bytes, need %d", len(b), HeaderSize)
	}
	h := Header{Version: string(b[0:6])}
	if !strings.HasPrefix(h.Version, "FCS") {
		return Header{}, flowerr.Formatf("not an FCS data set (version field %q)", h.Version)
	}
	var offs [6]int64
	for i := range offs {
		start := 10 + 8*i
		v, err := parseOffsetField(b[start : start+8])
		if err != nil {
			return Header{}, flowerr.WrapFormat(err, "header offset field %d", i+1)
		}
		offs[i] = v
	}
	h.Text = Segment{offs[0], offs[1]}
	h.Data = Segment{offs[2], offs[3]}
	h.Analysis = Segment{offs[4], offs[5]}
	return h, nil
}

// parseOffsetField reads an 8-column right-justified ASCII integer. Blank
// fields and -1 both mean zero.
func parseOffsetField(field []byte) (int64, error) {
	s := strings.TrimSpace(string(field))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, flowerr.Formatf("invalid offset %q", s)
	}
	if v == -1 {
		return 0, nil
	}
	if v < 0 {
		return 0, flowerr.Formatf("negative offset %d", v)
	}
	return v, nil
}
