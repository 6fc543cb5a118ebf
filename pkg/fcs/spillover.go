package fcs

import (
	"strconv"
	"strings"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// SpilloverKeywords lists the keywords searched for a spillover matrix, in
// order of preference.
var SpilloverKeywords = []string{"$SPILLOVER", "$SPILL", "$COMP"}

// Spillover is a square matrix where Values[i][j] is the spill of
// fluorochrome i into detector j. Channels are $PnN short names.
type Spillover struct {
	Keyword  string
	Channels []string
	Values   *matrix.Dense
}

// Spillover returns the file's spillover matrix, or nil, nil when none is
// declared.
func (f *File) Spillover() (*Spillover, error) {
	return SpilloverFromKeywords(f.keywords)
}

// SpilloverFromKeywords parses the first spillover keyword present in kw.
func SpilloverFromKeywords(kw *Keywords) (*Spillover, error) {
	for _, key := range SpilloverKeywords {
		raw, ok := kw.Get(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		s, err := ParseSpillover(raw)
		if err != nil {
			return nil, flowerr.WrapFormat(err, "keyword %s", key)
		}
		s.Keyword = key
		return s, nil
	}
	return nil, nil
}

// ParseSpillover parses "N,name1,...,nameN,m11,m12,...,mNN".
func ParseSpillover(raw string) (*Spillover, error) {
	toks := strings.Split(raw, ",")
	for i := range toks {
		toks[i] = strings.TrimSpace(toks[i])
	}
	n, err := strconv.Atoi(toks[0])
	if err != nil || n < 1 {
		return nil, flowerr.Formatf("spillover size %q is not a positive integer", toks[0])
	}
	if want := 1 + n + n*n; len(toks) != want {
		return nil, flowerr.Formatf("spillover with %d channels needs %d fields, got %d", n, want, len(toks))
	}
	names := make([]string, n)
	copy(names, toks[1:1+n])
	vals := make([]float64, n*n)
	for k, t := range toks[1+n:] {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, flowerr.Formatf("spillover value %q is not a number", t)
		}
		vals[k] = v
	}
	m, err := matrix.NewFromData(n, n, vals)
	if err != nil {
		return nil, err
	}
	return &Spillover{Channels: names, Values: m}, nil
}

// FormatSpillover builds a $SPILLOVER value. At least two channels are
// required and m must be len(names) square.
func FormatSpillover(names []string, m *matrix.Dense) (string, error) {
	n := len(names)
	if n < 2 {
		return "", flowerr.Dimensionf("spillover needs at least two channels, got %d", n)
	}
	if m == nil {
		return "", flowerr.Dimensionf("spillover matrix is nil")
	}
	if r, c := m.Shape(); r != n || c != n {
		return "", flowerr.Dimensionf("spillover matrix is %dx%d, want %dx%d", r, c, n, n)
	}
	parts := make([]string, 0, 1+n+n*n)
	parts = append(parts, strconv.Itoa(n))
	for _, name := range names {
		if strings.Contains(name, ",") {
			return "", flowerr.Formatf("channel name %q contains a comma", name)
		}
		parts = append(parts, name)
	}
	for _, v := range m.RawData() {
		parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return strings.Join(parts, ","), nil
}
