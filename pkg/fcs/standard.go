package fcs

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Standard keyword names from FCS 3.1. A lower-case "n" stands for a
// parameter, gate or region number.
var Standard = map[string]bool{
	"$ABRT": true, "$BEGINANALYSIS": true, "$BEGINDATA": true, "$BEGINSTEXT": true,
	"$BTIM": true, "$BYTEORD": true, "$CELLS": true, "$COM": true, "$CSMODE": true,
	"$CSVBITS": true, "$CSVnFLAG": true, "$CYT": true, "$CYTSN": true, "$DATATYPE": true,
	"$DATE": true, "$ENDANALYSIS": true, "$ENDDATA": true, "$ENDSTEXT": true, "$ETIM": true,
	"$EXP": true, "$FIL": true, "$GATE": true, "$GATING": true, "$GnE": true, "$GnF": true,
	"$GnN": true, "$GnP": true, "$GnR": true, "$GnS": true, "$GnT": true, "$GnV": true,
	"$INST": true, "$LAST_MODIFIED": true, "$LAST_MODIFIER": true, "$LOST": true,
	"$MODE": true, "$NEXTDATA": true, "$OP": true, "$ORIGINALITY": true, "$PAR": true,
	"$PKNn": true, "$PKn": true, "$PLATEID": true, "$PLATENAME": true, "$PROJ": true,
	"$PnB": true, "$PnCALIBRATION": true, "$PnD": true, "$PnE": true, "$PnF": true,
	"$PnG": true, "$PnL": true, "$PnN": true, "$PnO": true, "$PnP": true, "$PnR": true,
	"$PnS": true, "$PnT": true, "$PnV": true, "$RnI": true, "$RnW": true, "$SMNO": true,
	"$SPILLOVER": true, "$SRC": true, "$SYS": true, "$TIMESTEP": true, "$TOT": true,
	"$TR": true, "$VOL": true, "$WELLID": true,
}

// Required keywords for an FCS 3.1 data set.
var Required = []string{
	"$BEGINANALYSIS", "$BEGINDATA", "$BEGINSTEXT", "$BYTEORD", "$DATATYPE",
	"$ENDANALYSIS", "$ENDDATA", "$ENDSTEXT", "$MODE", "$NEXTDATA", "$PAR",
	"$PnB", "$PnE", "$PnN", "$PnR", "$TOT",
}

// ParamKeywords are the $Pn* keywords.
var ParamKeywords = []string{
	"$PnB", "$PnCALIBRATION", "$PnD", "$PnE", "$PnF", "$PnG", "$PnL",
	"$PnN", "$PnO", "$PnP", "$PnR", "$PnS", "$PnT", "$PnV",
}

const (
	patN    = `\d+`
	patF    = `[-+]?(\d*\.\d+|\d+(\.\d*)?)([eE][-+]?\d+)?`
	patDate = `\d{2}-[A-Za-z]{3}-\d{4}`
	patTime = `\d{2}:\d{2}:\d{2}(\.\d{2})?`
)

var valuePatterns = compilePatterns(map[string]string{
	"$ABRT":           patN,
	"$BEGINANALYSIS":  patN,
	"$BEGINDATA":      patN,
	"$BEGINSTEXT":     patN,
	"$BTIM":           patTime,
	"$BYTEORD":        `1,2,3,4|4,3,2,1`,
	"$CSMODE":         patN,
	"$CSVBITS":        patN,
	"$CSVnFLAG":       patN,
	"$DATATYPE":       `[IFDA]`,
	"$DATE":           patDate,
	"$ENDANALYSIS":    patN,
	"$ENDDATA":        patN,
	"$ENDSTEXT":       patN,
	"$ETIM":           patTime,
	"$GATE":           patN,
	"$GnE":            patF + `,` + patF,
	"$GnP":            patN,
	"$GnR":            patN,
	"$GnV":            patN,
	"$LAST_MODIFIED":  patDate + ` ` + patTime,
	"$MODE":           `[LCU]`,
	"$NEXTDATA":       patN,
	"$PAR":            patN,
	"$PKn":            patN,
	"$PKNn":           patN,
	"$PnB":            patN,
	"$PnCALIBRATION":  patF + `,.*`,
	"$PnD":            `(Linear|Logarithmic),` + patF + `,` + patF,
	"$PnE":            patF + `,` + patF,
	"$PnG":            patF,
	"$PnL":            patN + `(,` + patN + `)*`,
	"$PnO":            patN,
	"$PnP":            patN,
	"$PnR":            patN,
	"$PnV":            patF,
	"$RnW":            patF + `,` + patF + `(;` + patF + `,` + patF + `)*`,
	"$TIMESTEP":       patF,
	"$TOT":            patN,
	"$TR":             `[^,]+,\d+`,
	"$VOL":            patF,
})

func compilePatterns(src map[string]string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(src))
	for k, p := range src {
		out[k] = regexp.MustCompile(`^(` + p + `)$`)
	}
	return out
}

var digitRun = regexp.MustCompile(`\d+`)

// standardForms maps the upper-cased generic form of every standard keyword
// (e.g. "$PNB") back to its canonical spelling ("$PnB").
var standardForms = func() map[string]string {
	out := make(map[string]string, len(Standard))
	for k := range Standard {
		out[strings.ToUpper(k)] = k
	}
	return out
}()

// CanonicalKeyword maps a concrete keyword such as "$P12B" to its standard
// form "$PnB". It returns "" for keywords outside the standard.
func CanonicalKeyword(key string) string {
	generic := digitRun.ReplaceAllString(normKey(key), "N")
	return standardForms[generic]
}

// IsPrintable reports whether s holds only ASCII 32-126.
func IsPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 126 {
			return false
		}
	}
	return true
}

// ValidDelimiter reports whether d can delimit a TEXT segment: ASCII 1-126
// and not '$', which would make every standard keyword look escaped.
func ValidDelimiter(d byte) bool { return d >= 1 && d <= 126 && d != '$' }

// Finding is a non-fatal observation about a keyword set.
type Finding struct {
	Keyword string `json:"keyword"`
	Message string `json:"message"`
}

func (f Finding) String() string { return f.Keyword + ": " + f.Message }

// ValidateKeywords checks kw against the FCS 3.1 dictionary: printable
// keyword names, value patterns, unknown $-keywords and missing required
// keywords. None of the findings prevent parsing.
func ValidateKeywords(kw *Keywords) []Finding {
	var out []Finding
	for _, key := range kw.Keys() {
		val := kw.Value(key)
		if !IsPrintable(key) {
			out = append(out, Finding{key, "keyword contains non-printable characters"})
		}
		if !strings.HasPrefix(key, "$") {
			continue
		}
		canon := CanonicalKeyword(key)
		if canon == "" {
			out = append(out, Finding{key, "starts with $ but is not an FCS 3.1 keyword"})
			continue
		}
		if re, ok := valuePatterns[canon]; ok && !re.MatchString(strings.TrimSpace(val)) {
			out = append(out, Finding{key, fmt.Sprintf("value %q does not match %s", val, re.String())})
		}
	}

	par, err := kw.Int("$PAR")
	if err != nil {
		par = 0
	}
	for _, req := range Required {
		if !strings.Contains(req, "n") {
			if !kw.Has(req) {
				out = append(out, Finding{req, "required keyword missing"})
			}
			continue
		}
		for n := 1; n <= int(par); n++ {
			key := strings.Replace(req, "n", fmt.Sprint(n), 1)
			if !kw.Has(key) {
				out = append(out, Finding{normKey(key), "required keyword missing"})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out
}
