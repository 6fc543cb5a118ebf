package fcs

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flowcore/pkg/flowerr"
)

// Amplification is the decoded $PnE value: Decades of log amplification and
// the linear value corresponding to channel 0. "0,0" means linear.
type Amplification struct {
	Decades float64 `json:"decades"`
	Offset  float64 `json:"offset"`
}

// IsLog reports whether the channel was recorded with log amplification.
func (a Amplification) IsLog() bool { return a.Decades > 0 }

// Channel describes one measured parameter. Optional numeric attributes are
// zero when the file does not declare them.
type Channel struct {
	Index         int           `json:"index"` // zero-based column position
	ShortName     string        `json:"short_name"`
	LongName      string        `json:"long_name,omitempty"`
	Range         int64         `json:"range"`
	Bits          int           `json:"bits"`
	Amplification Amplification `json:"amplification"`
	Gain          float64       `json:"gain,omitempty"`
	Voltage       float64       `json:"voltage,omitempty"`
	Filter        string        `json:"filter,omitempty"`
	Detector      string        `json:"detector,omitempty"`
	Wavelengths   []int         `json:"wavelengths,omitempty"`
	Display       string        `json:"display,omitempty"`
}

// Name returns the short name, the canonical column label.
func (c Channel) Name() string { return c.ShortName }

// Label returns "short (long)" when a long name exists.
func (c Channel) Label() string {
	if c.LongName == "" || c.LongName == c.ShortName {
		return c.ShortName
	}
	return c.ShortName + " (" + c.LongName + ")"
}

func buildChannels(kw *Keywords, par int, log *zap.Logger) ([]Channel, error) {
	chans := make([]Channel, par)
	for i := 0; i < par; i++ {
		n := i + 1
		ch := Channel{Index: i}

		name, ok := kw.Get(ParamKey(n, "N"))
		if !ok {
			return nil, flowerr.Formatf("required keyword %s missing", ParamKey(n, "N"))
		}
		ch.ShortName = strings.TrimSpace(name)

		bits, err := kw.Int(ParamKey(n, "B"))
		if err != nil {
			return nil, err
		}
		ch.Bits = int(bits)

		if ch.Range, err = kw.Int(ParamKey(n, "R")); err != nil {
			return nil, err
		}

		pne, ok := kw.Get(ParamKey(n, "E"))
		if !ok {
			log.Warn("amplification keyword missing, assuming linear",
				zap.String("keyword", ParamKey(n, "E")), zap.String("channel", ch.ShortName))
			pne = "0,0"
		}
		if ch.Amplification, err = parseAmplification(ParamKey(n, "E"), pne); err != nil {
			return nil, err
		}

		ch.LongName = strings.TrimSpace(kw.Value(ParamKey(n, "S")))
		ch.Filter = kw.Value(ParamKey(n, "F"))
		ch.Detector = kw.Value(ParamKey(n, "T"))
		ch.Display = kw.Value(ParamKey(n, "D"))
		if ch.Gain, _, err = kw.Float(ParamKey(n, "G")); err != nil {
			log.Debug("ignoring unparsable gain", zap.Error(err))
			ch.Gain = 0
		}
		if ch.Voltage, _, err = kw.Float(ParamKey(n, "V")); err != nil {
			log.Debug("ignoring unparsable voltage", zap.Error(err))
			ch.Voltage = 0
		}
		if pnl := kw.Value(ParamKey(n, "L")); pnl != "" {
			for _, tok := range strings.Split(pnl, ",") {
				if w, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
					ch.Wavelengths = append(ch.Wavelengths, w)
				}
			}
		}
		chans[i] = ch
	}
	return chans, nil
}

func parseAmplification(key, raw string) (Amplification, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Amplification{}, flowerr.Formatf("keyword %s: want two comma separated values, got %q", key, raw)
	}
	dec, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	off, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Amplification{}, flowerr.Formatf("keyword %s: invalid value %q", key, raw)
	}
	return Amplification{Decades: dec, Offset: off}, nil
}
