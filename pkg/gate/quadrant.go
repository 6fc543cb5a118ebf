package gate

import (
	"strings"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Quadrant selects one of the 2^N orthants around a threshold point. Region
// has one '+' or '-' per channel; '+' means x >= threshold, '-' x < threshold.
type Quadrant struct {
	base
	thresholds []float64
	region     string
}

// NewQuadrant builds the region gate for thresholds and region.
func NewQuadrant(channels []string, thresholds []float64, region string, opts ...Option) (*Quadrant, error) {
	b, err := newBase(channels, opts)
	if err != nil {
		return nil, err
	}
	if len(thresholds) != len(channels) {
		return nil, flowerr.Dimensionf("quadrant on %d channels has %d thresholds", len(channels), len(thresholds))
	}
	if len(region) != len(channels) || strings.Trim(region, "+-") != "" {
		return nil, flowerr.Dimensionf("quadrant region %q must have one '+' or '-' per channel", region)
	}
	if !finite(thresholds...) {
		return nil, flowerr.Domainf("quadrant thresholds must be finite")
	}
	return &Quadrant{base: b, thresholds: append([]float64(nil), thresholds...), region: region}, nil
}

// Quadrants returns one gate per region, in the order of Regions(n).
func Quadrants(channels []string, thresholds []float64) ([]*Quadrant, error) {
	regions := Regions(len(channels))
	out := make([]*Quadrant, len(regions))
	for i, r := range regions {
		q, err := NewQuadrant(channels, thresholds, r)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// Regions lists all 2^n region strings, "++..." first.
func Regions(n int) []string {
	out := []string{""}
	for i := 0; i < n; i++ {
		next := make([]string, 0, 2*len(out))
		for _, r := range out {
			next = append(next, r+"+", r+"-")
		}
		out = next
	}
	return out
}

func (q *Quadrant) Kind() Kind { return KindQuadrant }

// Thresholds returns a copy of the split point.
func (q *Quadrant) Thresholds() []float64 { return append([]float64(nil), q.thresholds...) }

// Region returns the region string.
func (q *Quadrant) Region() string { return q.region }

// Contains reports whether p falls in the gate's region. A value equal to
// its threshold is on the '+' side.
func (q *Quadrant) Contains(p []float64) bool {
	for k, v := range p {
		if v != v {
			return false
		}
		plus := v >= q.thresholds[k]
		if plus != (q.region[k] == '+') {
			return false
		}
	}
	return true
}

func (q *Quadrant) EvaluateColumns(src matrix.Source, cols []int) (Mask, error) {
	return q.pointwise(src, cols, q.Contains)
}
