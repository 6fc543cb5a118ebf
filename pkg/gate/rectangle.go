package gate

import (
	"math"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Rectangle selects lo[k] <= x[k] <= hi[k] on every axis. An infinite bound
// leaves that side open.
type Rectangle struct {
	base
	kind   Kind
	lo, hi []float64
}

// NewRectangle builds an N-dimensional box gate.
func NewRectangle(channels []string, lo, hi []float64, opts ...Option) (*Rectangle, error) {
	b, err := newBase(channels, opts)
	if err != nil {
		return nil, err
	}
	if len(lo) != len(channels) || len(hi) != len(channels) {
		return nil, flowerr.Dimensionf("rectangle on %d channels needs %d bounds each, got %d and %d",
			len(channels), len(channels), len(lo), len(hi))
	}
	for k := range lo {
		if math.IsNaN(lo[k]) || math.IsNaN(hi[k]) || lo[k] > hi[k] {
			return nil, flowerr.Domainf("channel %s: invalid bounds [%v, %v]", channels[k], lo[k], hi[k])
		}
	}
	return &Rectangle{
		base: b,
		kind: KindRectangle,
		lo:   append([]float64(nil), lo...),
		hi:   append([]float64(nil), hi...),
	}, nil
}

// NewRange builds the one-dimensional case lo <= x <= hi.
func NewRange(channel string, lo, hi float64, opts ...Option) (*Rectangle, error) {
	r, err := NewRectangle([]string{channel}, []float64{lo}, []float64{hi}, opts...)
	if err != nil {
		return nil, err
	}
	r.kind = KindRange
	return r, nil
}

func (r *Rectangle) Kind() Kind { return r.kind }

// Bounds returns copies of the lower and upper bounds.
func (r *Rectangle) Bounds() (lo, hi []float64) {
	return append([]float64(nil), r.lo...), append([]float64(nil), r.hi...)
}

// Contains reports whether p lies inside the box.
func (r *Rectangle) Contains(p []float64) bool {
	for k, v := range p {
		if v < r.lo[k] || v > r.hi[k] || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func (r *Rectangle) EvaluateColumns(src matrix.Source, cols []int) (Mask, error) {
	return r.pointwise(src, cols, r.Contains)
}
