package transform

import (
	"math"

	"flowcore/pkg/flowerr"
)

// Log is log_base(max(x, floor)).
type Log struct {
	base, floor float64
	lnBase      float64
}

// NewLog validates base > 0, base != 1 and floor > 0.
func NewLog(base, floor float64) (*Log, error) {
	if !finite(base, floor) || base <= 0 || base == 1 {
		return nil, flowerr.Domainf("log base must be positive and not 1, got %v", base)
	}
	if floor <= 0 {
		return nil, flowerr.Domainf("log floor must be positive, got %v", floor)
	}
	return &Log{base: base, floor: floor, lnBase: math.Log(base)}, nil
}

func (l *Log) Spec() Spec {
	return Spec{Name: "log", Params: map[string]float64{"base": l.base, "floor": l.floor}}
}

func (l *Log) Forward(x float64) float64 {
	if x < l.floor {
		x = l.floor
	}
	return math.Log(x) / l.lnBase
}

func (l *Log) Inverse(y float64) float64 { return math.Exp(y * l.lnBase) }

func (l *Log) InDomain(x float64) bool { return x >= l.floor && !math.IsInf(x, 1) }

// Asinh is asinh(x / c).
type Asinh struct{ c float64 }

// NewAsinh validates the cofactor c > 0.
func NewAsinh(c float64) (*Asinh, error) {
	if !finite(c) || c <= 0 {
		return nil, flowerr.Domainf("asinh cofactor must be positive, got %v", c)
	}
	return &Asinh{c: c}, nil
}

func (a *Asinh) Spec() Spec {
	return Spec{Name: "asinh", Params: map[string]float64{"c": a.c}}
}

func (a *Asinh) Forward(x float64) float64 { return math.Asinh(x / a.c) }

func (a *Asinh) Inverse(y float64) float64 { return a.c * math.Sinh(y) }

func (a *Asinh) InDomain(x float64) bool { return !math.IsNaN(x) }

// Linear maps [bottom, top] onto [0, 1].
type Linear struct{ bottom, top float64 }

// NewLinear validates bottom != top.
func NewLinear(bottom, top float64) (*Linear, error) {
	if !finite(bottom, top) || bottom == top {
		return nil, flowerr.Domainf("linear scale needs distinct finite bounds, got [%v, %v]", bottom, top)
	}
	return &Linear{bottom: bottom, top: top}, nil
}

func (l *Linear) Spec() Spec {
	return Spec{Name: "linear", Params: map[string]float64{"bottom": l.bottom, "top": l.top}}
}

func (l *Linear) Forward(x float64) float64 { return (x - l.bottom) / (l.top - l.bottom) }

func (l *Linear) Inverse(y float64) float64 { return y*(l.top-l.bottom) + l.bottom }

func (l *Linear) InDomain(x float64) bool { return !math.IsNaN(x) }
