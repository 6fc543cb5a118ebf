package transform

import (
	"math"

	"flowcore/pkg/flowerr"
)

const (
	solveMaxIter  = 100
	dTolerance    = 1e-14
	rootTolerance = 1e-12
)

// BiexParams are the Gating-ML 2.0 parameters shared by logicle and
// hyperlog: T is the top of scale, W the linearisation width in decades, M
// the number of decades and A additional negative decades.
type BiexParams struct {
	T, W, M, A float64
}

// Validate checks T > 0, M > 0, 0 <= W <= M/2 and -W <= A <= M-2W.
func (p BiexParams) Validate() error {
	if !finite(p.T, p.W, p.M, p.A) {
		return flowerr.Domainf("parameters must be finite: %+v", p)
	}
	if p.T <= 0 {
		return flowerr.Domainf("T must be positive, got %v", p.T)
	}
	if p.M <= 0 {
		return flowerr.Domainf("M must be positive, got %v", p.M)
	}
	if p.W < 0 || p.W > p.M/2 {
		return flowerr.Domainf("W must satisfy 0 <= W <= M/2, got W=%v M=%v", p.W, p.M)
	}
	if p.A < -p.W || p.A > p.M-2*p.W {
		return flowerr.Domainf("A must satisfy -W <= A <= M-2W, got A=%v", p.A)
	}
	return nil
}

func (p BiexParams) params() map[string]float64 {
	return map[string]float64{"T": p.T, "W": p.W, "M": p.M, "A": p.A}
}

func biexFromParams(params map[string]float64) BiexParams {
	return BiexParams{
		T: param(params, "T", 262144),
		W: param(params, "W", 0.5),
		M: param(params, "M", 4.5),
		A: param(params, "A", 0),
	}
}

// scaled holds the quantities common to both families.
type scaled struct {
	w, x0, x1, x2, b float64
}

func scale(p BiexParams) scaled {
	w := p.W / (p.M + p.A)
	x2 := p.A / (p.M + p.A)
	x1 := x2 + w
	return scaled{w: w, x2: x2, x1: x1, x0: x2 + 2*w, b: (p.M + p.A) * math.Ln10}
}

// LogicleConstants are the solved coefficients of the biexponential
// B(y) = a·e^(b·y) − c·e^(−d·y) − f.
type LogicleConstants struct {
	A, B, C, D, F float64
	X1            float64
}

// SolveLogicle computes the logicle constants for p.
func SolveLogicle(p BiexParams) (LogicleConstants, error) {
	if err := p.Validate(); err != nil {
		return LogicleConstants{}, err
	}
	s := scale(p)
	d, err := solveD(s.w, s.b)
	if err != nil {
		return LogicleConstants{}, err
	}
	ca := math.Exp(s.x0 * (s.b + d))
	fa := math.Exp(s.b*s.x1) - ca*math.Exp(-d*s.x1)
	a := p.T / (math.Exp(s.b) - fa - ca*math.Exp(-d))
	k := LogicleConstants{A: a, B: s.b, C: ca * a, D: d, F: fa * a, X1: s.x1}
	if !finite(k.A, k.B, k.C, k.D, k.F) {
		return LogicleConstants{}, flowerr.Domainf("logicle constants are not finite for %+v", p)
	}
	return k, nil
}

// solveD finds d in (0, b] with 2(ln d − ln b) + w(b + d) = 0 by Newton's
// method kept inside a shrinking bracket.
func solveD(w, b float64) (float64, error) {
	if w == 0 {
		return b, nil
	}
	lnb := math.Log(b)
	g := func(d float64) float64 { return 2*(math.Log(d)-lnb) + w*(b+d) }
	lo, hi := 0.0, b
	d := b / 2
	for i := 0; i < solveMaxIter; i++ {
		v := g(d)
		if v == 0 {
			return d, nil
		}
		if v > 0 {
			hi = d
		} else {
			lo = d
		}
		next := d - v/(2/d+w)
		if !(next > lo && next < hi) {
			next = (lo + hi) / 2
		}
		if math.Abs(next-d) <= dTolerance*math.Abs(next) {
			return next, nil
		}
		d = next
	}
	return 0, flowerr.Domainf("logicle parameter d did not converge (w=%v, b=%v)", w, b)
}

// invertMonotone solves g(y) = x for an increasing g with derivative dg,
// starting from guess. Newton steps that leave the current bracket fall back
// to bisection.
func invertMonotone(g, dg func(float64) float64, x, guess float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case math.IsInf(x, 0):
		return x
	}
	lo, hi := guess-1, guess+1
	for i := 0; i < 64 && g(lo) > x; i++ {
		lo -= 2 * (hi - lo)
	}
	for i := 0; i < 64 && g(hi) < x; i++ {
		hi += 2 * (hi - lo)
	}
	y := guess
	for i := 0; i < solveMaxIter; i++ {
		r := g(y) - x
		if r == 0 {
			return y
		}
		if r > 0 {
			hi = y
		} else {
			lo = y
		}
		next := y - r/dg(y)
		if math.IsNaN(next) || !(next > lo && next < hi) {
			next = (lo + hi) / 2
		}
		if math.Abs(next-y) <= rootTolerance*math.Max(1, math.Abs(next)) {
			return next
		}
		y = next
	}
	return y
}

// Logicle is the Gating-ML 2.0 logicle transform.
type Logicle struct {
	p BiexParams
	k LogicleConstants
}

// NewLogicle validates p and solves its constants.
func NewLogicle(p BiexParams) (*Logicle, error) {
	k, err := SolveLogicle(p)
	if err != nil {
		return nil, err
	}
	return &Logicle{p: p, k: k}, nil
}

// NewLogicleWithConstants builds a logicle from pre-solved constants.
func NewLogicleWithConstants(p BiexParams, k LogicleConstants) *Logicle {
	return &Logicle{p: p, k: k}
}

func (l *Logicle) Spec() Spec { return Spec{Name: "logicle", Params: l.p.params()} }

// Constants returns the solved coefficients.
func (l *Logicle) Constants() LogicleConstants { return l.k }

func (l *Logicle) biex(y float64) float64 {
	k := l.k
	return k.A*math.Exp(k.B*y) - k.C*math.Exp(-k.D*y) - k.F
}

func (l *Logicle) dbiex(y float64) float64 {
	k := l.k
	return k.A*k.B*math.Exp(k.B*y) + k.C*k.D*math.Exp(-k.D*y)
}

func (l *Logicle) Forward(x float64) float64 {
	k := l.k
	guess := k.X1
	if x > 0 && x+k.F > 0 {
		if g := math.Log((x+k.F)/k.A) / k.B; g > k.X1 {
			guess = g
		}
	}
	return invertMonotone(l.biex, l.dbiex, x, guess)
}

func (l *Logicle) Inverse(y float64) float64 { return l.biex(y) }

func (l *Logicle) InDomain(x float64) bool { return !math.IsNaN(x) }

// HyperlogConstants are the coefficients of EH(y) = a·e^(b·y) + c·y − f.
type HyperlogConstants struct {
	A, B, C, F float64
	X1         float64
}

// Hyperlog is the Gating-ML 2.0 hyperlog transform. Unlike logicle it needs
// a strictly positive W.
type Hyperlog struct {
	p BiexParams
	k HyperlogConstants
}

// NewHyperlog validates p and computes the hyperlog constants.
func NewHyperlog(p BiexParams) (*Hyperlog, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.W == 0 {
		return nil, flowerr.Domainf("hyperlog requires W > 0")
	}
	s := scale(p)
	e0 := math.Exp(s.b * s.x0)
	ca := e0 / s.w
	fa := math.Exp(s.b*s.x1) + ca*s.x1
	a := p.T / (math.Exp(s.b) + ca - fa)
	k := HyperlogConstants{A: a, B: s.b, C: ca * a, F: fa * a, X1: s.x1}
	if !finite(k.A, k.B, k.C, k.F) {
		return nil, flowerr.Domainf("hyperlog constants are not finite for %+v", p)
	}
	return &Hyperlog{p: p, k: k}, nil
}

func (h *Hyperlog) Spec() Spec { return Spec{Name: "hyperlog", Params: h.p.params()} }

func (h *Hyperlog) eh(y float64) float64 {
	k := h.k
	return k.A*math.Exp(k.B*y) + k.C*y - k.F
}

func (h *Hyperlog) deh(y float64) float64 {
	k := h.k
	return k.A*k.B*math.Exp(k.B*y) + k.C
}

func (h *Hyperlog) Forward(x float64) float64 {
	k := h.k
	guess := k.X1
	if x > 0 && x+k.F > 0 {
		if g := math.Log((x+k.F)/k.A) / k.B; g > k.X1 {
			guess = g
		}
	}
	return invertMonotone(h.eh, h.deh, x, guess)
}

func (h *Hyperlog) Inverse(y float64) float64 { return h.eh(y) }

func (h *Hyperlog) InDomain(x float64) bool { return !math.IsNaN(x) }
