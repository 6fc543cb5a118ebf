package transform

import (
	"math"

	"flowcore/pkg/flowerr"
)

type chain struct{ steps []Transform }

// Chain composes transforms: Forward applies ts in order, Inverse undoes
// them in reverse. A single transform is returned unchanged.
func Chain(ts ...Transform) (Transform, error) {
	var flat []Transform
	for _, t := range ts {
		if t == nil {
			return nil, flowerr.Domainf("chain step is nil")
		}
		if c, ok := t.(*chain); ok {
			flat = append(flat, c.steps...)
			continue
		}
		flat = append(flat, t)
	}
	switch len(flat) {
	case 0:
		return nil, flowerr.Domainf("chain needs at least one transform")
	case 1:
		return flat[0], nil
	}
	return &chain{steps: flat}, nil
}

func (c *chain) Spec() Spec {
	steps := make([]Spec, len(c.steps))
	for i, t := range c.steps {
		steps[i] = t.Spec()
	}
	return Spec{Name: "chain", Steps: steps}
}

func (c *chain) Forward(x float64) float64 {
	for _, t := range c.steps {
		x = t.Forward(x)
	}
	return x
}

func (c *chain) Inverse(y float64) float64 {
	for i := len(c.steps) - 1; i >= 0; i-- {
		y = c.steps[i].Inverse(y)
	}
	return y
}

func (c *chain) InDomain(x float64) bool {
	for _, t := range c.steps {
		if !t.InDomain(x) {
			return false
		}
		x = t.Forward(x)
	}
	return true
}

// Func is a user-defined transform built from plain functions.
type Func struct {
	spec     Spec
	fwd, inv func(float64) float64
	domain   func(float64) bool
}

// NewFunc wraps fwd and inv as a Transform identified by name and params.
// InDomain accepts every non-NaN value unless WithDomain narrows it.
func NewFunc(name string, params map[string]float64, fwd, inv func(float64) float64) (*Func, error) {
	if name == "" {
		return nil, flowerr.Domainf("transform name is empty")
	}
	if fwd == nil || inv == nil {
		return nil, flowerr.Domainf("transform %q needs both forward and inverse functions", name)
	}
	cp := make(map[string]float64, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return &Func{
		spec:   Spec{Name: name, Params: cp},
		fwd:    fwd,
		inv:    inv,
		domain: func(x float64) bool { return !math.IsNaN(x) },
	}, nil
}

// WithDomain returns a copy of f whose InDomain is in.
func (f *Func) WithDomain(in func(float64) bool) *Func {
	cp := *f
	if in != nil {
		cp.domain = in
	}
	return &cp
}

func (f *Func) Spec() Spec {
	params := make(map[string]float64, len(f.spec.Params))
	for k, v := range f.spec.Params {
		params[k] = v
	}
	return Spec{Name: f.spec.Name, Params: params}
}

func (f *Func) Forward(x float64) float64 { return f.fwd(x) }

func (f *Func) Inverse(y float64) float64 { return f.inv(y) }

func (f *Func) InDomain(x float64) bool { return f.domain(x) }
