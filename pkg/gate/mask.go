package gate

import (
	"flowcore/pkg/flowerr"
)

// Mask marks the events a gate selects, one entry per row.
type Mask []bool

// NewMask returns a mask of length n with every entry set to v.
func NewMask(n int, v bool) Mask {
	m := make(Mask, n)
	if v {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

// And returns the elementwise conjunction.
func (m Mask) And(o Mask) (Mask, error) {
	if len(m) != len(o) {
		return nil, flowerr.Dimensionf("mask lengths differ: %d and %d", len(m), len(o))
	}
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] && o[i]
	}
	return out, nil
}

// Or returns the elementwise disjunction.
func (m Mask) Or(o Mask) (Mask, error) {
	if len(m) != len(o) {
		return nil, flowerr.Dimensionf("mask lengths differ: %d and %d", len(m), len(o))
	}
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] || o[i]
	}
	return out, nil
}

// Xor returns the elementwise exclusive or.
func (m Mask) Xor(o Mask) (Mask, error) {
	if len(m) != len(o) {
		return nil, flowerr.Dimensionf("mask lengths differ: %d and %d", len(m), len(o))
	}
	out := make(Mask, len(m))
	for i := range m {
		out[i] = m[i] != o[i]
	}
	return out, nil
}

// Not returns the elementwise negation.
func (m Mask) Not() Mask {
	out := make(Mask, len(m))
	for i, v := range m {
		out[i] = !v
	}
	return out
}

// Count returns the number of selected events.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Indices returns the positions of selected events in ascending order.
func (m Mask) Indices() []int {
	out := make([]int, 0, m.Count())
	for i, v := range m {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// Equal reports whether both masks select the same events.
func (m Mask) Equal(o Mask) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if m[i] != o[i] {
			return false
		}
	}
	return true
}
