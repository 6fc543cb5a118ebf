// Package gate selects sub-populations of events by geometric and boolean
// criteria.
//
// Every variant uses the same inclusive boundary policy: a point lying
// exactly on a gate boundary is inside. Quadrant thresholds are the one
// place where a tie has to go to one side; there the value belongs to the
// upper ("+") region so the quadrants partition the data.
//
// Gates are immutable and evaluation is pure, so a gate may be shared across
// goroutines and frames.
package gate

import (
	"github.com/google/uuid"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Kind names a gate variant.
type Kind string

// Built-in kinds.
const (
	KindRange     Kind = "range"
	KindRectangle Kind = "rectangle"
	KindPolygon   Kind = "polygon"
	KindEllipsoid Kind = "ellipsoid"
	KindQuadrant  Kind = "quadrant"
	KindAnd       Kind = "and"
	KindOr        Kind = "or"
	KindXor       Kind = "xor"
	KindNot       Kind = "not"
)

// Gate is a predicate over events. Channels lists the column names the gate
// reads; EvaluateColumns receives the matching column indices of src in the
// same order.
type Gate interface {
	ID() string
	Kind() Kind
	Channels() []string
	EvaluateColumns(src matrix.Source, cols []int) (Mask, error)
}

// Evaluate resolves the gate's channels against src's column names and
// evaluates it.
func Evaluate(g Gate, src matrix.Source) (Mask, error) {
	cols, err := matrix.Resolve(src, g.Channels())
	if err != nil {
		return nil, flowerr.Wrapf(err, "gate %s", g.ID())
	}
	return g.EvaluateColumns(src, cols)
}

// Option configures a gate at construction.
type Option func(*base)

// WithID sets the gate ID instead of a generated UUID.
func WithID(id string) Option {
	return func(b *base) {
		if id != "" {
			b.id = id
		}
	}
}

type base struct {
	id       string
	channels []string
}

func newBase(channels []string, opts []Option) (base, error) {
	if len(channels) == 0 {
		return base{}, flowerr.Dimensionf("gate needs at least one channel")
	}
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c == "" {
			return base{}, flowerr.Dimensionf("empty channel name")
		}
		if seen[c] {
			return base{}, flowerr.Dimensionf("channel %q listed twice", c)
		}
		seen[c] = true
	}
	b := base{id: uuid.NewString(), channels: append([]string(nil), channels...)}
	for _, opt := range opts {
		opt(&b)
	}
	return b, nil
}

func (b *base) ID() string { return b.id }

func (b *base) Channels() []string { return append([]string(nil), b.channels...) }

// pointwise evaluates contains on every row of the selected columns.
func (b *base) pointwise(src matrix.Source, cols []int, contains func(p []float64) bool) (Mask, error) {
	if len(cols) != len(b.channels) {
		return nil, flowerr.Dimensionf("gate %s reads %d channels, got %d columns", b.id, len(b.channels), len(cols))
	}
	data, err := matrix.Columns(src, cols)
	if err != nil {
		return nil, err
	}
	rows, _ := src.Shape()
	out := make(Mask, rows)
	p := make([]float64, len(cols))
	for i := 0; i < rows; i++ {
		for k := range data {
			p[k] = data[k][i]
		}
		out[i] = contains(p)
	}
	return out, nil
}
