package gate

import (
	"math"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Spec is the serializable description of a gate. Only the fields relevant
// to Kind are set. A nil bound in Lower or Upper is an open side.
type Spec struct {
	ID             string      `json:"id,omitempty" yaml:"id,omitempty"`
	Kind           Kind        `json:"kind" yaml:"kind"`
	Channels       []string    `json:"channels,omitempty" yaml:"channels,omitempty"`
	Lower          []*float64  `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper          []*float64  `json:"upper,omitempty" yaml:"upper,omitempty"`
	Vertices       [][]float64 `json:"vertices,omitempty" yaml:"vertices,omitempty"`
	Center         []float64   `json:"center,omitempty" yaml:"center,omitempty"`
	Covariance     [][]float64 `json:"covariance,omitempty" yaml:"covariance,omitempty"`
	DistanceSquare float64     `json:"distance_square,omitempty" yaml:"distance_square,omitempty"`
	Thresholds     []float64   `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Region         string      `json:"region,omitempty" yaml:"region,omitempty"`
	Children       []Spec      `json:"children,omitempty" yaml:"children,omitempty"`
}

// Describe returns the Spec of a built-in gate.
func Describe(g Gate) (Spec, error) {
	switch t := g.(type) {
	case *Rectangle:
		return t.Spec(), nil
	case *Polygon:
		return t.Spec(), nil
	case *Ellipsoid:
		return t.Spec(), nil
	case *Quadrant:
		return t.Spec(), nil
	case *Composite:
		return t.Spec()
	case nil:
		return Spec{}, flowerr.Dimensionf("nil gate")
	default:
		return Spec{}, flowerr.Domainf("gate %s of type %T cannot be described", g.ID(), g)
	}
}

// Spec describes the rectangle.
func (r *Rectangle) Spec() Spec {
	s := Spec{ID: r.id, Kind: r.kind, Channels: r.Channels()}
	s.Lower = make([]*float64, len(r.lo))
	s.Upper = make([]*float64, len(r.hi))
	for k := range r.lo {
		if !math.IsInf(r.lo[k], 0) {
			v := r.lo[k]
			s.Lower[k] = &v
		}
		if !math.IsInf(r.hi[k], 0) {
			v := r.hi[k]
			s.Upper[k] = &v
		}
	}
	return s
}

// Spec describes the polygon.
func (p *Polygon) Spec() Spec {
	vs := make([][]float64, len(p.verts))
	for i, v := range p.verts {
		vs[i] = []float64{v.X, v.Y}
	}
	return Spec{ID: p.id, Kind: KindPolygon, Channels: p.Channels(), Vertices: vs}
}

// Spec describes the ellipsoid.
func (e *Ellipsoid) Spec() Spec {
	return Spec{
		ID:             e.id,
		Kind:           KindEllipsoid,
		Channels:       e.Channels(),
		Center:         e.Center(),
		Covariance:     e.cov.ToRows(),
		DistanceSquare: e.dist2,
	}
}

// Spec describes the quadrant.
func (q *Quadrant) Spec() Spec {
	return Spec{ID: q.id, Kind: KindQuadrant, Channels: q.Channels(), Thresholds: q.Thresholds(), Region: q.region}
}

// Spec describes the composite and its children recursively.
func (c *Composite) Spec() (Spec, error) {
	s := Spec{ID: c.id, Kind: c.op, Children: make([]Spec, len(c.children))}
	for i, ch := range c.children {
		cs, err := Describe(ch)
		if err != nil {
			return Spec{}, err
		}
		s.Children[i] = cs
	}
	return s, nil
}

// FromSpec rebuilds a gate from its description.
func FromSpec(s Spec) (Gate, error) {
	opts := []Option{WithID(s.ID)}
	switch s.Kind {
	case KindRange, KindRectangle:
		if len(s.Lower) != len(s.Channels) || len(s.Upper) != len(s.Channels) {
			return nil, flowerr.Dimensionf("%s spec on %d channels has %d lower and %d upper bounds",
				s.Kind, len(s.Channels), len(s.Lower), len(s.Upper))
		}
		lo := make([]float64, len(s.Lower))
		hi := make([]float64, len(s.Upper))
		for k := range lo {
			lo[k], hi[k] = math.Inf(-1), math.Inf(1)
			if s.Lower[k] != nil {
				lo[k] = *s.Lower[k]
			}
			if s.Upper[k] != nil {
				hi[k] = *s.Upper[k]
			}
		}
		if s.Kind == KindRange {
			if len(s.Channels) != 1 {
				return nil, flowerr.Dimensionf("range spec needs exactly 1 channel, got %d", len(s.Channels))
			}
			return NewRange(s.Channels[0], lo[0], hi[0], opts...)
		}
		return NewRectangle(s.Channels, lo, hi, opts...)
	case KindPolygon:
		if len(s.Channels) != 2 {
			return nil, flowerr.Dimensionf("polygon spec needs 2 channels, got %d", len(s.Channels))
		}
		verts := make([]Point, len(s.Vertices))
		for i, v := range s.Vertices {
			if len(v) != 2 {
				return nil, flowerr.Dimensionf("polygon vertex %d has %d coordinates", i, len(v))
			}
			verts[i] = Point{X: v[0], Y: v[1]}
		}
		return NewPolygon(s.Channels[0], s.Channels[1], verts, opts...)
	case KindEllipsoid:
		cov, err := matrix.NewFromRows(s.Covariance)
		if err != nil {
			return nil, flowerr.Wrap(err, "ellipsoid covariance")
		}
		return NewEllipsoid(s.Channels, s.Center, cov, s.DistanceSquare, opts...)
	case KindQuadrant:
		return NewQuadrant(s.Channels, s.Thresholds, s.Region, opts...)
	case KindAnd, KindOr, KindXor, KindNot:
		children := make([]Gate, len(s.Children))
		for i, cs := range s.Children {
			g, err := FromSpec(cs)
			if err != nil {
				return nil, flowerr.Wrapf(err, "%s child %d", s.Kind, i)
			}
			children[i] = g
		}
		return NewComposite(s.Kind, children, opts...)
	default:
		return nil, flowerr.Domainf("unknown gate kind %q", s.Kind)
	}
}
