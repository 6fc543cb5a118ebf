package gate

import (
	"math"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Point is a polygon vertex.
type Point struct{ X, Y float64 }

// Polygon is a two-dimensional gate using the non-zero winding rule. The
// closing edge from the last vertex back to the first is implicit, and
// points on any edge are inside.
type Polygon struct {
	base
	verts                  []Point
	minX, minY, maxX, maxY float64
}

// NewPolygon builds a polygon gate over channels x and y.
func NewPolygon(x, y string, verts []Point, opts ...Option) (*Polygon, error) {
	b, err := newBase([]string{x, y}, opts)
	if err != nil {
		return nil, err
	}
	if len(verts) < 3 {
		return nil, flowerr.Dimensionf("polygon needs at least 3 vertices, got %d", len(verts))
	}
	p := &Polygon{base: b, verts: append([]Point(nil), verts...),
		minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	for _, v := range verts {
		if !finite(v.X, v.Y) {
			return nil, flowerr.Domainf("polygon vertex (%v, %v) is not finite", v.X, v.Y)
		}
		p.minX, p.maxX = math.Min(p.minX, v.X), math.Max(p.maxX, v.X)
		p.minY, p.maxY = math.Min(p.minY, v.Y), math.Max(p.maxY, v.Y)
	}
	return p, nil
}

func (p *Polygon) Kind() Kind { return KindPolygon }

// Vertices returns a copy of the vertex list.
func (p *Polygon) Vertices() []Point { return append([]Point(nil), p.verts...) }

// Contains reports whether (x, y) is inside or on the boundary.
func (p *Polygon) Contains(x, y float64) bool {
	if x < p.minX || x > p.maxX || y < p.minY || y > p.maxY || math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	winding := 0
	n := len(p.verts)
	for i := 0; i < n; i++ {
		a, b := p.verts[i], p.verts[(i+1)%n]
		if onSegment(a, b, x, y) {
			return true
		}
		winding += windingSegment(a, b, x, y)
	}
	return winding != 0
}

func (p *Polygon) EvaluateColumns(src matrix.Source, cols []int) (Mask, error) {
	return p.pointwise(src, cols, func(pt []float64) bool { return p.Contains(pt[0], pt[1]) })
}

// windingSegment is the signed crossing of edge a→b with the ray from
// (x, y) towards +x.
func windingSegment(a, b Point, x, y float64) int {
	if a.Y <= y && b.Y > y && isLeft(a, b, x, y) > 0 {
		return 1
	}
	if a.Y > y && b.Y <= y && isLeft(a, b, x, y) < 0 {
		return -1
	}
	return 0
}

// isLeft is positive when (x, y) lies left of the line a→b, zero on it.
func isLeft(a, b Point, x, y float64) float64 {
	return (b.X-a.X)*(y-a.Y) - (x-a.X)*(b.Y-a.Y)
}

func onSegment(a, b Point, x, y float64) bool {
	if isLeft(a, b, x, y) != 0 {
		return false
	}
	return x >= math.Min(a.X, b.X) && x <= math.Max(a.X, b.X) &&
		y >= math.Min(a.Y, b.Y) && y <= math.Max(a.Y, b.Y)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
