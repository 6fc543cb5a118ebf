package gate

import (
	"math"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// Ellipsoid selects points with (x−c)ᵀ Σ⁻¹ (x−c) <= d², where Σ is the
// covariance matrix and d² the distance square, as in Gating-ML.
type Ellipsoid struct {
	base
	center    []float64
	cov       *matrix.Dense
	precision *matrix.Dense
	dist2     float64
}

// NewEllipsoid builds an N-dimensional ellipsoid gate. cov must be
// symmetric and positive definite.
func NewEllipsoid(channels []string, center []float64, cov *matrix.Dense, distanceSquare float64, opts ...Option) (*Ellipsoid, error) {
	b, err := newBase(channels, opts)
	if err != nil {
		return nil, err
	}
	n := len(channels)
	if len(center) != n {
		return nil, flowerr.Dimensionf("ellipsoid on %d channels has a %d-dimensional center", n, len(center))
	}
	if cov == nil {
		return nil, flowerr.Dimensionf("ellipsoid covariance is nil")
	}
	if r, c := cov.Shape(); r != n || c != n {
		return nil, flowerr.Dimensionf("ellipsoid on %d channels has a %dx%d covariance", n, r, c)
	}
	if !cov.IsSymmetric(1e-9) {
		return nil, flowerr.Dimensionf("ellipsoid covariance is not symmetric")
	}
	if !finite(center...) || !finite(cov.RawData()...) {
		return nil, flowerr.Domainf("ellipsoid parameters must be finite")
	}
	if !(distanceSquare > 0) || math.IsInf(distanceSquare, 0) {
		return nil, flowerr.Domainf("ellipsoid distance square must be positive, got %v", distanceSquare)
	}
	prec, err := cov.Inverse()
	if err != nil {
		return nil, flowerr.Wrap(err, "invert ellipsoid covariance")
	}
	if !cov.IsPositiveDefinite(1e-9) {
		return nil, flowerr.Domainf("ellipsoid covariance must be positive definite")
	}
	return &Ellipsoid{
		base:      b,
		center:    append([]float64(nil), center...),
		cov:       cov.Clone(),
		precision: prec,
		dist2:     distanceSquare,
	}, nil
}

// NewEllipse builds a two-dimensional ellipse from its center, semi-axis
// lengths and the rotation (radians) of the first axis from the x axis.
func NewEllipse(x, y string, center [2]float64, semiAxes [2]float64, angle float64, opts ...Option) (*Ellipsoid, error) {
	a, bb := semiAxes[0], semiAxes[1]
	if !(a > 0) || !(bb > 0) {
		return nil, flowerr.Domainf("ellipse semi-axes must be positive, got %v", semiAxes)
	}
	c, s := math.Cos(angle), math.Sin(angle)
	// Σ = R·diag(a², b²)·Rᵀ
	cov, _ := matrix.NewFromRows([][]float64{
		{c*c*a*a + s*s*bb*bb, c * s * (a*a - bb*bb)},
		{c * s * (a*a - bb*bb), s*s*a*a + c*c*bb*bb},
	})
	return NewEllipsoid([]string{x, y}, center[:], cov, 1, opts...)
}

func (e *Ellipsoid) Kind() Kind { return KindEllipsoid }

// Center returns a copy of the center.
func (e *Ellipsoid) Center() []float64 { return append([]float64(nil), e.center...) }

// Covariance returns a copy of the covariance matrix.
func (e *Ellipsoid) Covariance() *matrix.Dense { return e.cov.Clone() }

// DistanceSquare returns d².
func (e *Ellipsoid) DistanceSquare() float64 { return e.dist2 }

// Contains reports whether p is inside or on the surface. A relative slack
// of a few ulps keeps analytically on-surface points inside.
func (e *Ellipsoid) Contains(p []float64) bool {
	n := len(e.center)
	var q float64
	for i := 0; i < n; i++ {
		di := p[i] - e.center[i]
		if math.IsNaN(di) {
			return false
		}
		var row float64
		for j := 0; j < n; j++ {
			row += e.precision.At(i, j) * (p[j] - e.center[j])
		}
		q += di * row
	}
	return q <= e.dist2*(1+1e-12)
}

func (e *Ellipsoid) EvaluateColumns(src matrix.Source, cols []int) (Mask, error) {
	return e.pointwise(src, cols, e.Contains)
}
