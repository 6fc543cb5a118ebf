package matrix

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"flowcore/pkg/flowerr"
)

// LU holds a PA = LU factorisation with partial pivoting.
type LU struct {
	n    int
	lu   mat.LU
	norm float64 // 1-norm of the factorised matrix
}

// Factorize computes the LU decomposition of the square matrix a. It
// returns a DimensionError when a is not square, is empty or is singular
// to working precision.
func Factorize(a *Dense) (*LU, error) {
	if !a.IsSquare() {
		return nil, flowerr.Dimensionf("LU requires a square matrix, got %dx%d", a.rows, a.cols)
	}
	if a.rows == 0 {
		return nil, flowerr.Dimensionf("LU of an empty matrix")
	}
	f := &LU{n: a.rows, norm: a.Norm1()}
	f.lu.Factorize(a.gonum())
	if cond := f.lu.Cond(); f.lu.Det() == 0 || !(cond <= mat.ConditionTolerance) {
		return nil, flowerr.Dimensionf("matrix is singular (condition %g)", cond)
	}
	return f, nil
}

// Det returns the determinant of the factorised matrix.
func (f *LU) Det() float64 { return f.lu.Det() }

// SolveVec solves A x = b.
func (f *LU) SolveVec(b []float64) ([]float64, error) {
	if len(b) != f.n {
		return nil, flowerr.Dimensionf("right-hand side length %d, want %d", len(b), f.n)
	}
	var x mat.VecDense
	if err := f.lu.SolveVecTo(&x, false, mat.NewVecDense(f.n, append([]float64(nil), b...))); err != nil {
		return nil, flowerr.Dimensionf("solve: %v", err)
	}
	out := make([]float64, f.n)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// Inverse returns A⁻¹.
func (f *LU) Inverse() *Dense {
	var inv mat.Dense
	// Factorize already rejected matrices the solver would flag.
	_ = f.lu.SolveTo(&inv, false, Identity(f.n).gonum())
	return fromGonum(&inv)
}

// Condition returns the 1-norm condition number ‖A‖₁·‖A⁻¹‖₁.
func (f *LU) Condition() float64 {
	return f.norm * f.Inverse().Norm1()
}

// Inverse returns the inverse of a square matrix. Singular input yields a
// DimensionError.
func (m *Dense) Inverse() (*Dense, error) {
	f, err := Factorize(m)
	if err != nil {
		return nil, err
	}
	return f.Inverse(), nil
}

// IsPositiveDefinite reports whether m is symmetric within tol and admits a
// Cholesky factorisation.
func (m *Dense) IsPositiveDefinite(tol float64) bool {
	if m.rows == 0 || !m.IsSymmetric(tol) {
		return false
	}
	for _, v := range m.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	var ch mat.Cholesky
	return ch.Factorize(mat.NewSymDense(m.rows, append([]float64(nil), m.data...)))
}

// gonum views m as a gonum matrix sharing its storage. m must not be empty.
func (m *Dense) gonum() *mat.Dense {
	return mat.NewDense(m.rows, m.cols, m.data)
}

func fromGonum(g *mat.Dense) *Dense {
	r, c := g.Dims()
	out := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.data[i*c+j] = g.At(i, j)
		}
	}
	return out
}
