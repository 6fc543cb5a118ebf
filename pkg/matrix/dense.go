// Package matrix provides the numeric array types shared by every flowcore
// component: a row-major Dense matrix, a column-labelled Table, and the
// Source capability interface that gates, transforms and external tools
// program against.
package matrix

import (
	"fmt"
	"math"
	"strings"

	"flowcore/pkg/flowerr"
)

// Source is the minimal read-only view of a two-dimensional numeric data set:
// a shape plus column access. Dense, Table and flowframe.Frame all satisfy
// it. ColumnNames returns nil when columns are unlabelled.
type Source interface {
	Shape() (rows, cols int)
	ColumnNames() []string
	Column(j int) ([]float64, error)
}

// Dense is a row-major float64 matrix. Rows are events, columns channels.
type Dense struct {
	rows, cols int
	data       []float64
}

var _ Source = (*Dense)(nil)

// New returns a zeroed rows x cols matrix.
func New(rows, cols int) *Dense {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: negative dimension %dx%d", rows, cols))
	}
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// NewFromData wraps data (row-major, len rows*cols) without copying.
func NewFromData(rows, cols int, data []float64) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, flowerr.Dimensionf("negative dimension %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, flowerr.Dimensionf("data length %d does not match %dx%d", len(data), rows, cols)
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

// NewFromRows copies a slice of equal-length rows into a new matrix.
func NewFromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	m := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, flowerr.Dimensionf("row %d has %d columns, want %d", i, len(r), cols)
		}
		copy(m.data[i*cols:(i+1)*cols], r)
	}
	return m, nil
}

// Identity returns the n x n identity matrix.
func Identity(n int) *Dense {
	m := New(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

// Shape returns the number of rows and columns.
func (m *Dense) Shape() (int, int) { return m.rows, m.cols }

// ColumnNames is always nil for a Dense matrix.
func (m *Dense) ColumnNames() []string { return nil }

// At returns element (i, j).
func (m *Dense) At(i, j int) float64 { return m.data[i*m.cols+j] }

// Set assigns element (i, j).
func (m *Dense) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Row returns row i as a slice aliasing the matrix storage.
func (m *Dense) Row(i int) []float64 { return m.data[i*m.cols : (i+1)*m.cols] }

// RawData returns the row-major backing slice without copying.
func (m *Dense) RawData() []float64 { return m.data }

// Column returns a copy of column j.
func (m *Dense) Column(j int) ([]float64, error) {
	if j < 0 || j >= m.cols {
		return nil, flowerr.Dimensionf("column %d out of range [0,%d)", j, m.cols)
	}
	out := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		out[i] = m.data[i*m.cols+j]
	}
	return out, nil
}

// SetColumn overwrites column j with vals.
func (m *Dense) SetColumn(j int, vals []float64) error {
	if j < 0 || j >= m.cols {
		return flowerr.Dimensionf("column %d out of range [0,%d)", j, m.cols)
	}
	if len(vals) != m.rows {
		return flowerr.Dimensionf("column length %d, want %d", len(vals), m.rows)
	}
	for i, v := range vals {
		m.data[i*m.cols+j] = v
	}
	return nil
}

// Clone returns a deep copy.
func (m *Dense) Clone() *Dense {
	out := &Dense{rows: m.rows, cols: m.cols, data: make([]float64, len(m.data))}
	copy(out.data, m.data)
	return out
}

// ToRows returns a copy of the matrix as a slice of rows.
func (m *Dense) ToRows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		r := make([]float64, m.cols)
		copy(r, m.Row(i))
		out[i] = r
	}
	return out
}

// SelectRows returns a new matrix holding the given rows in order.
func (m *Dense) SelectRows(idx []int) (*Dense, error) {
	out := New(len(idx), m.cols)
	for k, i := range idx {
		if i < 0 || i >= m.rows {
			return nil, flowerr.Dimensionf("row %d out of range [0,%d)", i, m.rows)
		}
		copy(out.Row(k), m.Row(i))
	}
	return out, nil
}

// SelectColumns returns a new matrix holding the given columns in order.
func (m *Dense) SelectColumns(cols []int) (*Dense, error) {
	for _, j := range cols {
		if j < 0 || j >= m.cols {
			return nil, flowerr.Dimensionf("column %d out of range [0,%d)", j, m.cols)
		}
	}
	out := New(m.rows, len(cols))
	for i := 0; i < m.rows; i++ {
		src := m.Row(i)
		dst := out.Row(i)
		for k, j := range cols {
			dst[k] = src[j]
		}
	}
	return out, nil
}

// Transpose returns a new transposed matrix.
func (m *Dense) Transpose() *Dense {
	out := New(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out.data[j*m.rows+i] = m.data[i*m.cols+j]
		}
	}
	return out
}

// Mul returns the matrix product m * b.
func (m *Dense) Mul(b *Dense) (*Dense, error) {
	if m.cols != b.rows {
		return nil, flowerr.Dimensionf("cannot multiply %dx%d by %dx%d", m.rows, m.cols, b.rows, b.cols)
	}
	out := New(m.rows, b.cols)
	for i := 0; i < m.rows; i++ {
		row := m.Row(i)
		dst := out.Row(i)
		for k, a := range row {
			if a == 0 {
				continue
			}
			brow := b.Row(k)
			for j := range dst {
				dst[j] += a * brow[j]
			}
		}
	}
	return out, nil
}

// IsSquare reports whether the matrix has as many rows as columns.
func (m *Dense) IsSquare() bool { return m.rows == m.cols }

// IsSymmetric reports whether m equals its transpose within tol.
func (m *Dense) IsSymmetric(tol float64) bool {
	if !m.IsSquare() {
		return false
	}
	for i := 0; i < m.rows; i++ {
		for j := i + 1; j < m.cols; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol*math.Max(1, math.Abs(m.At(i, j))) {
				return false
			}
		}
	}
	return true
}

// Norm1 returns the maximum absolute column sum.
func (m *Dense) Norm1() float64 {
	var best float64
	for j := 0; j < m.cols; j++ {
		var s float64
		for i := 0; i < m.rows; i++ {
			s += math.Abs(m.data[i*m.cols+j])
		}
		if s > best {
			best = s
		}
	}
	return best
}

// EqualApprox reports whether both matrices have the same shape and every
// element differs by at most tol * max(1, |a|).
func (m *Dense) EqualApprox(b *Dense, tol float64) bool {
	if m.rows != b.rows || m.cols != b.cols {
		return false
	}
	for k, a := range m.data {
		if math.Abs(a-b.data[k]) > tol*math.Max(1, math.Abs(a)) {
			return false
		}
	}
	return true
}

// String formats small matrices for debugging.
func (m *Dense) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dense(%dx%d)", m.rows, m.cols)
	if m.rows*m.cols > 64 {
		return b.String()
	}
	for i := 0; i < m.rows; i++ {
		b.WriteString("\n")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%g", m.At(i, j))
		}
	}
	return b.String()
}
