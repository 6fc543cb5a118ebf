package matrix

import (
	"flowcore/pkg/flowerr"
)

// Table is a Dense matrix with unique column labels.
type Table struct {
	names []string
	index map[string]int
	data  *Dense
}

var _ Source = (*Table)(nil)

// NewTable labels the columns of data. Names must be unique and match the
// column count. The table does not copy data.
func NewTable(data *Dense, names []string) (*Table, error) {
	if data == nil {
		return nil, flowerr.Dimensionf("table requires data")
	}
	_, cols := data.Shape()
	if len(names) != cols {
		return nil, flowerr.Dimensionf("%d column names for %d columns", len(names), cols)
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := idx[n]; dup {
			return nil, flowerr.Dimensionf("duplicate column name %q", n)
		}
		idx[n] = i
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return &Table{names: cp, index: idx, data: data}, nil
}

// Shape returns the number of rows and columns.
func (t *Table) Shape() (int, int) { return t.data.Shape() }

// ColumnNames returns a copy of the column labels.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Column returns a copy of column j.
func (t *Table) Column(j int) ([]float64, error) { return t.data.Column(j) }

// ColumnByName returns a copy of the named column.
func (t *Table) ColumnByName(name string) ([]float64, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, flowerr.Dimensionf("no column named %q", name)
	}
	return t.data.Column(j)
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, bool) {
	j, ok := t.index[name]
	return j, ok
}

// Data returns the underlying matrix without copying.
func (t *Table) Data() *Dense { return t.data }

// Resolve maps column names to indices in src. Every name must be present;
// a source without labels cannot be resolved by name.
func Resolve(src Source, names []string) ([]int, error) {
	labels := src.ColumnNames()
	if labels == nil {
		return nil, flowerr.Dimensionf("source has no column names; cannot resolve %v", names)
	}
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		if _, dup := pos[l]; !dup {
			pos[l] = i
		}
	}
	out := make([]int, len(names))
	for k, n := range names {
		j, ok := pos[n]
		if !ok {
			return nil, flowerr.Dimensionf("column %q not present in source", n)
		}
		out[k] = j
	}
	return out, nil
}

// Columns fetches several columns of src by index.
func Columns(src Source, cols []int) ([][]float64, error) {
	out := make([][]float64, len(cols))
	for k, j := range cols {
		c, err := src.Column(j)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

// Materialize copies any Source into a new Dense matrix.
func Materialize(src Source) (*Dense, error) {
	if d, ok := src.(*Dense); ok {
		return d.Clone(), nil
	}
	rows, cols := src.Shape()
	out := New(rows, cols)
	for j := 0; j < cols; j++ {
		c, err := src.Column(j)
		if err != nil {
			return nil, err
		}
		if err := out.SetColumn(j, c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
