// Package compensation removes fluorescence spillover from event data.
//
// A spillover matrix M has one row per fluorochrome and one column per
// detector; M[i][j] is the fraction of fluorochrome i's signal seen by
// detector j. Observed values are x = s·M, so compensated values are
// s = x·M⁻¹, computed on the subset of columns M names.
package compensation

import (
	"go.uber.org/zap"

	"flowcore/pkg/fcs"
	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

// DefaultMaxCondition is the 1-norm condition number above which a matrix is
// considered too ill-conditioned to invert meaningfully.
const DefaultMaxCondition = 1e12

// Matrix is an immutable channel-labelled spillover matrix together with its
// inverse.
type Matrix struct {
	channels []string
	values   *matrix.Dense
	inverse  *matrix.Dense
	cond     float64
}

// New validates values as an n x n spillover matrix for channels. Singular
// matrices are rejected with a DimensionError.
func New(channels []string, values *matrix.Dense) (*Matrix, error) {
	if values == nil {
		return nil, flowerr.Dimensionf("spillover matrix is nil")
	}
	r, c := values.Shape()
	if r != c {
		return nil, flowerr.Dimensionf("spillover matrix must be square, got %dx%d", r, c)
	}
	if len(channels) != r {
		return nil, flowerr.Dimensionf("%d channel labels for a %dx%d matrix", len(channels), r, c)
	}
	if r == 0 {
		return nil, flowerr.Dimensionf("spillover matrix is empty")
	}
	seen := make(map[string]bool, r)
	for _, ch := range channels {
		if seen[ch] {
			return nil, flowerr.Dimensionf("channel %q appears twice in spillover matrix", ch)
		}
		seen[ch] = true
	}
	lu, err := matrix.Factorize(values)
	if err != nil {
		return nil, flowerr.Wrap(err, "invert spillover matrix")
	}
	inv := lu.Inverse()
	names := make([]string, r)
	copy(names, channels)
	return &Matrix{
		channels: names,
		values:   values.Clone(),
		inverse:  inv,
		cond:     values.Norm1() * inv.Norm1(),
	}, nil
}

// FromSpillover builds a Matrix from a parsed spillover keyword.
func FromSpillover(s *fcs.Spillover) (*Matrix, error) {
	if s == nil {
		return nil, flowerr.MissingDataf("no spillover matrix")
	}
	return New(s.Channels, s.Values)
}

// Dim returns the number of channels.
func (m *Matrix) Dim() int { return len(m.channels) }

// Channels returns a copy of the channel labels.
func (m *Matrix) Channels() []string {
	out := make([]string, len(m.channels))
	copy(out, m.channels)
	return out
}

// Values returns a copy of the spillover values.
func (m *Matrix) Values() *matrix.Dense { return m.values.Clone() }

// Inverse returns a copy of M⁻¹.
func (m *Matrix) Inverse() *matrix.Dense { return m.inverse.Clone() }

// Condition returns the 1-norm condition number ‖M‖₁·‖M⁻¹‖₁.
func (m *Matrix) Condition() float64 { return m.cond }

// Compensate applies m to the given columns of data using the default
// condition limit. The result is a new matrix; data is not modified.
func Compensate(data *matrix.Dense, m *Matrix, cols []int) (*matrix.Dense, error) {
	return NewEngine().Compensate(data, m, cols)
}

// Derive picks the matrix to use for a data set: explicit wins, otherwise
// the spillover declared in kw. It fails with MissingDataError when neither
// exists.
func Derive(explicit *Matrix, kw *fcs.Keywords) (*Matrix, error) {
	if explicit != nil {
		return explicit, nil
	}
	s, err := fcs.SpilloverFromKeywords(kw)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, flowerr.MissingDataf("no compensation matrix given and none of %v present", fcs.SpilloverKeywords)
	}
	return FromSpillover(s)
}

// Engine applies compensation matrices to event data.
type Engine struct {
	maxCond float64
	log     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxCondition overrides DefaultMaxCondition.
func WithMaxCondition(c float64) Option {
	return func(e *Engine) { e.maxCond = c }
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEngine returns an Engine with defaults applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{maxCond: DefaultMaxCondition, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compensate replaces the cols sub-vector x of every row by x·M⁻¹. Columns
// outside cols pass through unchanged.
func (e *Engine) Compensate(data *matrix.Dense, m *Matrix, cols []int) (*matrix.Dense, error) {
	if m == nil {
		return nil, flowerr.MissingDataf("no compensation matrix")
	}
	if len(cols) != m.Dim() {
		return nil, flowerr.Dimensionf("%d columns selected for a %d-channel compensation matrix", len(cols), m.Dim())
	}
	rows, ncol := data.Shape()
	seen := make(map[int]bool, len(cols))
	for _, j := range cols {
		if j < 0 || j >= ncol {
			return nil, flowerr.Dimensionf("column %d out of range [0,%d)", j, ncol)
		}
		if seen[j] {
			return nil, flowerr.Dimensionf("column %d selected twice", j)
		}
		seen[j] = true
	}
	if m.cond > e.maxCond {
		return nil, flowerr.Dimensionf("compensation matrix is ill-conditioned (1-norm condition %.3g > %.3g)", m.cond, e.maxCond)
	}

	out := data.Clone()
	n := len(cols)
	inv := m.inverse
	x := make([]float64, n)
	for i := 0; i < rows; i++ {
		row := out.Row(i)
		for k, j := range cols {
			x[k] = row[j]
		}
		for k, j := range cols {
			var s float64
			for l := 0; l < n; l++ {
				s += x[l] * inv.At(l, k)
			}
			row[j] = s
		}
	}
	e.log.Debug("compensated events", zap.Int("events", rows), zap.Strings("channels", m.channels))
	return out, nil
}

// Apply maps the matrix channel labels onto channelNames (the data's column
// labels) and compensates those columns.
func (e *Engine) Apply(data *matrix.Dense, channelNames []string, m *Matrix) (*matrix.Dense, error) {
	if m == nil {
		return nil, flowerr.MissingDataf("no compensation matrix")
	}
	if _, c := data.Shape(); c != len(channelNames) {
		return nil, flowerr.Dimensionf("%d channel names for %d data columns", len(channelNames), c)
	}
	pos := make(map[string]int, len(channelNames))
	for j, name := range channelNames {
		pos[name] = j
	}
	cols := make([]int, m.Dim())
	for k, ch := range m.channels {
		j, ok := pos[ch]
		if !ok {
			return nil, flowerr.Dimensionf("compensation channel %q not present in data", ch)
		}
		cols[k] = j
	}
	return e.Compensate(data, m, cols)
}
