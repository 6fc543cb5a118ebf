package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/pkg/flowerr"
	"flowcore/pkg/matrix"
)

func assertRoundTrip(t *testing.T, tr Transform, xs []float64, relTol float64) {
	t.Helper()
	for _, x := range xs {
		if !tr.InDomain(x) {
			continue
		}
		got := tr.Inverse(tr.Forward(x))
		assert.InDelta(t, x, got, relTol*math.Max(1, math.Abs(x)), "%s at %v", tr.Spec(), x)
	}
}

var probe = []float64{-5000, -100, -1, 0, 0.5, 1, 10, 123.456, 1000, 1e4, 1e5, 262144, 1e6}

func TestLog(t *testing.T) {
	l, err := NewLog(10, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3, l.Forward(1000), 1e-12)
	assert.Equal(t, 0.0, l.Forward(-5), "values below the floor clamp to it")
	assert.False(t, l.InDomain(0.5))
	assertRoundTrip(t, l, probe, 1e-12)

	for _, bad := range [][2]float64{{1, 1}, {0, 1}, {-2, 1}, {10, 0}, {10, -1}} {
		_, err := NewLog(bad[0], bad[1])
		assert.True(t, flowerr.IsDomain(err), "%v", bad)
	}
}

func TestAsinh(t *testing.T) {
	a, err := NewAsinh(150)
	require.NoError(t, err)
	assert.InDelta(t, math.Asinh(1), a.Forward(150), 1e-15)
	assertRoundTrip(t, a, probe, 1e-12)
	_, err = NewAsinh(0)
	assert.True(t, flowerr.IsDomain(err))
}

func TestLinear(t *testing.T) {
	l, err := NewLinear(-100, 900)
	require.NoError(t, err)
	assert.Equal(t, 0.0, l.Forward(-100))
	assert.Equal(t, 1.0, l.Forward(900))
	assertRoundTrip(t, l, probe, 1e-12)
	_, err = NewLinear(3, 3)
	assert.True(t, flowerr.IsDomain(err))
}

func TestBiexParamValidation(t *testing.T) {
	bad := []BiexParams{
		{T: 0, W: 0.5, M: 4.5, A: 0},
		{T: 262144, W: 0.5, M: 0, A: 0},
		{T: 262144, W: -0.1, M: 4.5, A: 0},
		{T: 262144, W: 3, M: 4.5, A: 0},
		{T: 262144, W: 0.5, M: 4.5, A: -1},
		{T: 262144, W: 0.5, M: 4.5, A: 4},
		{T: math.NaN(), W: 0.5, M: 4.5, A: 0},
	}
	for _, p := range bad {
		_, err := NewLogicle(p)
		assert.True(t, flowerr.IsDomain(err), "logicle %+v", p)
		_, err = NewHyperlog(p)
		assert.True(t, flowerr.IsDomain(err), "hyperlog %+v", p)
	}
	_, err := NewHyperlog(BiexParams{T: 1000, W: 0, M: 4, A: 0})
	assert.True(t, flowerr.IsDomain(err))
}

func TestLogicleProperties(t *testing.T) {
	for _, p := range []BiexParams{
		{T: 262144, W: 0.5, M: 4.5, A: 0},
		{T: 10000, W: 1, M: 4, A: 1},
		{T: 1000, W: 0, M: 4, A: 0},
		{T: 262144, W: 2.25, M: 4.5, A: 0},
	} {
		l, err := NewLogicle(p)
		require.NoError(t, err, "%+v", p)
		k := l.Constants()

		// d solves 2(ln d − ln b) + w(b + d) = 0
		w := p.W / (p.M + p.A)
		assert.InDelta(t, 0, 2*(math.Log(k.D)-math.Log(k.B))+w*(k.B+k.D), 1e-10)

		// top of scale maps to 1 and zero to the linearisation point
		assert.InDelta(t, 1, l.Forward(p.T), 1e-9, "%+v", p)
		assert.InDelta(t, k.X1, l.Forward(0), 1e-9)
		assert.InDelta(t, p.T, l.Inverse(1), 1e-9*p.T)

		assertRoundTrip(t, l, probe, 1e-9)

		// monotone increasing
		prev := math.Inf(-1)
		for _, x := range probe {
			y := l.Forward(x)
			assert.Greater(t, y, prev)
			prev = y
		}
	}
}

func TestHyperlogProperties(t *testing.T) {
	h, err := NewHyperlog(BiexParams{T: 262144, W: 0.5, M: 4.5, A: 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, h.Forward(262144), 1e-9)
	assert.InDelta(t, 262144, h.Inverse(1), 1e-6)
	assertRoundTrip(t, h, probe, 1e-9)
}

func TestForwardSpecialValues(t *testing.T) {
	l, err := NewLogicle(BiexParams{T: 262144, W: 0.5, M: 4.5, A: 0})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(l.Forward(math.NaN())))
	assert.True(t, math.IsInf(l.Forward(math.Inf(1)), 1))
	assert.True(t, math.IsInf(l.Forward(math.Inf(-1)), -1))
}

func TestChain(t *testing.T) {
	lin, _ := NewLinear(0, 10)
	as, _ := NewAsinh(2)
	c, err := Chain(lin, as)
	require.NoError(t, err)
	assert.InDelta(t, math.Asinh(0.5/2), c.Forward(5), 1e-15)
	assertRoundTrip(t, c, probe, 1e-9)

	spec := c.Spec()
	assert.Equal(t, "chain", spec.Name)
	require.Len(t, spec.Steps, 2)
	assert.Equal(t, "linear", spec.Steps[0].Name)

	single, err := Chain(as)
	require.NoError(t, err)
	assert.Same(t, as, single)

	_, err = Chain()
	assert.True(t, flowerr.IsDomain(err))
}

func TestNewFunc(t *testing.T) {
	sq, err := NewFunc("sqrt", map[string]float64{"k": 1}, math.Sqrt, func(y float64) float64 { return y * y })
	require.NoError(t, err)
	sq = sq.WithDomain(func(x float64) bool { return x >= 0 })
	assert.Equal(t, 3.0, sq.Forward(9))
	assert.False(t, sq.InDomain(-1))
	assertRoundTrip(t, sq, probe, 1e-12)
	assert.Equal(t, "sqrt(k=1)", sq.Spec().String())

	_, err = NewFunc("broken", nil, math.Sqrt, nil)
	assert.True(t, flowerr.IsDomain(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(WithConstantCacheSize(2))
	assert.Equal(t, []string{"asinh", "hyperlog", "linear", "log", "logicle"}, r.Names())

	spec := Spec{Name: "logicle", Params: map[string]float64{"T": 262144, "W": 0.5, "M": 4.5, "A": 0}}
	a, err := r.Build(spec)
	require.NoError(t, err)
	b, err := r.Build(spec)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CachedConstants())
	assert.True(t, a.Spec().Equal(b.Spec()))
	assert.Equal(t, a.Forward(1234), b.Forward(1234))

	direct, err := NewLogicle(BiexParams{T: 262144, W: 0.5, M: 4.5, A: 0})
	require.NoError(t, err)
	assert.Equal(t, direct.Forward(1234), a.Forward(1234))

	for _, T := range []float64{1000, 2000, 3000} {
		_, err := r.Build(Spec{Name: "logicle", Params: map[string]float64{"T": T}})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, r.CachedConstants(), "cache is bounded")

	_, err = r.Build(Spec{Name: "nope"})
	assert.True(t, flowerr.IsDomain(err))
	_, err = r.Build(Spec{Name: "log", Params: map[string]float64{"base": 1}})
	assert.True(t, flowerr.IsDomain(err))

	cube, _ := NewFunc("cube", nil, math.Cbrt, func(y float64) float64 { return y * y * y })
	require.NoError(t, r.Register("cube", func(map[string]float64) (Transform, error) { return cube, nil }))
	assert.Error(t, r.Register("cube", func(map[string]float64) (Transform, error) { return cube, nil }))
	assert.Error(t, r.Register("chain", func(map[string]float64) (Transform, error) { return cube, nil }))

	ch, err := r.Build(Spec{Name: "chain", Steps: []Spec{{Name: "cube"}, {Name: "asinh", Params: map[string]float64{"c": 5}}}})
	require.NoError(t, err)
	assert.InDelta(t, math.Asinh(2.0/5), ch.Forward(8), 1e-12)

	other := NewRegistry()
	_, err = other.Build(Spec{Name: "cube"})
	assert.True(t, flowerr.IsDomain(err), "registries do not share state")
}

func TestApplyColumns(t *testing.T) {
	data, _ := matrix.NewFromRows([][]float64{{1, 10}, {2, 100}})
	l, _ := NewLog(10, 1)
	out, err := ApplyColumns(l, data, []int{1})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {2, 2}}, out.ToRows())
	assert.Equal(t, 10.0, data.At(0, 1))

	col, err := ApplyColumn(l, data, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, col)

	_, err = ApplyColumns(l, data, []int{2})
	assert.True(t, flowerr.IsDimension(err))

	assert.InDeltaSlice(t, []float64{10, 100}, InverseSlice(l, ForwardSlice(l, []float64{10, 100})), 1e-9)
}
