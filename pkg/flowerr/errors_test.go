package flowerr

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsAreDistinct(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   func(error) bool
		kind string
	}{
		{"format", Formatf("bad header %q", "XYZ"), IsFormat, "format"},
		{"dimension", Dimensionf("want %d got %d", 2, 3), IsDimension, "dimension"},
		{"missing", MissingDataf("no spillover"), IsMissingData, "missing_data"},
		{"io", IOf("short read"), IsIO, "io"},
		{"domain", Domainf("base %v", -1.0), IsDomain, "domain"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.err)
			assert.True(t, tc.is(tc.err))
			assert.Equal(t, tc.kind, Kind(tc.err))
			for _, other := range cases {
				if other.name == tc.name {
					continue
				}
				assert.False(t, other.is(tc.err), "%s should not match %s", tc.name, other.name)
			}
		})
	}
}

func TestMarkSurvivesWrapping(t *testing.T) {
	err := Wrap(Formatf("odd keyword count"), "parse text segment")
	err = Wrapf(err, "load %s", "a.fcs")
	assert.True(t, IsFormat(err))
	assert.Contains(t, err.Error(), "parse text segment")
	assert.Contains(t, err.Error(), "odd keyword count")
}

func TestWrapIOKeepsCause(t *testing.T) {
	err := WrapIO(fs.ErrNotExist, "open %s", "missing.fcs")
	assert.True(t, IsIO(err))
	assert.True(t, Is(err, fs.ErrNotExist))
	assert.Nil(t, WrapIO(nil, "nothing"))
	assert.Nil(t, WrapFormat(nil, "nothing"))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "", Kind(New("plain")))
}
