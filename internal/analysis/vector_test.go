package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

func TestBuildVector(t *testing.T) {
	f := loadFixture(t, applicationSDF).RegionIntegrated()

	tests := []struct {
		name     string
		sel      Selection
		length   int
		first    float64
		wantErr  bool
		category apperrors.ErrorCategory
	}{
		{name: "all", sel: SelectAll(), length: 18, first: 0.08},
		{name: "empty selection means all", sel: Selection{}, length: 18, first: 0.08},
		{name: "capture", sel: Selection{Reaction: "capture"}, length: 6, first: -0.03},
		{name: "unknown reaction", sel: Selection{Reaction: "n,2n"}, wantErr: true, category: apperrors.CategorySelectionEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := BuildVector(f.Path, f.Profiles, tt.sel)
			if tt.wantErr {
				assert.True(t, apperrors.IsCategory(err, tt.category))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, f.Path, v.Case)
			assert.Equal(t, tt.length, v.Len())
			assert.InDelta(t, tt.first, v.Values[0].Value, 1e-12)
			assert.Len(t, v.IDs, v.Len())
		})
	}
}

func TestAlignedVectors(t *testing.T) {
	app := loadFixture(t, applicationSDF).RegionIntegrated()
	exp := loadFixture(t, experimentSDF).RegionIntegrated()

	a, e, err := AlignedVectors(app, exp, SelectAll())
	require.NoError(t, err)

	// u-235 x3, u-238 x3 from the application, then h-1 x3 from the experiment
	require.Equal(t, 27, a.Len())
	require.Equal(t, 27, e.Len())

	for i := 0; i < 9; i++ {
		assert.Equal(t, a.IDs[i].Nuclide, e.IDs[i].Nuclide)
		assert.Equal(t, a.IDs[i].Reaction, e.IDs[i].Reaction)
	}
	// u-238 is padded on the experiment side and h-1 on the application side
	for i := 9; i < 18; i++ {
		assert.Equal(t, uncertain.Zero, e.Values[i])
	}
	for i := 18; i < 27; i++ {
		assert.Equal(t, uncertain.Zero, a.Values[i])
	}

	t.Run("single reaction", func(t *testing.T) {
		a, e, err := AlignedVectors(app, exp, Selection{Reaction: "fission"})
		require.NoError(t, err)
		assert.Equal(t, 9, a.Len())
		idx, err := SimilarityIndex(a, e, Options{Mode: ModeManual})
		require.NoError(t, err)
		assert.InDelta(t, 0.9747030666725676, idx.Value, 1e-9)
	})

	t.Run("selection empty on one side", func(t *testing.T) {
		_, _, err := AlignedVectors(app, exp, Selection{Reaction: "nubar"})
		assert.True(t, apperrors.IsCategory(err, apperrors.CategorySelectionEmpty))
	})
}

func TestVectorVars(t *testing.T) {
	v := NewVector("case", []uncertain.Float{{Value: 1, Sigma: 0.1}, {Value: 2}})
	vars := v.Vars()
	require.Len(t, vars, 2)
	assert.InDelta(t, 0.1, vars[0].StdDev(), 1e-15)
	assert.Equal(t, 0.0, vars[1].StdDev())

	again := NewVector("case", v.Values).Vars()
	assert.InDelta(t, 0.01, uncertain.Covariance(vars[0], again[0]), 1e-15)

	other := NewVector("other", v.Values).Vars()
	assert.Equal(t, 0.0, uncertain.Covariance(vars[0], other[0]))
}
