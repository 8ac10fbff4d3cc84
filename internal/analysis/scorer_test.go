package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

func floatsOf(values, sigmas []float64) []uncertain.Float {
	out := make([]uncertain.Float, len(values))
	for i := range values {
		out[i] = uncertain.New(values[i], sigmas[i])
	}
	return out
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{input: "correlated", expected: ModeCorrelated},
		{input: "automatic", expected: ModeCorrelated},
		{input: " Manual ", expected: ModeManual},
		{input: "exact", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUnsupportedMode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestSimilarityIndexKnownValues(t *testing.T) {
	tests := []struct {
		name     string
		app, exp []float64
		expected float64
	}{
		{name: "orthogonal", app: []float64{1, 0, 0}, exp: []float64{0, 1, 0}, expected: 0},
		{name: "identical", app: []float64{1, 2, 3}, exp: []float64{1, 2, 3}, expected: 1},
		{name: "opposite", app: []float64{1, 2, 3}, exp: []float64{-1, -2, -3}, expected: -1},
		{name: "scaled", app: []float64{1, 2}, exp: []float64{10, 20}, expected: 1},
		{name: "identical ones", app: []float64{1, 1, 1}, exp: []float64{1, 1, 1}, expected: 1},
		{name: "identical fractions", app: []float64{0.3, 0.7, 0.1}, exp: []float64{0.3, 0.7, 0.1}, expected: 1},
	}

	for _, tt := range tests {
		for _, mode := range []Mode{ModeManual, ModeCorrelated} {
			t.Run(tt.name+"/"+string(mode), func(t *testing.T) {
				sigmas := make([]float64, len(tt.app))
				for i := range sigmas {
					sigmas[i] = 0.01
				}
				app := NewVector("application", floatsOf(tt.app, sigmas))
				exp := NewVector("experiment", floatsOf(tt.exp, sigmas))

				e, err := SimilarityIndex(app, exp, Options{Mode: mode})
				require.NoError(t, err)
				assert.Equal(t, tt.expected, e.Value)
			})
		}
	}
}

func TestSelfSimilarityCorrelated(t *testing.T) {
	values := floatsOf([]float64{0.1, -0.02, 0.3, 0.05}, []float64{0.01, 0.002, 0.02, 0.001})
	app := NewVector("case-1", values)
	exp := NewVector("case-1", values)

	e, err := SimilarityIndex(app, exp, Options{Mode: ModeCorrelated})
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Value)
	assert.Less(t, e.Sigma, 1e-6)

	// the same data under different case identifiers is independent
	e, err = SimilarityIndex(app, NewVector("case-2", values), Options{Mode: ModeCorrelated})
	require.NoError(t, err)
	assert.InDelta(t, 1, e.Value, 1e-12)
	assert.Greater(t, e.Sigma, 1e-3)
}

func TestModesAgreeForDistinctCases(t *testing.T) {
	tests := []struct {
		name     string
		app, exp []uncertain.Float
	}{
		{
			name: "similar",
			app:  floatsOf([]float64{0.1, 0.2, -0.05, 0.4}, []float64{0.01, 0.004, 0.002, 0.03}),
			exp:  floatsOf([]float64{0.12, 0.18, -0.04, 0.35}, []float64{0.005, 0.01, 0.001, 0.02}),
		},
		{
			name: "dissimilar",
			app:  floatsOf([]float64{1, -2, 3}, []float64{0.1, 0.3, 0.2}),
			exp:  floatsOf([]float64{-0.5, 0.25, 0.75}, []float64{0.05, 0.01, 0.1}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := CrossCheckModes(NewVector("app", tt.app), NewVector("exp", tt.exp), nil)
			require.NoError(t, err)
			assert.Less(t, check.ValueDiff, 1e-6)
			assert.Less(t, check.SigmaDiff, 1e-6)
			assert.Greater(t, check.Manual.Sigma, 0.0)
		})
	}
}

func TestSimilarityIndexZeroVector(t *testing.T) {
	zero := NewVector("a", floatsOf([]float64{0, 0}, []float64{0.1, 0.1}))
	other := NewVector("b", floatsOf([]float64{1, 2}, []float64{0.1, 0.1}))

	for _, mode := range []Mode{ModeManual, ModeCorrelated} {
		e, err := SimilarityIndex(zero, other, Options{Mode: mode})
		require.NoError(t, err)
		assert.Equal(t, uncertain.Zero, e, "mode %s", mode)
	}
}

func TestSimilarityIndexExternalNorms(t *testing.T) {
	fullApp := NewVector("app", floatsOf([]float64{3, 4, 1}, []float64{0.1, 0.1, 0.1}))
	fullExp := NewVector("exp", floatsOf([]float64{1, 2, 2}, []float64{0.1, 0.1, 0.1}))
	norms := NormsOf(fullApp, fullExp)
	assert.InDelta(t, floats.Norm([]float64{3, 4, 1}, 2), norms.Application.Value, 1e-12)
	assert.InDelta(t, 3, norms.Experiment.Value, 1e-12)
	assert.Greater(t, norms.Application.Sigma, 0.0)

	subApp := NewVector("app", fullApp.Values[:2])
	subExp := NewVector("exp", fullExp.Values[:2])
	expected := (3*1 + 4*2) / (norms.Application.Value * norms.Experiment.Value)

	for _, mode := range []Mode{ModeManual, ModeCorrelated} {
		e, err := SimilarityIndex(subApp, subExp, Options{Mode: mode, Norms: norms})
		require.NoError(t, err)
		assert.InDelta(t, expected, e.Value, 1e-12, "mode %s", mode)
	}

	// plain-valued norms without provenance still work in correlated mode
	plain := &Norms{Application: norms.Application, Experiment: norms.Experiment}
	e, err := SimilarityIndex(subApp, subExp, Options{Mode: ModeCorrelated, Norms: plain})
	require.NoError(t, err)
	assert.InDelta(t, expected, e.Value, 1e-12)
}

func TestSimilarityIndexErrors(t *testing.T) {
	v2 := NewVector("a", floatsOf([]float64{1, 2}, []float64{0, 0}))
	v3 := NewVector("b", floatsOf([]float64{1, 2, 3}, []float64{0, 0, 0}))

	tests := []struct {
		name     string
		app, exp Vector
		opts     Options
		category apperrors.ErrorCategory
	}{
		{name: "length mismatch", app: v2, exp: v3, opts: Options{Mode: ModeManual}, category: apperrors.CategoryDimensionMismatch},
		{name: "empty", app: Vector{Case: "a"}, exp: Vector{Case: "b"}, opts: Options{Mode: ModeManual}, category: apperrors.CategorySelectionEmpty},
		{name: "missing case identifier", app: Vector{Values: v2.Values}, exp: v2, opts: Options{Mode: ModeCorrelated}, category: apperrors.CategoryCaseIdentifier},
		{name: "unknown mode", app: v2, exp: v2, opts: Options{Mode: "exact"}, category: apperrors.CategoryUnsupportedMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SimilarityIndex(tt.app, tt.exp, tt.opts)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, tt.category), "got %v", err)
		})
	}

	// manual mode needs no case identifiers
	_, err := SimilarityIndex(Vector{Values: v2.Values}, Vector{Values: v2.Values}, Options{Mode: ModeManual})
	assert.NoError(t, err)
}
