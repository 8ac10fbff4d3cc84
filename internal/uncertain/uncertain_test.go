package uncertain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagFor(source string, group int) Tag {
	return Tag{Source: CaseSource(source), ID: ComponentID{Nuclide: "u-235", Reaction: "fission", Group: group}}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Float
		wantErr  bool
	}{
		{"value and sigma", "0.998+/-0.0012", Float{Value: 0.998, Sigma: 0.0012}, false},
		{"scientific with spaces", " 1.5E-02 +/- 3.0E-04 ", Float{Value: 0.015, Sigma: 0.0003}, false},
		{"bare value", "-2.5", Float{Value: -2.5}, false},
		{"negative sigma is folded", "1+/--0.5", Float{Value: 1, Sigma: 0.5}, false},
		{"garbage", "abc", Float{}, true},
		{"garbage sigma", "1+/-x", Float{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected.Value, got.Value, 1e-15)
			assert.InDelta(t, tt.expected.Sigma, got.Sigma, 1e-15)
		})
	}
}

func TestFloatHelpers(t *testing.T) {
	f := New(-4, 0.2)
	assert.InDelta(t, 0.05, f.RelativeSigma(), 1e-15)
	assert.Equal(t, 0.0, Zero.RelativeSigma())
	assert.True(t, Zero.IsZero())
	assert.Equal(t, "-4+/-0.2", f.String())
	assert.Equal(t, "-4.000E+00+/-2.00E-01", f.Format(3, 2))

	fs := []Float{New(1, 0.1), New(2, 0.2)}
	assert.Equal(t, []float64{1, 2}, Values(fs))
	assert.Equal(t, []float64{0.1, 0.2}, Sigmas(fs))
}

func TestCaseSourceIsDeterministic(t *testing.T) {
	assert.Equal(t, CaseSource("/data/app.sdf"), CaseSource("/data/app.sdf"))
	assert.NotEqual(t, CaseSource("/data/app.sdf"), CaseSource("/data/exp.sdf"))
	assert.NotEqual(t, NewSource(), NewSource())
}

func TestVarArithmetic(t *testing.T) {
	x := Leaf(3, 0.1, tagFor("a", 0))
	y := Leaf(4, 0.2, tagFor("a", 1))

	t.Run("product of independent leaves", func(t *testing.T) {
		p := Mul(x, y)
		assert.Equal(t, 12.0, p.Value())
		expected := 16*0.01 + 9*0.04
		assert.InDelta(t, expected, p.Variance(), 1e-12)
	})

	t.Run("sum and difference", func(t *testing.T) {
		assert.InDelta(t, 0.05, Add(x, y).Variance(), 1e-12)
		assert.InDelta(t, 0.05, Sub(x, y).Variance(), 1e-12)
		assert.InDelta(t, 0.0, Sub(x, x).Variance(), 1e-15)
	})

	t.Run("ratio of a variable to itself is exact", func(t *testing.T) {
		r := Div(x, x)
		assert.Equal(t, 1.0, r.Value())
		assert.InDelta(t, 0.0, r.StdDev(), 1e-12)
	})

	t.Run("scale", func(t *testing.T) {
		assert.InDelta(t, 0.04, Scale(x, -2).Variance(), 1e-12)
	})

	t.Run("sqrt", func(t *testing.T) {
		s := Sqrt(Leaf(4, 0.4, tagFor("a", 2)))
		assert.Equal(t, 2.0, s.Value())
		assert.InDelta(t, 0.1, s.StdDev(), 1e-12)
		assert.Equal(t, 0.0, Sqrt(Constant(0)).StdDev())
	})

	t.Run("constants carry no uncertainty", func(t *testing.T) {
		assert.Equal(t, 0.0, Mul(Constant(2), Constant(3)).Variance())
		assert.Equal(t, 0.0, Leaf(5, 0, tagFor("a", 9)).Variance())
	})
}

func TestNormMatchesClosedForm(t *testing.T) {
	xs := []Var{Leaf(3, 0.1, tagFor("a", 0)), Leaf(4, 0.2, tagFor("a", 1))}
	n := Norm(xs)

	assert.Equal(t, 5.0, n.Value())
	expected := (9.0/25)*0.01 + (16.0/25)*0.04
	assert.InDelta(t, expected, FromBase(n).Variance(), 1e-12)
}

func TestUnitVectorComponentsMatchJacobian(t *testing.T) {
	values := []float64{1, -2, 3, 0.5}
	sigmas := []float64{0.1, 0.05, 0.3, 0.02}

	xs := make([]Var, len(values))
	for i := range values {
		xs[i] = Leaf(values[i], sigmas[i], tagFor("a", i))
	}
	n := Norm(xs)
	norm := FromBase(n)

	var sumSq float64
	for _, v := range values {
		sumSq += v * v
	}
	nv := math.Sqrt(sumSq)

	for i := range values {
		unit := Div(xs[i], norm)

		var variance float64
		for j := range values {
			var d float64
			if i == j {
				d = (sumSq - values[i]*values[i]) / (nv * nv * nv)
			} else {
				d = -values[i] * values[j] / (nv * nv * nv)
			}
			variance += d * d * sigmas[j] * sigmas[j]
		}
		assert.InDelta(t, values[i]/nv, unit.Value(), 1e-15)
		assert.InDelta(t, variance, unit.Variance(), 1e-14)
	}
}

func TestSelfDotOfUnitVectorHasNoVariance(t *testing.T) {
	values := []float64{0.2, -0.1, 0.7, 0.05}
	build := func() []Var {
		xs := make([]Var, len(values))
		for i, v := range values {
			xs[i] = Leaf(v, 0.1*math.Abs(v)+0.01, tagFor("same", i))
		}
		n := FromBase(Norm(xs))
		unit := make([]Var, len(xs))
		for i := range xs {
			unit[i] = Div(xs[i], n)
		}
		return unit
	}

	e := Dot(build(), build())
	assert.InDelta(t, 1.0, e.Value(), 1e-12)
	assert.InDelta(t, 0.0, e.StdDev(), 1e-6)
}

func TestDecorrelateSeversProvenance(t *testing.T) {
	x := Leaf(2, 0.3, tagFor("a", 0))
	y := Mul(x, Constant(2))

	d := Decorrelate(y, ComponentID{Group: 0})
	assert.Equal(t, y.Value(), d.Value())
	assert.InDelta(t, y.StdDev(), d.StdDev(), 1e-15)
	assert.Equal(t, 0.0, Covariance(d, y))
	assert.InDelta(t, 0.6*0.3, Covariance(y, x), 1e-12)
}

func TestFreezePreservesVariance(t *testing.T) {
	x := Leaf(2, 0.3, tagFor("a", 0))
	y := Leaf(5, 0.1, tagFor("a", 1))
	v := Add(Mul(x, y), Scale(x, 3))

	frozen := FromBase(Freeze(v))
	assert.InDelta(t, v.Variance(), frozen.Variance(), 1e-12)
	assert.InDelta(t, v.Variance(), Covariance(v, frozen), 1e-12)
}

func TestDotPanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Dot([]Var{Constant(1)}, []Var{Constant(1), Constant(2)})
	})
}
