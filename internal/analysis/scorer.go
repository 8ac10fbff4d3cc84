package analysis

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// Mode selects how uncertainty is propagated into a similarity index.
type Mode string

const (
	// ModeCorrelated tracks every component's provenance and propagates exactly to first order.
	ModeCorrelated Mode = "correlated"
	// ModeManual uses the closed-form unit vector and dot product formulas.
	ModeManual Mode = "manual"
)

// ParseMode accepts "correlated", "manual" and "automatic" (same as correlated).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "correlated", "automatic":
		return ModeCorrelated, nil
	case "manual":
		return ModeManual, nil
	}
	return "", apperrors.NewUnsupportedModeError("propagation", s)
}

// Norms replaces the vectors' own norms during normalization.
type Norms struct {
	Application uncertain.Float `json:"application"`
	Experiment  uncertain.Float `json:"experiment"`

	application *uncertain.Base
	experiment  *uncertain.Base
}

// NormsOf computes the norms of two full vectors, keeping their provenance so
// that correlated mode sees them as functions of the same components.
func NormsOf(app, exp Vector) *Norms {
	a := uncertain.Norm(app.Vars())
	e := uncertain.Norm(exp.Vars())
	return &Norms{
		Application: uncertain.FromBase(a).Float(),
		Experiment:  uncertain.FromBase(e).Float(),
		application: a,
		experiment:  e,
	}
}

// Options configures one similarity computation.
type Options struct {
	Mode  Mode
	Norms *Norms
}

// SimilarityIndex computes E = (a/|a|)·(b/|b|) with propagated uncertainty.
func SimilarityIndex(app, exp Vector, opts Options) (uncertain.Float, error) {
	if app.Len() != exp.Len() {
		return uncertain.Zero, apperrors.NewDimensionMismatchError(app.Len(), exp.Len())
	}
	if app.Len() == 0 {
		return uncertain.Zero, apperrors.NewSelectionEmptyError("empty vector")
	}

	switch opts.Mode {
	case ModeManual:
		return manualIndex(app, exp, opts.Norms), nil
	case ModeCorrelated, "":
		if app.Case == "" || exp.Case == "" {
			return uncertain.Zero, apperrors.NewCaseIdentifierError()
		}
		return correlatedIndex(app, exp, opts.Norms), nil
	}
	return uncertain.Zero, apperrors.NewUnsupportedModeError("propagation", string(opts.Mode))
}

func manualIndex(app, exp Vector, norms *Norms) uncertain.Float {
	a, b := app.Nominal(), exp.Nominal()
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if norms != nil {
		na, nb = norms.Application.Value, norms.Experiment.Value
	}

	ua, ub := scaled(a, na), scaled(b, nb)

	// unit uncertainties always come from each vector's own Jacobian
	sa := UnitVectorUncertainty(a, app.Sigmas())
	sb := UnitVectorUncertainty(b, exp.Sigmas())

	value := floats.Dot(ua, ub)
	if norms == nil {
		value = cosine(a, b)
	}
	return uncertain.New(value, DotProductUncertainty(ua, sa, ub, sb))
}

// cosine is a·b/sqrt((a·a)(b·b)), which is exactly 1 for identical vectors and
// never leaves [-1, 1]. A zero vector gives 0.
func cosine(a, b []float64) float64 {
	den := math.Sqrt(floats.Dot(a, a) * floats.Dot(b, b))
	if den == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, floats.Dot(a, b)/den))
}

func scaled(x []float64, norm float64) []float64 {
	out := make([]float64, len(x))
	if norm == 0 {
		return out
	}
	floats.ScaleTo(out, 1/norm, x)
	return out
}

func correlatedIndex(app, exp Vector, norms *Norms) uncertain.Float {
	xa, xb := app.Vars(), exp.Vars()

	var na, nb *uncertain.Base
	if norms != nil {
		na = trackedNorm(norms.application, norms.Application)
		nb = trackedNorm(norms.experiment, norms.Experiment)
	} else {
		na, nb = uncertain.Norm(xa), uncertain.Norm(xb)
	}

	ua, ub := unitVars(xa, na), unitVars(xb, nb)

	if app.Case != exp.Case {
		for i := range ua {
			ua[i] = uncertain.Decorrelate(ua[i], app.id(i))
			ub[i] = uncertain.Decorrelate(ub[i], exp.id(i))
		}
	}

	e := uncertain.Dot(ua, ub).Float()
	if norms == nil {
		e.Value = cosine(app.Nominal(), exp.Nominal())
	}
	return e
}

// trackedNorm falls back to an independent variable when the norm was supplied
// as a plain value.
func trackedNorm(base *uncertain.Base, value uncertain.Float) *uncertain.Base {
	if base != nil {
		return base
	}
	leaf := uncertain.Leaf(value.Value, value.Sigma, uncertain.Tag{Source: uncertain.NewSource()})
	return uncertain.Freeze(leaf)
}

func unitVars(xs []uncertain.Var, norm *uncertain.Base) []uncertain.Var {
	out := make([]uncertain.Var, len(xs))
	if norm.Value() == 0 {
		for i := range out {
			out[i] = uncertain.Constant(0)
		}
		return out
	}
	n := uncertain.FromBase(norm)
	for i, x := range xs {
		out[i] = uncertain.Div(x, n)
	}
	return out
}

// CrossCheck holds one index computed in both modes.
type CrossCheck struct {
	Correlated uncertain.Float `json:"correlated"`
	Manual     uncertain.Float `json:"manual"`
	ValueDiff  float64         `json:"value_relative_difference"`
	SigmaDiff  float64         `json:"sigma_relative_difference"`
}

// CrossCheckModes computes the index in both modes and their relative
// differences, taking the correlated result as reference.
func CrossCheckModes(app, exp Vector, norms *Norms) (CrossCheck, error) {
	correlated, err := SimilarityIndex(app, exp, Options{Mode: ModeCorrelated, Norms: norms})
	if err != nil {
		return CrossCheck{}, err
	}
	manual, err := SimilarityIndex(app, exp, Options{Mode: ModeManual, Norms: norms})
	if err != nil {
		return CrossCheck{}, err
	}
	return CrossCheck{
		Correlated: correlated,
		Manual:     manual,
		ValueDiff:  RelativeDifference(manual.Value, correlated.Value),
		SigmaDiff:  RelativeDifference(manual.Sigma, correlated.Sigma),
	}, nil
}
