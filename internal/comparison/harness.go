// Package comparison checks computed similarity indices against the values a
// transport code reported for the same cases.
package comparison

import (
	"context"
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/reference"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// IndexTypes are the compared E types in report order.
var IndexTypes = []string{
	reference.IndexETotal,
	reference.IndexEFission,
	reference.IndexECapture,
	reference.IndexEScatter,
}

// Cell compares one application-experiment pair.
type Cell struct {
	Application       string              `json:"application"`
	Experiment        string              `json:"experiment"`
	Calculated        uncertain.Float     `json:"calculated"`
	ManualSigma       float64             `json:"manual_sigma"`
	Reference         uncertain.Float     `json:"reference"`
	RelativeMeanDiff  float64             `json:"relative_mean_difference"`
	RelativeSigmaDiff float64             `json:"relative_sigma_difference"`
	CrossCheck        analysis.CrossCheck `json:"cross_check"`
}

// IndexComparison holds the cells of one E type, indexed [application][experiment].
type IndexComparison struct {
	Index     string   `json:"index"`
	Selection string   `json:"selection"`
	Cells     [][]Cell `json:"cells"`

	MaxRelativeMeanDiff  float64 `json:"max_relative_mean_difference"`
	MaxRelativeSigmaDiff float64 `json:"max_relative_sigma_difference"`
	MaxModeSigmaDiff     float64 `json:"max_mode_sigma_difference"`
}

// Report is the result of Compare.
type Report struct {
	Applications []string          `json:"applications"`
	Experiments  []string          `json:"experiments"`
	Indices      []IndexComparison `json:"indices"`
}

// Index returns the comparison of one E type.
func (r *Report) Index(kind string) (*IndexComparison, bool) {
	for i := range r.Indices {
		if r.Indices[i].Index == kind {
			return &r.Indices[i], true
		}
	}
	return nil, false
}

// Compare computes the correlated and manual similarity matrices for every E
// type and sets them against the reference tables. selections maps an E type
// to the reaction it is computed from ("all" for total); types without an
// entry are skipped.
func Compare(ctx context.Context, a *analysis.Analyzer, ref *reference.IntegralIndices, apps, exps []string, selections map[string]string) (*Report, error) {
	if ref == nil {
		return nil, apperrors.NewValidationError("reference indices are required")
	}
	if ref.Applications() != len(apps) || ref.Experiments() != len(exps) {
		return nil, apperrors.NewValidationError("reference table dimensions do not match the cases",
			fmt.Sprintf("reference %dx%d, cases %dx%d", ref.Applications(), ref.Experiments(), len(apps), len(exps)))
	}

	report := &Report{Applications: apps, Experiments: exps}
	for _, kind := range IndexTypes {
		reaction, ok := selections[kind]
		if !ok {
			continue
		}
		expected, _ := ref.E(kind)
		sel := analysis.Selection{Reaction: reaction}

		correlated, err := a.SimilarityMatrix(ctx, apps, exps, sel, analysis.ModeCorrelated)
		if err != nil {
			return nil, fmt.Errorf("%s index: %w", kind, err)
		}
		manual, err := a.SimilarityMatrix(ctx, apps, exps, sel, analysis.ModeManual)
		if err != nil {
			return nil, fmt.Errorf("%s index: %w", kind, err)
		}

		report.Indices = append(report.Indices, compareIndex(kind, sel, apps, exps, correlated, manual, expected))
	}

	if len(report.Indices) == 0 {
		return nil, apperrors.NewValidationError("no index type selected for comparison")
	}
	return report, nil
}

func compareIndex(kind string, sel analysis.Selection, apps, exps []string, correlated, manual [][]uncertain.Float, expected reference.Matrix) IndexComparison {
	out := IndexComparison{Index: kind, Selection: sel.String(), Cells: make([][]Cell, len(apps))}
	for i := range apps {
		out.Cells[i] = make([]Cell, len(exps))
		for j := range exps {
			c, m, r := correlated[i][j], manual[i][j], expected[i][j]
			cell := Cell{
				Application:       apps[i],
				Experiment:        exps[j],
				Calculated:        c,
				ManualSigma:       m.Sigma,
				Reference:         r,
				RelativeMeanDiff:  analysis.RelativeDifference(c.Value, r.Value),
				RelativeSigmaDiff: analysis.RelativeDifference(m.Sigma, r.Sigma),
				CrossCheck: analysis.CrossCheck{
					Correlated: c,
					Manual:     m,
					ValueDiff:  analysis.RelativeDifference(m.Value, c.Value),
					SigmaDiff:  analysis.RelativeDifference(m.Sigma, c.Sigma),
				},
			}
			out.Cells[i][j] = cell

			out.MaxRelativeMeanDiff = math.Max(out.MaxRelativeMeanDiff, cell.RelativeMeanDiff)
			out.MaxRelativeSigmaDiff = math.Max(out.MaxRelativeSigmaDiff, cell.RelativeSigmaDiff)
			out.MaxModeSigmaDiff = math.Max(out.MaxModeSigmaDiff, cell.CrossCheck.SigmaDiff)
		}
	}
	return out
}
