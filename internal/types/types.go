package types

import (
	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	"github.com/ZanzyTHEbar/sensim/internal/comparison"
	"github.com/ZanzyTHEbar/sensim/internal/reference"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// SimilarityRequest asks for E[application][experiment] over case files on
// the server's file system.
type SimilarityRequest struct {
	Applications []string `json:"applications" binding:"required,min=1,dive,required"`
	Experiments  []string `json:"experiments" binding:"required,min=1,dive,required"`
	// Reaction selects the profiles of the vectors; "all" or empty for every profile
	Reaction string `json:"reaction"`
	// Mode is correlated (default), automatic or manual
	Mode string `json:"mode" binding:"omitempty,oneof=correlated automatic manual"`
}

// SimilarityResponse carries the similarity matrix
type SimilarityResponse struct {
	Mode         string              `json:"mode"`
	Reaction     string              `json:"reaction"`
	Applications []string            `json:"applications"`
	Experiments  []string            `json:"experiments"`
	Matrix       [][]uncertain.Float `json:"matrix"`
}

// ContributionsRequest asks for nuclide and reaction contributions of every pair
type ContributionsRequest struct {
	Applications []string `json:"applications" binding:"required,min=1,dive,required"`
	Experiments  []string `json:"experiments" binding:"required,min=1,dive,required"`
	// Clean drops redundant reactions and applies Allow
	Clean bool                `json:"clean"`
	Allow map[string][]string `json:"allow"`
}

// ContributionsResponse carries one contribution set per pair, [application][experiment]
type ContributionsResponse struct {
	Applications []string                      `json:"applications"`
	Experiments  []string                      `json:"experiments"`
	Sets         [][]*analysis.ContributionSet `json:"sets"`
}

// CompareRequest compares computed indices with a solver output file
type CompareRequest struct {
	Applications []string `json:"applications" binding:"required,min=1,dive,required"`
	Experiments  []string `json:"experiments" binding:"required,min=1,dive,required"`
	// Reference is the path of the output file holding the integral values tables
	Reference string `json:"reference" binding:"required"`
	// Indices maps E types to reactions and overrides the configured selection
	Indices map[string]string `json:"indices"`
}

// UncertaintyRequest asks for covariance contributions to the k-eff
// uncertainty, either read from an existing output file or computed by
// running the solver on case files.
type UncertaintyRequest struct {
	Output string   `json:"output" binding:"required_without=Cases"`
	Cases  []string `json:"cases" binding:"required_without=Output,omitempty,dive,required"`
}

// UncertaintyResponse carries one table per case
type UncertaintyResponse struct {
	Tables []reference.UncertaintyContributions `json:"tables"`
}

// CompareResponse is the comparison report
type CompareResponse = comparison.Report
