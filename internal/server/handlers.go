package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	"github.com/ZanzyTHEbar/sensim/internal/comparison"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
	"github.com/ZanzyTHEbar/sensim/internal/reference"
	"github.com/ZanzyTHEbar/sensim/internal/types"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// bind decodes and validates a JSON body, reporting failures as validation errors.
func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			appErr := apperrors.NewValidationError("request body too large", tooLarge.Limit)
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			c.Error(appErr)
			return false
		}
		c.Error(apperrors.NewValidationError("Invalid input", err.Error()))
		return false
	}
	return true
}

func (s *Server) checkPaths(c *gin.Context, groups ...[]string) bool {
	var all []string
	for _, g := range groups {
		all = append(all, g...)
	}
	if err := s.guard.ValidatePaths(all); err != nil {
		s.logger.SecurityLogger("invalid_path", c.ClientIP(), c.GetHeader("User-Agent"), map[string]any{
			"path": c.Request.URL.Path,
		})
		c.Error(err)
		return false
	}
	return true
}

// handleSimilarity godoc
// @Summary Similarity index matrix E[application][experiment]
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body types.SimilarityRequest true "case files"
// @Success 200 {object} types.SimilarityResponse
// @Router /similarity [post]
func (s *Server) handleSimilarity(c *gin.Context) {
	var req types.SimilarityRequest
	if !s.bind(c, &req) || !s.checkPaths(c, req.Applications, req.Experiments) {
		return
	}

	mode := s.analyzer.DefaultMode()
	if req.Mode != "" {
		var err error
		if mode, err = analysis.ParseMode(req.Mode); err != nil {
			c.Error(err)
			return
		}
	}
	sel := analysis.Selection{Reaction: req.Reaction}

	var matrix [][]uncertain.Float
	err := monitoring.Trace(c.Request.Context(), s.tracer, "analysis.similarity", func(ctx context.Context) error {
		var err error
		matrix, err = s.analyzer.SimilarityMatrix(ctx, req.Applications, req.Experiments, sel, mode)
		return err
	}, "mode", string(mode), "reaction", sel.String())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, types.SimilarityResponse{
		Mode:         string(mode),
		Reaction:     sel.String(),
		Applications: req.Applications,
		Experiments:  req.Experiments,
		Matrix:       matrix,
	})
}

// handleContributions godoc
// @Summary Nuclide and reaction contributions to the similarity index
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body types.ContributionsRequest true "case files"
// @Success 200 {object} types.ContributionsResponse
// @Router /contributions [post]
func (s *Server) handleContributions(c *gin.Context) {
	var req types.ContributionsRequest
	if !s.bind(c, &req) || !s.checkPaths(c, req.Applications, req.Experiments) {
		return
	}

	var sets [][]*analysis.ContributionSet
	err := monitoring.Trace(c.Request.Context(), s.tracer, "analysis.contributions", func(ctx context.Context) error {
		var err error
		sets, err = s.analyzer.ContributionMatrix(ctx, req.Applications, req.Experiments)
		return err
	})
	if err != nil {
		c.Error(err)
		return
	}
	if req.Clean {
		for i := range sets {
			for j := range sets[i] {
				sets[i][j] = s.analyzer.Clean(sets[i][j], req.Allow)
			}
		}
	}

	c.JSON(http.StatusOK, types.ContributionsResponse{
		Applications: req.Applications,
		Experiments:  req.Experiments,
		Sets:         sets,
	})
}

// handleCompare godoc
// @Summary Compare computed indices with a solver output file
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body types.CompareRequest true "case files and reference output"
// @Success 200 {object} types.CompareResponse
// @Router /compare [post]
func (s *Server) handleCompare(c *gin.Context) {
	var req types.CompareRequest
	if !s.bind(c, &req) || !s.checkPaths(c, req.Applications, req.Experiments, []string{req.Reference}) {
		return
	}

	ref, err := reference.ReadIntegralIndicesFile(req.Reference)
	if err != nil {
		c.Error(err)
		return
	}

	selections := req.Indices
	if len(selections) == 0 {
		selections = s.cfg.SDF.IndexReactions
	}

	var report *comparison.Report
	err = monitoring.Trace(c.Request.Context(), s.tracer, "analysis.compare", func(ctx context.Context) error {
		var err error
		report, err = comparison.Compare(ctx, s.analyzer, ref, req.Applications, req.Experiments, selections)
		return err
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleUncertainty godoc
// @Summary Covariance contributions to the k-eff uncertainty
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body types.UncertaintyRequest true "output file or case files"
// @Success 200 {object} types.UncertaintyResponse
// @Router /uncertainty/contributions [post]
func (s *Server) handleUncertainty(c *gin.Context) {
	var req types.UncertaintyRequest
	if !s.bind(c, &req) {
		return
	}

	if req.Output != "" {
		if !s.checkPaths(c, []string{req.Output}) {
			return
		}
		table, err := reference.ReadUncertaintyContributionsFile(req.Output)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, types.UncertaintyResponse{Tables: []reference.UncertaintyContributions{table}})
		return
	}

	if !s.checkPaths(c, req.Cases) {
		return
	}
	var tables []reference.UncertaintyContributions
	err := monitoring.Trace(c.Request.Context(), s.tracer, "solver.run", func(ctx context.Context) error {
		var err error
		tables, err = s.runner.UncertaintyContributions(ctx, req.Cases)
		return err
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.UncertaintyResponse{Tables: tables})
}
