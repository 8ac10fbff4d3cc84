package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
	"github.com/ZanzyTHEbar/sensim/internal/sdf"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// Analyzer orchestrates loading case files and computing similarity matrices
type Analyzer struct {
	parser       *sdf.Parser
	preprocessor *Preprocessor
	parallelism  int
	cacheFiles   bool
	mode         Mode
	logger       *monitoring.Logger
	metrics      *monitoring.Metrics

	mu    sync.RWMutex
	files map[string]*sdf.File
	loads singleflight.Group
}

// NewAnalyzer creates a new analyzer with all components
func NewAnalyzer(cfg *config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics) *Analyzer {
	parallelism := cfg.Analysis.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	mode, err := ParseMode(cfg.Analysis.Mode)
	if err != nil {
		mode = ModeCorrelated
	}
	return &Analyzer{
		mode:         mode,
		parser:       sdf.NewParser(cfg.SDF.FieldNames),
		preprocessor: NewPreprocessor(cfg.SDF.RedundantReactions),
		parallelism:  parallelism,
		cacheFiles:   cfg.Analysis.CacheFiles,
		logger:       logger,
		metrics:      metrics,
		files:        make(map[string]*sdf.File),
	}
}

// DefaultMode returns the configured propagation mode.
func (a *Analyzer) DefaultMode() Mode {
	return a.mode
}

// Load reads the region-integrated profiles of a case file. Files are cached by
// absolute path when caching is enabled; concurrent loads of one path share a parse.
func (a *Analyzer) Load(path string) (*sdf.File, error) {
	abs, err := sdf.NormalizePath(path)
	if err != nil {
		return nil, err
	}

	if a.cacheFiles {
		a.mu.RLock()
		f, ok := a.files[abs]
		a.mu.RUnlock()
		if ok {
			return f, nil
		}
	}

	v, err, _ := a.loads.Do(abs, func() (any, error) {
		start := time.Now()
		all, err := a.parser.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		a.logParse(all, time.Since(start))

		f := all.RegionIntegrated()
		if a.cacheFiles {
			a.mu.Lock()
			a.files[abs] = f
			a.mu.Unlock()
		}
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sdf.File), nil
}

func (a *Analyzer) logParse(f *sdf.File, duration time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordFileParsed()
	}
	if a.logger == nil {
		return
	}
	dups := f.RegionIntegrated().Index(sdf.ByName).Duplicates
	names := make([]string, len(dups))
	for i, d := range dups {
		names[i] = d.Nuclide + "/" + d.Reaction
	}
	a.logger.ParseLogger(f.Path, f.GroupCount, len(f.Profiles), names, duration)
}

// LoadAll loads every file, failing on the first error.
func (a *Analyzer) LoadAll(paths []string) ([]*sdf.File, error) {
	files := make([]*sdf.File, len(paths))
	for i, p := range paths {
		f, err := a.Load(p)
		if err != nil {
			return nil, err
		}
		files[i] = f
	}
	return files, nil
}

// Vector builds the sensitivity vector of a case file for a selection.
func (a *Analyzer) Vector(path string, sel Selection) (Vector, error) {
	f, err := a.Load(path)
	if err != nil {
		return Vector{}, err
	}
	return BuildVector(f.Path, f.Profiles, sel)
}

// Similarity computes the similarity index of one application-experiment pair.
func (a *Analyzer) Similarity(appPath, expPath string, sel Selection, mode Mode) (uncertain.Float, error) {
	app, err := a.Load(appPath)
	if err != nil {
		return uncertain.Zero, err
	}
	exp, err := a.Load(expPath)
	if err != nil {
		return uncertain.Zero, err
	}
	return pairIndex(app, exp, sel, mode)
}

func pairIndex(app, exp *sdf.File, sel Selection, mode Mode) (uncertain.Float, error) {
	va, ve, err := AlignedVectors(app, exp, sel)
	if err != nil {
		return uncertain.Zero, err
	}
	return SimilarityIndex(va, ve, Options{Mode: mode})
}

// SimilarityMatrix computes E[application][experiment] for every pair. Pairs are
// independent and computed in parallel up to the configured parallelism.
func (a *Analyzer) SimilarityMatrix(ctx context.Context, apps, exps []string, sel Selection, mode Mode) ([][]uncertain.Float, error) {
	if err := requireCases(apps, exps); err != nil {
		return nil, err
	}
	start := time.Now()

	appFiles, err := a.LoadAll(apps)
	if err != nil {
		return nil, err
	}
	expFiles, err := a.LoadAll(exps)
	if err != nil {
		return nil, err
	}

	out := make([][]uncertain.Float, len(apps))
	for i := range out {
		out[i] = make([]uncertain.Float, len(exps))
	}

	err = a.forEachPair(ctx, len(apps), len(exps), func(i, j int) error {
		e, err := pairIndex(appFiles[i], expFiles[j], sel, mode)
		if err != nil {
			return fmt.Errorf("application %s, experiment %s: %w", apps[i], exps[j], err)
		}
		out[i][j] = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.record("similarity", string(mode), len(apps), len(exps), time.Since(start))
	return out, nil
}

// ContributionMatrix decomposes every application-experiment pair.
func (a *Analyzer) ContributionMatrix(ctx context.Context, apps, exps []string) ([][]*ContributionSet, error) {
	if err := requireCases(apps, exps); err != nil {
		return nil, err
	}
	start := time.Now()

	appFiles, err := a.LoadAll(apps)
	if err != nil {
		return nil, err
	}
	expFiles, err := a.LoadAll(exps)
	if err != nil {
		return nil, err
	}

	out := make([][]*ContributionSet, len(apps))
	for i := range out {
		out[i] = make([]*ContributionSet, len(exps))
	}

	err = a.forEachPair(ctx, len(apps), len(exps), func(i, j int) error {
		cs, err := Decompose(appFiles[i], expFiles[j])
		if err != nil {
			return fmt.Errorf("application %s, experiment %s: %w", apps[i], exps[j], err)
		}
		out[i][j] = cs
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.record("contributions", string(ModeManual), len(apps), len(exps), time.Since(start))
	return out, nil
}

// Clean drops redundant reactions from a contribution set and applies an
// optional nuclide -> reactions allowlist.
func (a *Analyzer) Clean(cs *ContributionSet, allow map[string][]string) *ContributionSet {
	return a.preprocessor.Process(cs, allow)
}

func (a *Analyzer) forEachPair(ctx context.Context, rows, cols int, fn func(i, j int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return fn(i, j)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *Analyzer) record(operation, mode string, apps, exps int, duration time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordMatrix(operation, mode, apps*exps, duration)
	}
	if a.logger != nil {
		a.logger.AnalysisLogger(operation, mode, apps, exps, duration, false)
	}
}

func requireCases(apps, exps []string) error {
	if len(apps) == 0 || len(exps) == 0 {
		return apperrors.NewValidationError("at least one application and one experiment are required")
	}
	return nil
}
