package analysis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestAnalyzer(t *testing.T, mutate func(*config.Config)) (*Analyzer, *monitoring.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithWriters(io.Discard, io.Discard, slog.LevelDebug)
	return NewAnalyzer(cfg, logger, metrics), metrics
}

func TestNewAnalyzer(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*config.Config)
		parallelism int
		mode        Mode
	}{
		{name: "defaults", parallelism: 4, mode: ModeCorrelated},
		{
			name:        "manual mode",
			mutate:      func(c *config.Config) { c.Analysis.Mode = "manual"; c.Analysis.Parallelism = 1 },
			parallelism: 1,
			mode:        ModeManual,
		},
		{
			name:        "non-positive parallelism is clamped",
			mutate:      func(c *config.Config) { c.Analysis.Parallelism = 0 },
			parallelism: 1,
			mode:        ModeCorrelated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAnalyzer(t, tt.mutate)
			assert.NotNil(t, a.preprocessor)
			assert.Equal(t, tt.parallelism, a.parallelism)
			assert.Equal(t, tt.mode, a.DefaultMode())
		})
	}
}

func TestAnalyzer_Load(t *testing.T) {
	a, metrics := newTestAnalyzer(t, nil)

	f, err := a.Load(applicationSDF)
	require.NoError(t, err)
	assert.Len(t, f.Profiles, 6)

	again, err := a.Load(applicationSDF)
	require.NoError(t, err)
	assert.Same(t, f, again)
	assert.EqualValues(t, 1, metrics.FilesParsed)

	_, err = a.Load("does-not-exist.sdf")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}

func TestAnalyzer_LoadConcurrent(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil)

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := a.Load(experimentSDF)
			if err == nil {
				results[i] = f
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestAnalyzer_SimilarityMatrix(t *testing.T) {
	a, metrics := newTestAnalyzer(t, nil)
	cases := []string{applicationSDF, experimentSDF}

	correlated, err := a.SimilarityMatrix(context.Background(), cases, cases, SelectAll(), ModeCorrelated)
	require.NoError(t, err)
	manual, err := a.SimilarityMatrix(context.Background(), cases, cases, SelectAll(), ModeManual)
	require.NoError(t, err)

	require.Len(t, correlated, 2)
	require.Len(t, correlated[0], 2)

	// a case against itself is exact in correlated mode
	assert.InDelta(t, 1, correlated[0][0].Value, 1e-12)
	assert.Less(t, correlated[0][0].Sigma, 1e-6)
	assert.Greater(t, manual[0][0].Sigma, 0.0)

	assert.InDelta(t, 0.8601753668542698, correlated[0][1].Value, 1e-9)
	assert.InDelta(t, correlated[0][1].Value, correlated[1][0].Value, 1e-12)
	assert.InDelta(t, manual[0][1].Value, correlated[0][1].Value, 1e-12)
	assert.Less(t, RelativeDifference(manual[0][1].Sigma, correlated[0][1].Sigma), 1e-6)

	assert.EqualValues(t, 8, metrics.PairsComputed)

	single, err := a.Similarity(applicationSDF, experimentSDF, SelectAll(), ModeManual)
	require.NoError(t, err)
	assert.Equal(t, manual[0][1], single)
}

func TestAnalyzer_SimilarityMatrixErrors(t *testing.T) {
	a, _ := newTestAnalyzer(t, nil)

	_, err := a.SimilarityMatrix(context.Background(), nil, []string{experimentSDF}, SelectAll(), ModeManual)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	_, err = a.SimilarityMatrix(context.Background(), []string{applicationSDF}, []string{experimentSDF}, Selection{Reaction: "chi"}, ModeManual)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategorySelectionEmpty))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.SimilarityMatrix(ctx, []string{applicationSDF}, []string{experimentSDF}, SelectAll(), ModeManual)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_ContributionMatrix(t *testing.T) {
	a, _ := newTestAnalyzer(t, func(c *config.Config) { c.Analysis.Parallelism = 2 })

	sets, err := a.ContributionMatrix(context.Background(), []string{applicationSDF}, []string{experimentSDF, applicationSDF})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Len(t, sets[0], 2)

	assert.InDelta(t, 0.8601753668542698, sets[0][0].Total.Value, 1e-9)
	assert.InDelta(t, 1, sets[0][1].Total.Value, 1e-12)

	cleaned := a.Clean(sets[0][0], nil)
	for _, c := range cleaned.Reactions {
		assert.NotEqual(t, "capture", c.Reaction)
	}
	assert.Len(t, cleaned.Nuclides, 3)
}
