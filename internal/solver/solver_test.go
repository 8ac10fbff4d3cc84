package solver

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
)

const (
	applicationSDF = "../sdf/testdata/application.sdf"
	experimentSDF  = "../sdf/testdata/experiment.sdf"
)

// fakeSolver writes a shell script that stands in for the transport code.
func fakeSolver(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake solver is a shell script")
	}
	path := filepath.Join(t.TempDir(), "solver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestRunner(t *testing.T, binary string, mutate func(*config.Config)) (*Runner, *monitoring.Metrics, string) {
	t.Helper()
	workDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Solver.Binary = binary
	cfg.Solver.WorkDir = workDir
	if mutate != nil {
		mutate(cfg)
	}
	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithWriters(io.Discard, io.Discard, slog.LevelDebug)
	return NewRunner(cfg, logger, metrics), metrics, workDir
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		paths    []string
		expected string
		category apperrors.ErrorCategory
	}{
		{
			name:     "filenames and first file",
			template: "cases\n${filenames}\nend\napp ${first_file}\n",
			paths:    []string{"/a.sdf", "/b.sdf"},
			expected: "cases\n/a.sdf\n/b.sdf\nend\napp /a.sdf\n",
		},
		{
			name:     "unknown variables are kept",
			template: "${filenames} ${other} $HOME",
			paths:    []string{"/a.sdf"},
			expected: "/a.sdf ${other} ${HOME}",
		},
		{
			name:     "no paths",
			template: "${filenames}",
			category: apperrors.CategoryValidation,
		},
		{
			name:     "no placeholder",
			template: "read parameters\n",
			paths:    []string{"/a.sdf"},
			category: apperrors.CategoryConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.paths)
			if tt.category != "" {
				assert.True(t, apperrors.IsCategory(err, tt.category), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTemplateStore(t *testing.T) {
	t.Run("empty path yields default", func(t *testing.T) {
		got, err := NewTemplateStore("").Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultTemplate(), got)
		assert.Contains(t, got, "${filenames}")
	})

	t.Run("missing file yields default", func(t *testing.T) {
		got, err := NewTemplateStore(filepath.Join(t.TempDir(), "none.inp")).Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultTemplate(), got)
	})

	t.Run("save then load", func(t *testing.T) {
		store := NewTemplateStore(filepath.Join(t.TempDir(), "nested", "custom.inp"))
		require.NoError(t, store.Save("custom ${filenames}\n"))
		got, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, "custom ${filenames}\n", got)
	})

	t.Run("save without path", func(t *testing.T) {
		err := NewTemplateStore("").Save("x")
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
	})
}

func TestRunner_UncertaintyContributions(t *testing.T) {
	fixture, err := filepath.Abs("../reference/testdata/tsunami_ip.out")
	require.NoError(t, err)
	binary := fakeSolver(t, `grep -q "application.sdf" "$1" || exit 3
cp "`+fixture+`" "$1.out"
`)

	r, metrics, workDir := newTestRunner(t, binary, nil)
	tables, err := r.UncertaintyContributions(context.Background(), []string{applicationSDF, experimentSDF})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "u-235 - u-235", tables[0].Nuclides[0].Nuclide)

	assert.EqualValues(t, 1, metrics.SolverRuns)
	assert.EqualValues(t, 0, metrics.SolverFailures)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "input and output files are removed")
}

func TestRunner_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		paths    []string
		mutate   func(*config.Config)
		category apperrors.ErrorCategory
		message  string
	}{
		{
			name:     "non-zero exit",
			body:     "echo 'fatal: bad input' >&2\nexit 1\n",
			paths:    []string{applicationSDF},
			category: apperrors.CategoryExternalProcess,
		},
		{
			name:     "no output file",
			body:     "exit 0\n",
			paths:    []string{applicationSDF},
			category: apperrors.CategoryExternalProcess,
			message:  "no output file",
		},
		{
			name:     "timeout",
			body:     "sleep 5\n",
			paths:    []string{applicationSDF},
			mutate:   func(c *config.Config) { c.Solver.Timeout = "100ms" },
			category: apperrors.CategoryExternalProcess,
			message:  "timed out",
		},
		{
			name:     "output without tables",
			body:     "echo 'normal termination' > \"$1.out\"\n",
			paths:    []string{applicationSDF},
			category: apperrors.CategoryFormat,
		},
		{
			name:     "missing input file",
			body:     "exit 0\n",
			paths:    []string{"does-not-exist.sdf"},
			category: apperrors.CategoryValidation,
		},
		{
			name:     "no input files",
			body:     "exit 0\n",
			category: apperrors.CategoryValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, metrics, workDir := newTestRunner(t, fakeSolver(t, tt.body), tt.mutate)

			start := time.Now()
			_, err := r.UncertaintyContributions(context.Background(), tt.paths)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, tt.category), "got %v", err)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
			assert.Less(t, time.Since(start), 5*time.Second)

			if tt.category == apperrors.CategoryExternalProcess {
				assert.EqualValues(t, 1, metrics.SolverFailures)
			}

			entries, err := os.ReadDir(workDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestOutputFor(t *testing.T) {
	assert.Equal(t, "/tmp/sensim-1234.out", outputFor("/tmp/sensim-1234"))
	assert.Equal(t, "case.inp.out", outputFor("case.inp"))
}

func TestRunner_InputFileName(t *testing.T) {
	// the solver names its output after the exact input path it was given
	binary := fakeSolver(t, `case "$(basename "$1")" in *.*) exit 4 ;; esac
cp "$1" "$1.out"
`)
	r, _, _ := newTestRunner(t, binary, nil)

	out, err := r.Run(context.Background(), []string{applicationSDF})
	require.NoError(t, err)

	abs, err := filepath.Abs(applicationSDF)
	require.NoError(t, err)
	assert.Contains(t, string(out), abs)
}

func TestRunner_Input(t *testing.T) {
	r, metrics, workDir := newTestRunner(t, fakeSolver(t, "exit 1\n"), nil)

	input, err := r.Input([]string{applicationSDF, experimentSDF})
	require.NoError(t, err)
	app, _ := filepath.Abs(applicationSDF)
	exp, _ := filepath.Abs(experimentSDF)
	assert.Contains(t, input, app+"\n"+exp)
	assert.NotContains(t, input, "${filenames}")

	_, err = r.Input(nil)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	assert.Zero(t, metrics.SolverRuns)
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rendering writes no files")
}

func TestRunner_WithoutObservability(t *testing.T) {
	r, _, _ := newTestRunner(t, fakeSolver(t, "exit 1\n"), nil)
	r.logger, r.metrics = nil, nil

	assert.NotPanics(t, func() {
		_, err := r.Run(context.Background(), []string{applicationSDF})
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryExternalProcess))
	})
}

func TestRunner_Breaker(t *testing.T) {
	r, metrics, _ := newTestRunner(t, fakeSolver(t, "exit 3\n"), func(c *config.Config) {
		c.Solver.BreakerFailures = 2
		c.Solver.BreakerCooldown = "1h"
	})
	require.NotNil(t, r.Breaker())

	for i := 0; i < 2; i++ {
		_, err := r.Run(context.Background(), []string{applicationSDF})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "circuit breaker")
	}

	_, err := r.Run(context.Background(), []string{applicationSDF})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryExternalProcess))
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.EqualValues(t, 2, metrics.SolverRuns, "refused runs do not launch the solver")

	disabled, _, _ := newTestRunner(t, "unused", func(c *config.Config) { c.Solver.BreakerFailures = 0 })
	assert.Nil(t, disabled.Breaker())
}
