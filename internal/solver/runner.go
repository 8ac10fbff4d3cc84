package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
	"github.com/ZanzyTHEbar/sensim/internal/reference"
	"github.com/ZanzyTHEbar/sensim/internal/resilience"
	"github.com/ZanzyTHEbar/sensim/internal/sdf"
)

// Runner renders an input file for a set of sensitivity files, runs the
// solver on it and collects the output it writes next to the input.
type Runner struct {
	binary    string
	templates *TemplateStore
	workDir   string
	timeout   time.Duration
	breaker   *resilience.CircuitBreaker
	logger    *monitoring.Logger
	metrics   *monitoring.Metrics
}

// NewRunner creates a solver runner from configuration
func NewRunner(cfg *config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics) *Runner {
	return &Runner{
		binary:    cfg.Solver.Binary,
		templates: NewTemplateStore(cfg.Solver.TemplatePath),
		workDir:   cfg.Solver.WorkDir,
		timeout:   cfg.GetSolverTimeout(),
		breaker:   newBreaker(cfg),
		logger:    logger,
		metrics:   metrics,
	}
}

// newBreaker returns nil when breaker_failures is zero.
func newBreaker(cfg *config.Config) *resilience.CircuitBreaker {
	if cfg.Solver.BreakerFailures == 0 {
		return nil
	}
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Solver.BreakerFailures,
		RecoveryTimeout:  cfg.GetBreakerCooldown(),
	})
}

// Breaker returns the circuit breaker guarding solver launches, or nil
func (r *Runner) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

// Input renders the solver input for a set of sensitivity files without running
// the solver.
func (r *Runner) Input(sdfPaths []string) (string, error) {
	paths, err := sdf.NormalizePaths(sdfPaths)
	if err != nil {
		return "", err
	}
	tmpl, err := r.templates.Load()
	if err != nil {
		return "", err
	}
	return Render(tmpl, paths)
}

// Run executes the solver for the given sensitivity files and returns the
// contents of its output file. Input and output files are removed afterwards.
func (r *Runner) Run(ctx context.Context, sdfPaths []string) ([]byte, error) {
	input, err := r.Input(sdfPaths)
	if err != nil {
		return nil, err
	}

	inputPath, err := r.writeInput(input)
	if err != nil {
		return nil, err
	}
	outputPath := outputFor(inputPath)
	defer apperrors.SafeRemove(inputPath)
	defer apperrors.SafeRemove(outputPath)

	start := time.Now()
	var output []byte
	run := func(ctx context.Context) error {
		output, err = r.execute(ctx, inputPath, outputPath)
		return err
	}
	if r.breaker != nil {
		err = r.breaker.Call(ctx, run)
		if errors.Is(err, resilience.ErrOpen) {
			return nil, apperrors.NewExternalProcessError(r.binary, err)
		}
	} else {
		err = run(ctx)
	}
	if r.logger != nil {
		r.logger.SolverLogger(r.binary, inputPath, len(sdfPaths), time.Since(start), err)
	}
	if r.metrics != nil {
		r.metrics.RecordSolverRun(err == nil)
	}
	if err != nil {
		return nil, err
	}
	return output, nil
}

// UncertaintyContributions runs the solver and parses every covariance
// contribution table from its output.
func (r *Runner) UncertaintyContributions(ctx context.Context, sdfPaths []string) ([]reference.UncertaintyContributions, error) {
	output, err := r.Run(ctx, sdfPaths)
	if err != nil {
		return nil, err
	}

	tables, err := reference.ParseUncertaintyTables(r.binary, output)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, apperrors.NewFormatError(r.binary, 0, "solver output has no uncertainty contribution table")
	}
	return tables, nil
}

func (r *Runner) writeInput(content string) (string, error) {
	if r.workDir != "" {
		if err := os.MkdirAll(r.workDir, 0o755); err != nil {
			return "", apperrors.NewConfigurationError("failed to create solver work directory", err)
		}
	}

	f, err := os.CreateTemp(r.workDir, "sensim-*")
	if err != nil {
		return "", apperrors.NewInternalError("failed to create solver input", err)
	}
	defer apperrors.SafeClose(f, "solver input")

	if _, err := f.WriteString(content); err != nil {
		apperrors.SafeRemove(f.Name())
		return "", apperrors.NewInternalError("failed to write solver input", err)
	}
	return f.Name(), nil
}

func (r *Runner) execute(ctx context.Context, inputPath, outputPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, inputPath)
	cmd.Dir = filepath.Dir(inputPath)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err())
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, apperrors.NewExternalProcessError(r.binary, err)
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, apperrors.NewExternalProcessError(r.binary, fmt.Errorf("no output file %s: %w", filepath.Base(outputPath), err))
	}
	return output, nil
}

// outputFor is where the solver writes its output: the input file name with
// ".out" appended.
func outputFor(inputPath string) string {
	return inputPath + ".out"
}
