// Package cli implements the sensim command line.
package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	"github.com/ZanzyTHEbar/sensim/internal/config"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
)

// app is the state shared by every command once the configuration is loaded
type app struct {
	version    string
	configPath string
	logLevel   string

	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
}

// NewRootCommand builds the sensim command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:           "sensim",
		Short:         "Similarity indices between sensitivity profiles of criticality cases",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		a.similarityCommand(),
		a.contributionsCommand(),
		a.compareCommand(),
		a.uncertaintyCommand(),
		a.profilesCommand(),
		a.indexCommand(),
		a.serveCommand(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = monitoring.NewLoggerWithWriters(cmd.ErrOrStderr(), io.Discard, monitoring.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.File != "" {
		a.logger = monitoring.NewLogger(cfg.Logging)
	}
	a.metrics = monitoring.NewMetrics()
	return nil
}

func (a *app) analyzer() *analysis.Analyzer {
	return analysis.NewAnalyzer(a.cfg, a.logger, a.metrics)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
