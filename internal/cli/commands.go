package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	"github.com/ZanzyTHEbar/sensim/internal/comparison"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/reference"
	"github.com/ZanzyTHEbar/sensim/internal/sdf"
	"github.com/ZanzyTHEbar/sensim/internal/server"
	"github.com/ZanzyTHEbar/sensim/internal/solver"
	"github.com/ZanzyTHEbar/sensim/internal/types"
	"github.com/ZanzyTHEbar/sensim/internal/uncertain"
)

// caseFlags are the application and experiment file lists shared by the matrix commands
type caseFlags struct {
	applications []string
	experiments  []string
}

func (f *caseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.applications, "app", "a", nil, "application sensitivity files")
	cmd.Flags().StringSliceVarP(&f.experiments, "exp", "e", nil, "experiment sensitivity files")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("exp")
}

func (a *app) similarityCommand() *cobra.Command {
	var (
		cases    caseFlags
		reaction string
		mode     string
	)
	cmd := &cobra.Command{
		Use:   "similarity",
		Short: "Compute the similarity index matrix E[application][experiment]",
		RunE: func(cmd *cobra.Command, args []string) error {
			an := a.analyzer()
			m := an.DefaultMode()
			if mode != "" {
				var err error
				if m, err = analysis.ParseMode(mode); err != nil {
					return err
				}
			}
			sel := analysis.Selection{Reaction: reaction}

			matrix, err := an.SimilarityMatrix(cmd.Context(), cases.applications, cases.experiments, sel, m)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), types.SimilarityResponse{
				Mode:         string(m),
				Reaction:     sel.String(),
				Applications: cases.applications,
				Experiments:  cases.experiments,
				Matrix:       matrix,
			})
		},
	}
	cases.register(cmd)
	cmd.Flags().StringVarP(&reaction, "reaction", "r", analysis.AllReactions, "reaction selection of the vectors")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "uncertainty propagation: correlated, automatic or manual")
	return cmd
}

func (a *app) contributionsCommand() *cobra.Command {
	var (
		cases caseFlags
		clean bool
		allow map[string]string
	)
	cmd := &cobra.Command{
		Use:   "contributions",
		Short: "Decompose the similarity index into nuclide and reaction contributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			an := a.analyzer()
			sets, err := an.ContributionMatrix(cmd.Context(), cases.applications, cases.experiments)
			if err != nil {
				return err
			}
			if clean {
				allowed := splitAllow(allow)
				for i := range sets {
					for j := range sets[i] {
						sets[i][j] = an.Clean(sets[i][j], allowed)
					}
				}
			}
			return writeJSON(cmd.OutOrStdout(), types.ContributionsResponse{
				Applications: cases.applications,
				Experiments:  cases.experiments,
				Sets:         sets,
			})
		},
	}
	cases.register(cmd)
	cmd.Flags().BoolVar(&clean, "clean", false, "drop redundant reactions and apply --allow")
	cmd.Flags().StringToStringVar(&allow, "allow", nil, "nuclide=reaction1;reaction2 allowlist used with --clean")
	return cmd
}

func (a *app) compareCommand() *cobra.Command {
	var (
		cases   caseFlags
		refPath string
		indices map[string]string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare computed indices with the integral values tables of a solver output",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := reference.ReadIntegralIndicesFile(refPath)
			if err != nil {
				return err
			}
			if len(indices) == 0 {
				indices = a.cfg.SDF.IndexReactions
			}
			report, err := comparison.Compare(cmd.Context(), a.analyzer(), ref, cases.applications, cases.experiments, indices)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cases.register(cmd)
	cmd.Flags().StringVar(&refPath, "reference", "", "solver output file holding the integral values tables")
	cmd.Flags().StringToStringVar(&indices, "index", nil, "type=reaction selection per similarity index type")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func (a *app) uncertaintyCommand() *cobra.Command {
	var (
		output string
		render bool
	)
	cmd := &cobra.Command{
		Use:   "uncertainty [case files...]",
		Short: "Covariance contributions to the k-eff uncertainty",
		Long: `Reads the covariance contribution table of an existing solver output
(--output), or runs the configured solver on the given sensitivity files and
reads one table per case.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case output != "" && len(args) > 0:
				return apperrors.NewValidationError("give either --output or case files, not both")
			case output != "":
				table, err := reference.ReadUncertaintyContributionsFile(output)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), types.UncertaintyResponse{Tables: []reference.UncertaintyContributions{table}})
			case len(args) == 0:
				return apperrors.NewValidationError("an output file or at least one case file is required")
			}

			runner := solver.NewRunner(a.cfg, a.logger, a.metrics)
			if render {
				input, err := runner.Input(args)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), input)
				return err
			}
			tables, err := runner.UncertaintyContributions(cmd.Context(), args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), types.UncertaintyResponse{Tables: tables})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "existing solver output file")
	cmd.Flags().BoolVar(&render, "render", false, "print the solver input for the case files instead of running it")
	return cmd
}

// profileSummary lists what a sensitivity file holds
type profileSummary struct {
	Path       string              `json:"path"`
	GroupCount int                 `json:"group_count"`
	Groups     []sdf.EnergyGroup   `json:"groups"`
	Profiles   int                 `json:"profiles"`
	Nuclides   map[string][]string `json:"nuclides"`
	Order      []string            `json:"order"`
	Duplicates []sdf.Key           `json:"duplicates,omitempty"`
}

func (a *app) profilesCommand() *cobra.Command {
	var (
		all     bool
		records bool
		key     string
		vector  string
	)
	cmd := &cobra.Command{
		Use:   "profiles <file>",
		Short: "List the sensitivity profiles of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := sdf.ParseKeyKind(key)
			if !ok {
				return apperrors.NewValidationError("key must be names or numbers", key)
			}

			if vector != "" {
				v, err := a.analyzer().Vector(args[0], analysis.Selection{Reaction: vector})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), v)
			}

			f, err := sdf.NewParser(a.cfg.SDF.FieldNames).ReadFile(args[0])
			if err != nil {
				return err
			}
			if !all {
				f = f.RegionIntegrated()
			}
			if records {
				return writeJSON(cmd.OutOrStdout(), f.Records())
			}

			ix := f.Index(kind)
			order := ix.Nuclides()
			if kind == sdf.ByName {
				sdf.SortNuclides(order)
			}
			summary := profileSummary{
				Path:       f.Path,
				GroupCount: f.GroupCount,
				Groups:     f.Groups(),
				Profiles:   len(f.Profiles),
				Nuclides:   make(map[string][]string, len(order)),
				Order:      order,
				Duplicates: ix.Duplicates,
			}
			for _, n := range order {
				summary.Nuclides[n] = ix.Reactions(n)
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include zone-wise profiles")
	cmd.Flags().BoolVar(&records, "records", false, "print every profile as a record keyed by the configured field names")
	cmd.Flags().StringVar(&key, "key", "names", "index profiles by names or numbers")
	cmd.Flags().StringVar(&vector, "vector", "", "print the region-integrated sensitivity vector for a reaction selection (\"all\" or a reaction)")
	return cmd
}

func (a *app) indexCommand() *cobra.Command {
	var (
		appValues []string
		expValues []string
		norms     []string
		mode      string
		sameCase  bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Similarity index of two explicit vectors",
		Long: `Computes E for two vectors given as comma-separated values, each either
"v" or "v+/-s". --norms replaces the vectors' own norms with externally
supplied ones, as "application,experiment".`,
		Example: `  sensim index --app 1+/-0.1,2,3 --exp 1,2+/-0.2,3 --mode manual`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := analysis.ParseMode(mode)
			if err != nil {
				return err
			}
			app, err := parseVector("--app", appValues)
			if err != nil {
				return err
			}
			exp, err := parseVector("--exp", expValues)
			if err != nil {
				return err
			}

			caseID := "experiment"
			if sameCase {
				caseID = "application"
			}
			opts := analysis.Options{Mode: m}
			if len(norms) > 0 {
				n, err := uncertain.ParseFloats(norms)
				if err != nil || len(n) != 2 {
					return apperrors.NewValidationError("--norms takes an application and an experiment norm", norms)
				}
				opts.Norms = &analysis.Norms{Application: n[0], Experiment: n[1]}
			}

			e, err := analysis.SimilarityIndex(analysis.NewVector("application", app), analysis.NewVector(caseID, exp), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"mode": string(m), "index": e})
		},
	}
	cmd.Flags().StringSliceVarP(&appValues, "app", "a", nil, "application vector")
	cmd.Flags().StringSliceVarP(&expValues, "exp", "e", nil, "experiment vector")
	cmd.Flags().StringSliceVar(&norms, "norms", nil, "external application and experiment norms")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(analysis.ModeManual), "uncertainty propagation: correlated, automatic or manual")
	cmd.Flags().BoolVar(&sameCase, "same-case", false, "treat both vectors as the same case (shared provenance in correlated mode)")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("exp")
	return cmd
}

func parseVector(flag string, values []string) ([]uncertain.Float, error) {
	out, err := uncertain.ParseFloats(values)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+flag+" vector", err.Error())
	}
	return out, nil
}

func (a *app) serveCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override the configured port")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	s := server.New(a.cfg, a.logger, a.metrics, a.version)
	defer s.Close()
	return s.Run(ctx)
}

func splitAllow(allow map[string]string) map[string][]string {
	if len(allow) == 0 {
		return nil
	}
	out := make(map[string][]string, len(allow))
	for nuclide, reactions := range allow {
		for _, r := range strings.Split(reactions, ";") {
			if r = strings.TrimSpace(r); r != "" {
				out[nuclide] = append(out[nuclide], r)
			}
		}
	}
	return out
}
