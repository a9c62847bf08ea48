package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"corpusnorm/internal/config"
	"corpusnorm/internal/logger"
	"corpusnorm/internal/metrics"
	"corpusnorm/internal/pipeline"
	"corpusnorm/internal/reporter"
	"corpusnorm/pkg/metadata"
)

var errNoOutputDir = errors.New("output directory is required (argument or output.path)")

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	strict     bool
	showInfo   bool

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "corpusnorm",
		Short:         "Validate and normalize multi-source press-release corpora",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.strict, "strict", false, "Treat schema violations as fatal")
	root.PersistentFlags().BoolVar(&a.showInfo, "show-info", true, "Print informational findings such as coverage gaps")

	root.AddCommand(a.validateCmd(), a.normalizeCmd(), a.verifyCmd())

	return root
}

// setup loads the configuration and builds the logger. Flags win over the file and environment.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(a.logLevel)
	}

	if a.strict {
		cfg.Features.StrictValidation = true
	}

	if cmd.Flags().Changed("show-info") {
		cfg.Report.ShowInfo = a.showInfo
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	a.cfg = cfg
	a.log = logger.New(cfg.Logging.Level, cfg.Logging.Format, a.stderr)
	a.log.Debug("Configuration loaded", "config", cfg.String())

	return nil
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <source-dir>",
		Short: "Check every source and print findings; exit non-zero on fatal errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "📂 Validating: %s\n\n", args[0])

			p := pipeline.New(a.cfg, a.log, metrics.New())

			report, err := p.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return a.finish(report)
		},
	}
}

func (a *app) normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <source-dir> [output-dir]",
		Short: "Write canonical CSV, JSONL and XLSX files with a report and manifest",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}

			outDir := a.cfg.Output.Path
			if len(args) == 2 {
				outDir = args[1]
			}

			if outDir == "" {
				return errNoOutputDir
			}

			fmt.Fprintf(a.stdout, "📂 Normalizing: %s -> %s\n\n", args[0], outDir)

			p := pipeline.New(a.cfg, a.log, metrics.New())

			report, err := p.Normalize(cmd.Context(), args[0], outDir)
			if err != nil {
				return err
			}

			if err := a.finish(report); err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "✅ Saved to: %s\n", outDir)

			return nil
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <output-dir>",
		Short: "Check the SHA-256 manifest of an output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := metadata.Load(args[0])
			if err != nil {
				return err
			}

			if _, err := metadata.Verify(args[0]); err != nil {
				return fmt.Errorf("%w: %w", errFatalFindings, err)
			}

			fmt.Fprintf(a.stdout, "✅ %d files match manifest (run %s)\n", len(m.Files), m.RunID)

			report, err := reporter.Load(filepath.Join(args[0], pipeline.ReportFileName))
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "📋 Report: %d sources, %d findings\n", len(report.Sources), len(report.Findings))

			if report.HasFatal() {
				fmt.Fprintln(a.stdout, "⚠️  The run reported fatal findings")
			}

			return nil
		},
	}
}

// finish prints the report and converts fatal findings into the exit status.
func (a *app) finish(report *reporter.Report) error {
	if err := report.WriteText(a.stdout, a.cfg.Report.ShowInfo); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout)

	if report.HasFatal() {
		return errFatalFindings
	}

	return nil
}
