package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/reckon/internal/config"
	"github.com/roach88/reckon/internal/engine"
	"github.com/roach88/reckon/internal/notify"
	"github.com/roach88/reckon/internal/report"
	"github.com/roach88/reckon/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string

	// Input path overrides; empty means use the config file's inputs.
	Raw           string
	Authoritative string
	Aggregates    string
	StoreDims     string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one reconciliation and validation run",
		Long: `Execute a single reconciliation run: load the raw and authoritative
batches, match and enrich, apply the zero-trust rules, check parity,
evaluate SLOs, dispatch alerts, and commit everything in one transaction.

Exit code 0 means every objective passed; 1 means the run committed but
an objective is failing; 2 means the run could not complete.

Example:
  reckon run --db ./reckon.db --raw raw.json --authoritative auth.json --aggregates agg.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Raw, "raw", "", "path to raw transaction batch (JSON)")
	cmd.Flags().StringVar(&opts.Authoritative, "authoritative", "", "path to authoritative record batch (JSON)")
	cmd.Flags().StringVar(&opts.Aggregates, "aggregates", "", "path to aggregate stamped-count document (JSON)")
	cmd.Flags().StringVar(&opts.StoreDims, "store-dims", "", "path to store dimension map (JSON, optional)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runOnce(cmd *cobra.Command, opts *RunOptions) error {
	setupLogging(opts.Verbose)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("close database", "error", closeErr)
		}
	}()

	eng, notifier, err := buildEngine(st, cfg, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "build engine", err)
	}
	defer notifier.Close()

	result, err := eng.Run(cmd.Context())
	if err != nil {
		if store.IsRunConflict(err) {
			return WrapExitError(ExitCommandError, "another run is in progress", err)
		}
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	summary := report.FromRunResult(result)
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if formatter.JSONOutput() {
		data, err := summary.JSON()
		if err != nil {
			return WrapExitError(ExitCommandError, "render summary", err)
		}
		if _, err := formatter.Writer.Write(data); err != nil {
			return WrapExitError(ExitCommandError, "write summary", err)
		}
	} else {
		fmt.Fprint(formatter.Writer, summary.Text())
	}

	for _, status := range result.Statuses {
		if !status.Passed {
			return NewExitError(ExitFailure, fmt.Sprintf("objective %s is failing", status.Name))
		}
	}
	return nil
}

// loadConfig loads the config file, or defaults when no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildEngine wires the engine's collaborators from flags and config.
// Flag paths win over the config file's inputs section.
func buildEngine(st *store.Store, cfg *config.Config, opts *RunOptions) (*engine.Engine, notify.Notifier, error) {
	rawPath := firstNonEmpty(opts.Raw, cfg.Inputs.Raw)
	authPath := firstNonEmpty(opts.Authoritative, cfg.Inputs.Authoritative)
	aggPath := firstNonEmpty(opts.Aggregates, cfg.Inputs.Aggregates)
	dimsPath := firstNonEmpty(opts.StoreDims, cfg.Inputs.StoreDimensions)

	if rawPath == "" || authPath == "" || aggPath == "" {
		return nil, nil, fmt.Errorf("raw, authoritative and aggregates inputs are required (flags or config inputs section)")
	}

	var notifier notify.Notifier
	if len(cfg.Notify.Brokers) > 0 {
		notifier = notify.NewKafkaNotifier(cfg.Notify.Brokers, cfg.Notify.Topic)
	} else {
		notifier = notify.NewLogNotifier(slog.Default())
	}

	params := engine.Params{
		Store:      st,
		Config:     cfg,
		Ingestion:  fileIngestion{rawPath: rawPath, authPath: authPath},
		Aggregates: fileAggregates{path: aggPath},
		Notifier:   notifier,
	}
	if dimsPath != "" {
		params.StoreDimensions = fileStoreDims{path: dimsPath}
	}

	return engine.New(params), notifier, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
