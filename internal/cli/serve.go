package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/reckon/internal/config"
	"github.com/roach88/reckon/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	RunOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RunOptions: RunOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run reconciliation on a schedule",
		Long: `Run reconciliation repeatedly on the configured interval, exposing
Prometheus metrics over HTTP. Runs never overlap: the next run starts
one interval after the previous one finishes, and the store's run lock
rejects any concurrent runner.

The config file is watched; edits take effect at the next scheduled run.

Example:
  reckon serve --db ./reckon.db --config reckon.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file (watched for changes)")
	cmd.Flags().StringVar(&opts.Raw, "raw", "", "path to raw transaction batch (JSON)")
	cmd.Flags().StringVar(&opts.Authoritative, "authoritative", "", "path to authoritative record batch (JSON)")
	cmd.Flags().StringVar(&opts.Aggregates, "aggregates", "", "path to aggregate stamped-count document (JSON)")
	cmd.Flags().StringVar(&opts.StoreDims, "store-dims", "", "path to store dimension map (JSON, optional)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "metrics listen address (overrides config)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	setupLogging(opts.Verbose)

	getConfig, stopWatch, err := configSource(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	defer stopWatch()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("close database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := firstNonEmpty(opts.Listen, getConfig().Serve.Listen)
	srv := startMetricsServer(listen)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown metrics server", "error", err)
		}
	}()

	slog.Info("serve started", "db", opts.Database, "listen", listen)

	for {
		cfg := getConfig()

		if err := serveRunOnce(ctx, st, cfg, opts); err != nil {
			if ctx.Err() != nil {
				break
			}
			// A failed run does not take the scheduler down; the next
			// interval retries with fresh inputs.
			slog.Error("scheduled run failed", "error", err)
		}

		interval, err := cfg.RunInterval()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid run interval", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("serve stopping")
			return nil
		case <-time.After(interval):
		}
	}

	slog.Info("serve stopping")
	return nil
}

// serveRunOnce executes one scheduled run with the current config.
func serveRunOnce(ctx context.Context, st *store.Store, cfg *config.Config, opts *ServeOptions) error {
	eng, notifier, err := buildEngine(st, cfg, &opts.RunOptions)
	if err != nil {
		return err
	}
	defer notifier.Close()

	result, err := eng.Run(ctx)
	if err != nil {
		if store.IsRunConflict(err) {
			slog.Warn("run skipped, lock held elsewhere", "error", err)
			return nil
		}
		return err
	}

	slog.Info("scheduled run completed",
		"run_id", result.RunID,
		"records", len(result.Records),
		"parity_passed", result.Report.Passed,
	)
	return nil
}

// configSource returns a config getter, with hot reload when a path is
// given and static defaults otherwise.
func configSource(path string) (func() *config.Config, func(), error) {
	if path == "" {
		cfg := config.Default()
		return func() *config.Config { return cfg }, func() {}, nil
	}

	loader, err := config.NewLoader(path)
	if err != nil {
		return nil, nil, err
	}
	stop, err := loader.Watch()
	if err != nil {
		return nil, nil, err
	}
	return loader.Config, stop, nil
}

func startMetricsServer(listen string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()
	return srv
}
