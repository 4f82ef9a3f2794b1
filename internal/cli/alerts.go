package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reckon/internal/store"
)

// AlertsOptions holds flags for the alerts commands.
type AlertsOptions struct {
	*RootOptions
	Database string
}

// NewAlertsCommand creates the alerts command group.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlertsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and acknowledge open alerts",
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newAlertsListCommand(opts))
	cmd.AddCommand(newAlertsAckCommand(opts))

	return cmd
}

func newAlertsListCommand(opts *AlertsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List open alert events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()

			events, err := st.ReadAlertEvents(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "read alerts", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if formatter.JSONOutput() {
				if err := formatter.EmitJSON(events); err != nil {
					return WrapExitError(ExitCommandError, "write output", err)
				}
				return nil
			}

			if len(events) == 0 {
				formatter.EmitText("no open alerts")
				return nil
			}
			for _, event := range events {
				formatter.EmitText("%-12s %-60s x%-4d first %s last %s",
					event.State, event.Key, event.OccurrenceCount,
					event.FirstSeenAt.Format("2006-01-02T15:04:05Z"),
					event.LastSeenAt.Format("2006-01-02T15:04:05Z"),
				)
			}
			return nil
		},
	}
}

func newAlertsAckCommand(opts *AlertsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <key>",
		Short: "Acknowledge an active alert",
		Long: `Acknowledge an active alert by key ("slo:<name>" or
"rule:<rule>/<entity>"). Acknowledgement suppresses repeat notifications
while the condition persists; the alert still resolves automatically
once the condition clears.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()

			key := args[0]
			if err := st.Acknowledge(cmd.Context(), key); err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("acknowledge %s", key), err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if formatter.JSONOutput() {
				return formatter.EmitJSON(map[string]string{"acknowledged": key})
			}
			formatter.EmitText("acknowledged %s", key)
			return nil
		},
	}
}
