// Package main provides the storesync command-line client: one-shot sync,
// status inspection and queue repair against the local store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/storesync/backend/internal/app"
	"github.com/kimhsiao/storesync/backend/internal/config"
	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
)

// Version is set at build time
var Version = "0.1.0"

// opener builds the client context for one command.
type opener func(envFiles []string) (*app.App, error)

func openApp(envFiles []string) (*app.App, error) {
	cfg, err := config.LoadClient(envFiles...)
	if err != nil {
		return nil, err
	}
	logging.InitFile(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	return app.New(cfg, app.Options{})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openApp).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "storesync",
		Short:         "Offline-first inventory client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (defaults to ./.env when present)")

	// withApp opens the context, runs fn and closes the context.
	withApp := func(fn func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			a, err := open(envFiles)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, a)
		}
	}

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the sync queue",
	}
	queueCmd.AddCommand(
		newQueueListCmd(withApp),
		&cobra.Command{
			Use:   "retry",
			Short: "Reset failed entries to pending",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
				n, err := a.Engine.Queue().RetryFailed()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"reset": n})
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete failed entries",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
				n, err := a.Engine.Queue().ClearFailed()
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"cleared": n})
			}),
		},
	)

	root.AddCommand(
		&cobra.Command{
			Use:   "sync",
			Short: "Pull the store's catalog and orders, then replay queued changes",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
				a.RefreshConnectivity(cmd.Context())
				result := a.ForceSync(cmd.Context())
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.Ran() {
					return apperrors.New(apperrors.ErrNetworkUnavailable, fmt.Sprintf("sync skipped: %s", result.Skipped))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show sync status and queue counts",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
				a.RefreshConnectivity(cmd.Context())
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"status":      a.Engine.Status(),
					"queue_stats": a.Engine.Queue().Stats(),
					"logged_in":   a.Session.HasToken(),
				})
			}),
		},
		queueCmd,
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "storesync v%s\n", Version)
			},
		},
	)
	return root
}

func newQueueListCmd(withApp func(func(*cobra.Command, *app.App) error) func(*cobra.Command, []string) error) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries in replay order",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			entries := a.Engine.Queue().List()
			if status != "" {
				filtered := make([]*models.SyncQueueEntry, 0, len(entries))
				for _, e := range entries {
					if e.Status == status {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}
			return printJSON(cmd.OutOrStdout(), entries)
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "only entries with this status (pending or failed)")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
