package cliapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// RunOptions holds flags for the watch command.
type RunOptions struct {
	*RootOptions
	ConfigPath    string
	SnapshotEvery time.Duration
}

// newWatchCommand builds the long-running demo loop: start all three
// engines against a scenario and keep running, printing a snapshot on a
// fixed interval, until interrupted.
func newWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <config>",
		Short: "Run a scenario until interrupted, printing periodic snapshots",
		Long: `Start the watch, watchdog, and traffic engines against a scenario file
and keep them running until interrupted with Ctrl-C.

Example:
  watchtool watch ./scenario.yaml
  watchtool watch ./scenario.yaml --snapshot-every 1s --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = args[0]
			return runWatch(opts, cmd)
		},
	}
	cmd.Flags().DurationVar(&opts.SnapshotEvery, "snapshot-every", 3*time.Second, "interval between printed snapshots")

	return cmd
}

func runWatch(opts *RunOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))

	f := newFormatter(cmd, opts.RootOptions)

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	sess, err := NewSession(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build session", err)
	}
	defer sess.Stop()

	if err := sess.Start(); err != nil {
		return WrapExitError(ExitFailure, "failed to start session", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "watchtool started. Press Ctrl-C to stop.")

	ticker := time.NewTicker(opts.SnapshotEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watchtool stopped gracefully")
			return nil
		case <-ticker.C:
			snap, err := sess.Snapshot()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read snapshot", err)
			}
			if err := f.Success(snap); err != nil {
				return WrapExitError(ExitFailure, "failed to render snapshot", err)
			}
		}
	}
}
