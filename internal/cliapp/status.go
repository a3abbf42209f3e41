package cliapp

import (
	"time"

	"github.com/spf13/cobra"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	ConfigPath string
	SettleFor  time.Duration
}

// newStatusCommand builds a short-lived demo run: load a scenario,
// start all three engines, let them tick for a fixed settle period, then
// print one point-in-time snapshot and exit. Exercises the GetItemState,
// GetItemStats, and DeltaSingle/DeltaAll query surface end to end.
func newStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <config>",
		Short: "Run a scenario briefly and print a point-in-time snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ConfigPath = args[0]
			return runStatus(opts, cmd)
		},
	}
	cmd.Flags().DurationVar(&opts.SettleFor, "settle-for", 2*time.Second, "how long to let the engines tick before sampling")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
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

	f.VerboseLog("settling for %s", opts.SettleFor)
	time.Sleep(opts.SettleFor)

	snap, err := sess.Snapshot()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read snapshot", err)
	}

	return f.Success(snap)
}
