package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/notify"
	"github.com/zulandar/carpool/internal/scheduler"
	"github.com/zulandar/carpool/internal/tripsync"
)

func newWatchCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow your current trip until it ends",
		Long:  "Keeps the cached current trip in sync with the backend and prints lifecycle changes. Exits when the trip finishes, is canceled or disappears.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runWatch(cmd *cobra.Command, configPath string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	notifier, err := notify.FromConfig(a.cfg.Notify)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()

	trip, err := seedCache(ctx, a)
	if err != nil {
		return err
	}
	if trip == nil {
		fmt.Fprintln(out, "No active trip")
		return nil
	}
	printTrip(out, trip)
	fmt.Fprintf(out, "Watching trip %d every %s... (Ctrl+C to stop)\n", trip.ID, a.cfg.SyncInterval())

	sched := scheduler.New()
	defer sched.Stop()

	_, err = followTrip(ctx, a, sched, func(t tripsync.Transition) {
		fmt.Fprintf(out, "[%s] %s\n", t.At.Format(time.TimeOnly), describeTransition(t))
		if len(notifier) > 0 {
			nctx, ncancel := context.WithTimeout(ctx, 10*time.Second)
			notifier.Notify(nctx, t)
			ncancel()
		}
	})
	return err
}
