package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/autostart"
	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/models"
	"github.com/zulandar/carpool/internal/scheduler"
)

func newAutostartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "autostart [trip-id]",
		Short: "Keep trying to start a trip until the backend accepts",
		Long:  "Drivers only. Attempts to start the trip right away and then on the configured interval, printing the backend's reason each time it refuses. Defaults to the cached current trip.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutostart(cmd, configPath, args)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runAutostart(cmd *cobra.Command, configPath string, args []string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	if a.cfg.User.Role != models.RoleDriver {
		return fmt.Errorf("autostart: only drivers can start trips")
	}
	tripID, err := a.resolveTripID(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()

	sched := scheduler.New()
	defer sched.Stop()

	mon, err := autostart.New(autostart.Opts{
		Gateway:   a.gw,
		Interval:  a.cfg.AutoStartInterval(),
		Scheduler: sched,
	})
	if err != nil {
		return err
	}
	defer mon.Close()

	started := make(chan struct{}, 1)
	fmt.Fprintf(out, "Trying to start trip %d every %s... (Ctrl+C to stop)\n", tripID, a.cfg.AutoStartInterval())
	err = mon.StartMonitoring(tripID, func(r autostart.Result) {
		if r.Started {
			fmt.Fprintf(out, "[%s] Trip %d started\n", r.At.Format(time.TimeOnly), r.TripID)
			select {
			case started <- struct{}{}:
			default:
			}
			return
		}
		fmt.Fprintf(out, "[%s] Not yet: %s\n", r.At.Format(time.TimeOnly), r.Reason)
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-started:
		if err := markStarted(a.store, tripID); err != nil {
			log.Printf("cpool: trip %d: %v", tripID, err)
		}
	}
	return nil
}

// markStarted moves the cached trip to IN_PROGRESS after the backend accepted
// the start. A different cached trip is left alone.
func markStarted(store *cache.Store, tripID int64) error {
	trip, ok, err := store.CurrentTrip()
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}
	if !ok || trip.ID != tripID {
		return nil
	}
	trip.State = models.TripInProgress
	if err := store.SaveCurrentTrip(trip); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
