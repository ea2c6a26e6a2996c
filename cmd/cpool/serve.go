package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/dashboard"
	"github.com/zulandar/carpool/internal/notify"
	"github.com/zulandar/carpool/internal/scheduler"
	"github.com/zulandar/carpool/internal/tripsync"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local status server",
		Long:  "Serves the cached trip and chat over HTTP and streams lifecycle transitions as server-sent events while keeping the trip in sync.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	notifier, err := notify.FromConfig(a.cfg.Notify)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = a.cfg.Dashboard.Port
	}

	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()

	broker := dashboard.NewBroker()
	sched := scheduler.New()
	defer sched.Stop()

	go func() {
		for ctx.Err() == nil {
			trip := waitForTrip(ctx, a, sched)
			if trip == nil {
				return
			}
			log.Printf("cpool: following trip %d", trip.ID)
			if _, err := followTrip(ctx, a, sched, func(t tripsync.Transition) {
				broker.Publish(t)
				if len(notifier) > 0 {
					nctx, ncancel := context.WithTimeout(ctx, 10*time.Second)
					notifier.Notify(nctx, t)
					ncancel()
				}
			}); err != nil {
				log.Printf("cpool: follow trip %d: %v", trip.ID, err)
				return
			}
		}
	}()

	err = dashboard.Start(ctx, dashboard.StartOpts{
		Store:  a.store,
		Broker: broker,
		Port:   port,
		Out:    cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
