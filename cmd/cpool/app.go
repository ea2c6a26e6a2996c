package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/config"
	"github.com/zulandar/carpool/internal/db"
	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/tripsync"
)

const defaultConfigPath = "carpool.yaml"

// app bundles what every trip command needs.
type app struct {
	cfg   *config.Config
	store *cache.Store
	gw    gateway.Gateway
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	store, err := cache.New(gormDB)
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewHTTP(gateway.HTTPOpts{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.BackendTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store, gw: gw}, nil
}

func (a *app) actions() (*tripsync.Actions, error) {
	return tripsync.NewActions(tripsync.ActionsOpts{Gateway: a.gw, Store: a.store})
}

func (a *app) actor() tripsync.Actor {
	return tripsync.Actor{ID: a.cfg.User.ID, Role: a.cfg.User.Role}
}

// resolveTripID returns the trip id from args, falling back to the cached
// current trip.
func (a *app) resolveTripID(args []string) (int64, error) {
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid trip ID %q", args[0])
		}
		return id, nil
	}
	trip, ok, err := a.store.CurrentTrip()
	if err != nil {
		return 0, fmt.Errorf("read cache: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("no trip ID given and no current trip cached")
	}
	return trip.ID, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to carpool config file")
}
