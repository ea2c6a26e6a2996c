package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/models"
	"github.com/zulandar/carpool/internal/scheduler"
	"github.com/zulandar/carpool/internal/tripsync"
)

// seedCache makes sure a current trip is cached, asking the backend when the
// cache is empty. It returns nil when the user has no current trip.
func seedCache(ctx context.Context, a *app) (*models.Trip, error) {
	trip, ok, err := a.store.CurrentTrip()
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if ok {
		return trip, nil
	}

	trip, err = gateway.CurrentTrip(ctx, a.gw, a.cfg.User.Role, a.cfg.User.ID)
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := trip.Validate(); err != nil {
		return nil, fmt.Errorf("backend returned invalid trip: %w", err)
	}
	if trip.State.Terminal() {
		return nil, nil
	}
	if err := a.store.SaveCurrentTrip(trip); err != nil {
		return nil, fmt.Errorf("write cache: %w", err)
	}
	return trip, nil
}

// waitForTrip polls the backend on the sync interval until a current trip
// shows up or ctx ends. It returns nil when ctx ends first.
func waitForTrip(ctx context.Context, a *app, sched *scheduler.Scheduler) *models.Trip {
	found := make(chan *models.Trip, 1)
	handle, err := sched.Every("seed", a.cfg.SyncInterval(), func() {
		trip, err := seedCache(ctx, a)
		if err != nil {
			log.Printf("cpool: look up current trip: %v", err)
			return
		}
		if trip != nil {
			select {
			case found <- trip:
			default:
			}
		}
	})
	if err != nil {
		log.Printf("cpool: %v", err)
		return nil
	}
	defer handle.Cancel()

	select {
	case <-ctx.Done():
		return nil
	case trip := <-found:
		return trip
	}
}

// followTrip runs one Synchronizer after another for the cached trip and
// hands every transition to onTransition. A TripStarted transition starts a
// fresh instance for the in-progress view; a terminal one ends the loop.
func followTrip(ctx context.Context, a *app, sched *scheduler.Scheduler, onTransition func(tripsync.Transition)) (*tripsync.Transition, error) {
	for {
		syncer, err := tripsync.NewSynchronizer(tripsync.SynchronizerOpts{
			Gateway:   a.gw,
			Store:     a.store,
			Role:      a.cfg.User.Role,
			UserID:    a.cfg.User.ID,
			Threshold: a.cfg.Sync.NotFoundThreshold,
			Interval:  a.cfg.SyncInterval(),
			Scheduler: sched,
		})
		if err != nil {
			return nil, err
		}
		if err := syncer.Run(ctx); err != nil {
			return nil, err
		}

		t, ok := <-syncer.Transitions()
		if !ok {
			return nil, nil
		}
		onTransition(t)
		if t.Kind.Terminal() {
			return &t, nil
		}
	}
}
