package tripsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/models"
)

// ErrEmptyComment is returned when a comment has no text.
var ErrEmptyComment = errors.New("tripsync: comment text is required")

// Actor is the user performing a trip action.
type Actor struct {
	ID   int64
	Role models.Role
}

// ActionsOpts holds parameters for creating Actions.
type ActionsOpts struct {
	Gateway gateway.Gateway // required
	Store   TripStore       // required
}

// Actions runs user-initiated trip mutations. Failures are returned to the
// caller and the cache is only touched once the backend has confirmed.
type Actions struct {
	gw    gateway.Gateway
	store TripStore
}

// NewActions creates Actions.
func NewActions(opts ActionsOpts) (*Actions, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("tripsync: gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("tripsync: store is required")
	}
	return &Actions{gw: opts.Gateway, store: opts.Store}, nil
}

// Start manually starts a trip. A backend refusal comes back as a
// *gateway.RejectedError carrying the reason.
func (a *Actions) Start(ctx context.Context, tripID int64) (*models.Trip, error) {
	res, err := a.gw.TryStart(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("tripsync: start trip %d: %w", tripID, err)
	}
	if !res.Started {
		return nil, &gateway.RejectedError{Op: "start trip", Reason: res.Reason}
	}

	cached, ok, err := a.store.CurrentTrip()
	if err != nil {
		log.Printf("tripsync: start trip %d: read cache: %v", tripID, err)
		return nil, nil
	}
	if !ok || cached.ID != tripID {
		return nil, nil
	}
	cached.State = models.TripInProgress
	if err := a.store.SaveCurrentTrip(cached); err != nil {
		log.Printf("tripsync: start trip %d: write cache: %v", tripID, err)
	}
	return cached, nil
}

// Cancel cancels a trip on behalf of actor and drops it from the cache.
func (a *Actions) Cancel(ctx context.Context, tripID int64, actor Actor) (*models.Trip, error) {
	if !actor.Role.Valid() {
		return nil, fmt.Errorf("tripsync: cancel trip %d: role must be driver or passenger, got %q", tripID, actor.Role)
	}
	trip, err := a.gw.Cancel(ctx, tripID, actor.ID, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("tripsync: cancel trip %d: %w", tripID, err)
	}
	a.forget(tripID)
	return trip, nil
}

// Finish completes an in-progress trip and drops it from the cache.
func (a *Actions) Finish(ctx context.Context, tripID, actorID int64) (*models.Trip, error) {
	trip, err := a.gw.Finish(ctx, tripID, actorID)
	if err != nil {
		return nil, fmt.Errorf("tripsync: finish trip %d: %w", tripID, err)
	}
	a.forget(tripID)
	return trip, nil
}

// Comment submits a post-trip comment.
func (a *Actions) Comment(ctx context.Context, tripID, actorID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}
	if err := a.gw.Comment(ctx, tripID, actorID, text); err != nil {
		return fmt.Errorf("tripsync: comment trip %d: %w", tripID, err)
	}
	return nil
}

// forget clears the cache when it holds tripID. A cache holding some other
// trip is left alone.
func (a *Actions) forget(tripID int64) {
	cached, ok, err := a.store.CurrentTrip()
	if err != nil {
		log.Printf("tripsync: trip %d: read cache: %v", tripID, err)
		return
	}
	if !ok || cached.ID != tripID {
		return
	}
	if err := a.store.ClearCurrentTrip(); err != nil {
		log.Printf("tripsync: trip %d: clear cache: %v", tripID, err)
	}
}
