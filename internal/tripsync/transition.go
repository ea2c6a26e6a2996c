// Package tripsync keeps the local view of the current trip consistent with
// the backend and runs the user-initiated trip actions.
package tripsync

import (
	"time"

	"github.com/zulandar/carpool/internal/models"
)

// TripStore is the slice of the trip cache the synchronizer and actions use.
type TripStore interface {
	CurrentTrip() (*models.Trip, bool, error)
	SaveCurrentTrip(trip *models.Trip) error
	ClearCurrentTrip() error
}

// TransitionKind names a lifecycle change the presentation layer acts on.
type TransitionKind string

const (
	NoActiveTrip TransitionKind = "no_active_trip"
	TripStarted  TransitionKind = "trip_started"
	TripCanceled TransitionKind = "trip_canceled"
	TripFinished TransitionKind = "trip_finished"
)

// Terminal reports whether the transition means the trip is over locally.
func (k TransitionKind) Terminal() bool {
	return k != TripStarted
}

// Transition is emitted at most once per Synchronizer.
type Transition struct {
	Kind   TransitionKind
	TripID int64        // 0 when no trip was known
	Trip   *models.Trip // last authoritative trip, nil for NoActiveTrip
	At     time.Time
}

// Action summarizes what one reconciliation tick did.
type Action string

const (
	ActionIdle       Action = "idle"       // instance no longer active
	ActionKept       Action = "kept"       // transient failure, debounced miss or stale read
	ActionUpdated    Action = "updated"    // cache refreshed silently
	ActionTransition Action = "transition" // a transition was emitted
	ActionDiscarded  Action = "discarded"  // result arrived after Stop
)

// Outcome is the result of one Reconcile call.
type Outcome struct {
	Action     Action
	Trip       *models.Trip // trip as cached after the tick, if any
	Transition *Transition
	Err        error // transient error behind ActionKept, if any
}
