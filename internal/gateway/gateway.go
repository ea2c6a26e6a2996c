// Package gateway is the client side of the remote trip backend: current
// trip queries plus the start, cancel, finish and comment mutations.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/carpool/internal/models"
)

// Gateway is the set of remote trip capabilities the sync core consumes.
type Gateway interface {
	// CurrentTripForDriver returns the driver's active trip, or ErrNotFound.
	CurrentTripForDriver(ctx context.Context, driverID int64) (*models.Trip, error)

	// CurrentTripForPassenger returns the passenger's active trip, or ErrNotFound.
	CurrentTripForPassenger(ctx context.Context, passengerID int64) (*models.Trip, error)

	// TryStart asks the backend to start the trip if it is eligible. A
	// business-rule refusal is reported as StartResult{Started: false}
	// with a nil error.
	TryStart(ctx context.Context, tripID int64) (StartResult, error)

	// Cancel cancels the trip on behalf of the actor.
	Cancel(ctx context.Context, tripID, actorID int64, role models.Role) (*models.Trip, error)

	// Finish completes an in-progress trip; only the driver may do so.
	Finish(ctx context.Context, tripID, driverID int64) (*models.Trip, error)

	// Comment submits a post-trip comment.
	Comment(ctx context.Context, tripID, actorID int64, text string) error
}

// StartResult is the outcome of a start attempt the backend answered.
type StartResult struct {
	Started bool
	Reason  string
}

// ErrNotFound is the definitive "no active trip" answer.
var ErrNotFound = errors.New("gateway: no active trip")

// TransientError is a failure worth retrying: network errors, 5xx
// responses and bodies that could not be decoded.
type TransientError struct {
	Op         string
	StatusCode int // 0 for network errors
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: %s: server error %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ServerSide reports whether the backend answered with a 5xx.
func (e *TransientError) ServerSide() bool {
	return e.StatusCode >= 500
}

// RejectedError is a business-rule refusal of a user action. Reason is the
// backend's message, suitable for showing to the user.
type RejectedError struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway: %s rejected (%d): %s", e.Op, e.StatusCode, e.Reason)
}

// IsTransient reports whether err should be retried silently.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether err is a business-rule refusal.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// CurrentTrip dispatches to the driver or passenger query by role.
func CurrentTrip(ctx context.Context, g Gateway, role models.Role, userID int64) (*models.Trip, error) {
	switch role {
	case models.RoleDriver:
		return g.CurrentTripForDriver(ctx, userID)
	case models.RolePassenger:
		return g.CurrentTripForPassenger(ctx, userID)
	default:
		return nil, fmt.Errorf("gateway: unknown role %q", role)
	}
}
