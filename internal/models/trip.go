package models

import (
	"fmt"
	"time"
)

// TripState is the lifecycle state of a trip.
type TripState string

const (
	TripCreated    TripState = "CREATED"
	TripInProgress TripState = "IN_PROGRESS"
	TripFinished   TripState = "FINISHED"
	TripCanceled   TripState = "CANCELED"
)

// Terminal reports whether no further synchronization is meaningful once
// the state has been reached.
func (s TripState) Terminal() bool {
	return s == TripFinished || s == TripCanceled
}

// Valid reports whether s is one of the four known states.
func (s TripState) Valid() bool {
	switch s {
	case TripCreated, TripInProgress, TripFinished, TripCanceled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step: CREATED→IN_PROGRESS→FINISHED, or CREATED|IN_PROGRESS→CANCELED.
// Staying in the same state is always allowed.
func (s TripState) CanTransition(next TripState) bool {
	if s == next {
		return true
	}
	switch s {
	case TripCreated:
		return next == TripInProgress || next == TripCanceled
	case TripInProgress:
		return next == TripFinished || next == TripCanceled
	}
	return false
}

// Role identifies which side of a trip the local user is on.
type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDriver || r == RolePassenger
}

// Vehicle describes the driver's car.
type Vehicle struct {
	Plate string `json:"plate"`
	Brand string `json:"brand"`
	Model string `json:"model"`
	Color string `json:"color"`
}

// Driver is the summary of a trip's driver.
type Driver struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Vehicle Vehicle `json:"vehicle"`
}

// Passenger is the summary of a passenger on a trip.
type Passenger struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ServerMessage is a chat message as carried inside a trip snapshot.
type ServerMessage struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	SentAt     time.Time `json:"sent_at"`
}

// Trip is one carpool journey and its lifecycle state.
type Trip struct {
	ID            int64           `json:"id"`
	Origin        string          `json:"origin"`
	Destination   string          `json:"destination"`
	DepartureTime time.Time       `json:"departure_time"`
	SeatsMax      int             `json:"seats_max"`
	Passengers    []Passenger     `json:"passengers"`
	Driver        Driver          `json:"driver"`
	State         TripState       `json:"state"`
	ChatID        *int64          `json:"chat_id,omitempty"`
	ChatMessages  []ServerMessage `json:"chat_messages,omitempty"`
}

// SeatsTaken returns the number of passengers on the trip.
func (t *Trip) SeatsTaken() int {
	return len(t.Passengers)
}

// SeatsFree returns the number of seats still available.
func (t *Trip) SeatsFree() int {
	free := t.SeatsMax - len(t.Passengers)
	if free < 0 {
		return 0
	}
	return free
}

// HasChat reports whether a chat channel exists for the trip.
func (t *Trip) HasChat() bool {
	return t.ChatID != nil
}

// Validate checks the structural invariants of a trip.
func (t *Trip) Validate() error {
	if t.SeatsMax <= 0 {
		return fmt.Errorf("trip %d: seats_max must be positive, got %d", t.ID, t.SeatsMax)
	}
	if len(t.Passengers) > t.SeatsMax {
		return fmt.Errorf("trip %d: %d passengers exceed %d seats", t.ID, len(t.Passengers), t.SeatsMax)
	}
	if !t.State.Valid() {
		return fmt.Errorf("trip %d: unknown state %q", t.ID, t.State)
	}
	return nil
}
