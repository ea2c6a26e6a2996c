package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zulandar/carpool/internal/models"
	"github.com/zulandar/carpool/internal/tripsync"
)

// printTrip writes a short key/value summary of trip.
func printTrip(out io.Writer, trip *models.Trip) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Trip:\t%d\n", trip.ID)
	fmt.Fprintf(w, "State:\t%s\n", trip.State)
	fmt.Fprintf(w, "Route:\t%s -> %s\n", trip.Origin, trip.Destination)
	if !trip.DepartureTime.IsZero() {
		fmt.Fprintf(w, "Departure:\t%s\n", trip.DepartureTime.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "Seats:\t%d/%d taken, %d free\n", trip.SeatsTaken(), trip.SeatsMax, trip.SeatsFree())
	driver := trip.Driver.Name
	if v := trip.Driver.Vehicle; v.Plate != "" {
		driver = fmt.Sprintf("%s (%s %s %s, %s)", driver, v.Brand, v.Model, v.Color, v.Plate)
	}
	fmt.Fprintf(w, "Driver:\t%s\n", driver)
	if trip.HasChat() {
		fmt.Fprintf(w, "Chat:\t%d\n", *trip.ChatID)
	}
	w.Flush()
}

// describeTransition renders t as a single line for terminal output.
func describeTransition(t tripsync.Transition) string {
	switch t.Kind {
	case tripsync.TripStarted:
		return fmt.Sprintf("Trip %d started", t.TripID)
	case tripsync.TripFinished:
		return fmt.Sprintf("Trip %d finished", t.TripID)
	case tripsync.TripCanceled:
		return fmt.Sprintf("Trip %d was canceled", t.TripID)
	default:
		if t.TripID != 0 {
			return fmt.Sprintf("Trip %d is no longer active", t.TripID)
		}
		return "No active trip"
	}
}
