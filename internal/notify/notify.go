// Package notify posts trip lifecycle transitions to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/zulandar/carpool/internal/config"
	"github.com/zulandar/carpool/internal/tripsync"
)

// Notifier delivers one transition somewhere.
type Notifier interface {
	Notify(ctx context.Context, t tripsync.Transition) error
}

// Multi fans a transition out to every notifier. Individual failures are
// logged and joined; one failing sink never blocks the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, t tripsync.Transition) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, t); err != nil {
			log.Printf("notify: %s for trip %d: %v", t.Kind, t.TripID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Field is a key-value pair shown next to the headline.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Event is a transition rendered for display.
type Event struct {
	Title  string
	Body   string
	Color  string // hex, e.g. "#36a64f"
	Fields []Field
}

// Colors per transition kind.
const (
	colorStarted  = "#2eb67d"
	colorFinished = "#1d9bd1"
	colorCanceled = "#e01e5a"
	colorNeutral  = "#9e9e9e"
)

// Format renders t for chat platforms.
func Format(t tripsync.Transition) Event {
	ev := Event{Color: colorNeutral}
	switch t.Kind {
	case tripsync.TripStarted:
		ev.Title = fmt.Sprintf("Trip %d started", t.TripID)
		ev.Color = colorStarted
	case tripsync.TripFinished:
		ev.Title = fmt.Sprintf("Trip %d finished", t.TripID)
		ev.Color = colorFinished
	case tripsync.TripCanceled:
		ev.Title = fmt.Sprintf("Trip %d was canceled", t.TripID)
		ev.Color = colorCanceled
	case tripsync.NoActiveTrip:
		if t.TripID != 0 {
			ev.Title = fmt.Sprintf("Trip %d is no longer active", t.TripID)
		} else {
			ev.Title = "No active trip"
		}
	default:
		ev.Title = fmt.Sprintf("Trip %d: %s", t.TripID, t.Kind)
	}

	if tr := t.Trip; tr != nil {
		ev.Body = fmt.Sprintf("%s → %s", tr.Origin, tr.Destination)
		ev.Fields = append(ev.Fields,
			Field{Name: "Driver", Value: tr.Driver.Name, Short: true},
			Field{Name: "Seats", Value: fmt.Sprintf("%d/%d", tr.SeatsTaken(), tr.SeatsMax), Short: true},
		)
		if !tr.DepartureTime.IsZero() {
			ev.Fields = append(ev.Fields, Field{Name: "Departure", Value: tr.DepartureTime.Format("2006-01-02 15:04"), Short: true})
		}
	}
	return ev
}

// Text is the plain-text fallback of an event.
func (e Event) Text() string {
	if e.Body == "" {
		return e.Title
	}
	return e.Title + ": " + e.Body
}

// parseHexColor converts "#rrggbb" to an integer; invalid input yields 0.
func parseHexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

// FromConfig builds a Multi from the enabled sinks. It is empty when no
// sink is configured.
func FromConfig(cfg config.NotifyConfig) (Multi, error) {
	var m Multi
	if cfg.Slack.Enabled() {
		s, err := NewSlack(SlackOpts{BotToken: cfg.Slack.BotToken, Channel: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		m = append(m, s)
	}
	if cfg.Discord.Enabled() {
		d, err := NewDiscord(DiscordOpts{BotToken: cfg.Discord.BotToken, Channel: cfg.Discord.Channel})
		if err != nil {
			return nil, err
		}
		m = append(m, d)
	}
	return m, nil
}
