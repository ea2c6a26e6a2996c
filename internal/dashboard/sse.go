package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/carpool/internal/tripsync"
)

var heartbeatInterval = 15 * time.Second

// transitionEvent holds data for a transition SSE event.
type transitionEvent struct {
	Kind   tripsync.TransitionKind `json:"kind"`
	TripID int64                   `json:"trip_id,omitempty"`
	State  string                  `json:"state,omitempty"`
	At     string                  `json:"at"`
}

func toEvent(t tripsync.Transition) transitionEvent {
	evt := transitionEvent{
		Kind:   t.Kind,
		TripID: t.TripID,
		At:     t.At.UTC().Format(time.RFC3339),
	}
	if t.Trip != nil {
		evt.State = string(t.Trip.State)
	}
	return evt
}

// handleSSE streams transitions from broker until the client goes away.
func handleSSE(broker *Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		var events <-chan tripsync.Transition
		if broker != nil {
			ch, unsubscribe := broker.Subscribe()
			defer unsubscribe()
			events = ch
		}

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case t, ok := <-events:
				if !ok {
					return
				}
				writeSSE(c.Writer, "transition", toEvent(t))
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
