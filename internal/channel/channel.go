// Package channel is the real-time messaging channel a trip's chat runs
// over: a pub/sub connection keyed by trip id.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/models"
)

// ErrNotConnected is returned by Send while no live connection exists.
var ErrNotConnected = errors.New("channel: not connected")

// Channel is a bidirectional connection to one trip's chat topic.
type Channel interface {
	// Connect starts the connection. Implementations keep reconnecting in
	// the background until Close.
	Connect(ctx context.Context) error

	// Listen returns the stream of inbound events for the trip. The
	// channel is closed when the Channel is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan Event, error)

	// Send publishes a chat message for the trip.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close shuts the connection down.
	Close() error
}

// Event is one raw delivery from the trip topic.
type Event struct {
	TripID     int64
	Body       []byte
	ReceivedAt time.Time
}

// OutboundMessage is a chat message to publish.
type OutboundMessage struct {
	TripID     int64
	ChatID     int64
	AuthorID   int64
	AuthorName string
	Content    string
}

// Destinations used by the chat backend.
const (
	SendDestination = "/app/chat.enviar"
	topicPrefix     = "/topic/viaje/"
)

// TopicFor returns the subscription destination for a trip.
func TopicFor(tripID int64) string {
	return fmt.Sprintf("%s%d", topicPrefix, tripID)
}

type wireTripRef struct {
	ID int64 `json:"id"`
}

type wireChatRef struct {
	ID   int64       `json:"id"`
	Trip wireTripRef `json:"viaje"`
}

type wireOutbound struct {
	Content string             `json:"contenido"`
	Author  gateway.WireAuthor `json:"autor"`
	Chat    wireChatRef        `json:"chat"`
}

// EncodeOutbound renders msg in the backend's publish format.
func EncodeOutbound(msg OutboundMessage) ([]byte, error) {
	return json.Marshal(wireOutbound{
		Content: msg.Content,
		Author:  gateway.WireAuthor{ID: msg.AuthorID, Name: msg.AuthorName},
		Chat:    wireChatRef{ID: msg.ChatID, Trip: wireTripRef{ID: msg.TripID}},
	})
}

// DecodeMessage parses an inbound event body into a confirmed message.
// Bodies without a durable id or content are rejected.
func DecodeMessage(body []byte) (models.ServerMessage, error) {
	var w gateway.WireMessage
	if err := json.Unmarshal(body, &w); err != nil {
		return models.ServerMessage{}, fmt.Errorf("channel: decode message: %w", err)
	}
	msg, err := w.ToServerMessage()
	if err != nil {
		return models.ServerMessage{}, fmt.Errorf("channel: decode message: %w", err)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return models.ServerMessage{}, fmt.Errorf("channel: decode message %s: empty content", msg.ID)
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	return msg, nil
}
