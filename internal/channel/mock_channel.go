package channel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockChannel implements Channel for testing. It records sent messages and
// allows simulating deliveries via SimulateInbound.
type MockChannel struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan Event
	sent      []OutboundMessage
	sendErr   error
	tripID    int64

	// SendHook, when set, runs after a send is recorded and its result
	// replaces the scripted error. It runs without the mock's lock held.
	SendHook func(ctx context.Context, msg OutboundMessage) error
}

var _ Channel = (*MockChannel)(nil)

// NewMockChannel creates a MockChannel for tripID with a buffered inbound
// stream.
func NewMockChannel(tripID int64) *MockChannel {
	return &MockChannel{
		inbound: make(chan Event, 100),
		tripID:  tripID,
	}
}

// Connect marks the channel as connected.
func (m *MockChannel) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock channel: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound stream. Must be called after Connect.
func (m *MockChannel) Listen(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock channel: not connected")
	}
	return m.inbound, nil
}

// Send records msg, or fails with the error set by SetSendErr.
func (m *MockChannel) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	hook := m.SendHook
	if hook != nil {
		m.sent = append(m.sent, msg)
		m.mu.Unlock()
		return hook(ctx, msg)
	}
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Close closes the inbound stream.
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound delivers body as if it arrived on the trip topic.
func (m *MockChannel) SimulateInbound(body []byte) {
	m.inbound <- Event{TripID: m.tripID, Body: body, ReceivedAt: time.Now()}
}

// SetSendErr makes every later Send fail with err; nil restores success.
func (m *MockChannel) SetSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// AllSent returns a copy of all sent messages.
func (m *MockChannel) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of sent messages.
func (m *MockChannel) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
