package channel

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultHeartbeat      = 4 * time.Second
	defaultSendWait       = 10 * time.Second
)

// DialFunc opens the raw byte stream the STOMP session runs over.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// StompOpts holds parameters for creating a StompChannel.
type StompOpts struct {
	URL            string        // ws:// or wss:// endpoint; required unless Dial is set
	TripID         int64         // required
	ReconnectDelay time.Duration // fixed delay between attempts; default 5s
	Heartbeat      time.Duration // incoming and outgoing; default 4s
	Host           string        // STOMP host header; defaults to the URL host
	Dial           DialFunc      // optional override, mainly for tests
	SendWait       time.Duration // how long Send waits for a live session; default 10s
}

// StompChannel is a Channel speaking STOMP 1.2 over a websocket. It
// resubscribes to the trip topic after every reconnect.
type StompChannel struct {
	tripID int64
	delay  time.Duration
	beat   time.Duration
	wait   time.Duration
	host   string
	dial   DialFunc

	mu      sync.Mutex
	conn    *stomp.Conn
	started bool
	closed  bool
	cancel  context.CancelFunc
	events  chan Event
	live    chan struct{} // closed while a session is up
	stopped chan struct{} // closed by Close
	wg      sync.WaitGroup
}

var _ Channel = (*StompChannel)(nil)

// NewStomp creates a StompChannel. No connection is made until Connect.
func NewStomp(opts StompOpts) (*StompChannel, error) {
	if opts.TripID <= 0 {
		return nil, fmt.Errorf("channel: trip id is required")
	}
	if opts.Dial == nil && opts.URL == "" {
		return nil, fmt.Errorf("channel: url is required")
	}
	c := &StompChannel{
		tripID:  opts.TripID,
		delay:   opts.ReconnectDelay,
		beat:    opts.Heartbeat,
		wait:    opts.SendWait,
		host:    opts.Host,
		dial:    opts.Dial,
		events:  make(chan Event, 100),
		live:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if c.delay <= 0 {
		c.delay = defaultReconnectDelay
	}
	if c.beat <= 0 {
		c.beat = defaultHeartbeat
	}
	if c.wait <= 0 {
		c.wait = defaultSendWait
	}
	if opts.URL != "" {
		u, err := url.Parse(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("channel: parse url: %w", err)
		}
		if c.host == "" {
			c.host = u.Hostname()
		}
		if c.dial == nil {
			c.dial = websocketDialer(opts.URL)
		}
	}
	if c.host == "" {
		c.host = "/"
	}
	return c, nil
}

func websocketDialer(endpoint string) DialFunc {
	d := websocket.Dialer{
		Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		HandshakeTimeout: 10 * time.Second,
	}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		conn, _, err := d.DialContext(ctx, endpoint, nil)
		if err != nil {
			return nil, err
		}
		return &wsConn{conn: conn}, nil
	}
}

// Connect starts the session supervisor. It returns immediately; the first
// connection attempt and every later reconnect happen in the background.
func (c *StompChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("channel: already closed")
	}
	if c.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.started = true
	c.wg.Add(1)
	go c.supervise(runCtx)
	return nil
}

// Listen returns the inbound event stream.
func (c *StompChannel) Listen(ctx context.Context) (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil, fmt.Errorf("channel: not started")
	}
	return c.events, nil
}

// connected reports whether a STOMP session is currently live.
func (c *StompChannel) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send publishes msg to the chat send destination. Right after Connect, or
// during a reconnect, it waits up to SendWait for a session to come up.
func (c *StompChannel) Send(ctx context.Context, msg OutboundMessage) error {
	if msg.TripID == 0 {
		msg.TripID = c.tripID
	}
	body, err := EncodeOutbound(msg)
	if err != nil {
		return fmt.Errorf("channel: encode: %w", err)
	}
	conn, err := c.waitConn(ctx)
	if err != nil {
		return err
	}
	if err := conn.Send(SendDestination, "application/json", body); err != nil {
		return fmt.Errorf("channel: send: %w", err)
	}
	return nil
}

// waitConn returns the live session, blocking while the supervisor is still
// dialing. It fails fast when the channel was never started or is closed.
func (c *StompChannel) waitConn(ctx context.Context) (*stomp.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	conn, live, started, closed := c.conn, c.live, c.started, c.closed
	c.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if !started || closed {
		return nil, ErrNotConnected
	}

	timer := time.NewTimer(c.wait)
	defer timer.Stop()
	for {
		select {
		case <-live:
		case <-c.stopped:
			return nil, ErrNotConnected
		case <-timer.C:
			return nil, ErrNotConnected
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		conn, live = c.conn, c.live
		c.mu.Unlock()
		if conn != nil {
			return conn, nil
		}
	}
}

// Close stops the supervisor, disconnects and closes the event stream.
func (c *StompChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopped)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	// The session goroutine owns the connection and disconnects it.
	c.wg.Wait()
	close(c.events)
	return nil
}

// supervise runs sessions back to back with a fixed delay between them
// until ctx is cancelled.
func (c *StompChannel) supervise(ctx context.Context) {
	defer c.wg.Done()
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("channel: trip %d: session ended: %v; reconnecting in %v", c.tripID, err, c.delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.delay):
		}
	}
}

// session dials, subscribes to the trip topic and pumps deliveries until the
// subscription ends.
func (c *StompChannel) session(ctx context.Context) error {
	rwc, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn, err := stomp.Connect(rwc,
		stomp.ConnOpt.Host(c.host),
		stomp.ConnOpt.AcceptVersion(stomp.V12),
		stomp.ConnOpt.HeartBeat(c.beat, c.beat),
	)
	if err != nil {
		rwc.Close()
		return fmt.Errorf("stomp connect: %w", err)
	}
	sub, err := conn.Subscribe(TopicFor(c.tripID), stomp.AckAuto)
	if err != nil {
		conn.MustDisconnect()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.MustDisconnect()
		return nil
	}
	c.conn = conn
	close(c.live)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.live = make(chan struct{})
		}
		c.mu.Unlock()
		conn.MustDisconnect()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			if msg.Err != nil {
				return msg.Err
			}
			ev := Event{TripID: c.tripID, Body: msg.Body, ReceivedAt: time.Now()}
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
