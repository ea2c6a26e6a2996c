// Package autostart keeps asking the backend to start a driver's trip until
// it reports the trip as started.
package autostart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/scheduler"
)

// DefaultInterval is the pause between start attempts.
const DefaultInterval = 15 * time.Second

// Result is reported after every answered attempt.
type Result struct {
	TripID  int64
	Started bool
	Reason  string // backend explanation when not started
	At      time.Time
}

// Opts holds parameters for creating a Monitor.
type Opts struct {
	Gateway   gateway.Gateway      // required
	Interval  time.Duration        // default 15s
	Scheduler *scheduler.Scheduler // optional; the Monitor owns one when nil
}

// Monitor runs at most one start loop at a time.
type Monitor struct {
	gw        gateway.Gateway
	interval  time.Duration
	sched     *scheduler.Scheduler
	ownsSched bool

	mu  sync.Mutex
	cur *loop
}

type loop struct {
	tripID   int64
	onResult func(Result)
	ctx      context.Context
	cancel   context.CancelFunc
	handle   *scheduler.Handle
}

// New creates a Monitor.
func New(opts Opts) (*Monitor, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("autostart: gateway is required")
	}
	m := &Monitor{
		gw:       opts.Gateway,
		interval: opts.Interval,
		sched:    opts.Scheduler,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.sched == nil {
		m.sched = scheduler.New()
		m.ownsSched = true
	}
	return m, nil
}

// StartMonitoring begins the start loop for tripID. Monitoring the trip
// already being monitored is a no-op; a different trip replaces the
// current loop.
func (m *Monitor) StartMonitoring(tripID int64, onResult func(Result)) error {
	if tripID <= 0 {
		return fmt.Errorf("autostart: trip id is required")
	}
	if onResult == nil {
		onResult = func(Result) {}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		if m.cur.tripID == tripID {
			return nil
		}
		m.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{tripID: tripID, onResult: onResult, ctx: ctx, cancel: cancel}
	// The first attempt starts inside Every and blocks on m.mu until the
	// handle below is recorded.
	h, err := m.sched.Every(fmt.Sprintf("autostart-%d", tripID), m.interval, func() { m.attempt(l) })
	if err != nil {
		cancel()
		return fmt.Errorf("autostart: schedule trip %d: %w", tripID, err)
	}
	l.handle = h
	m.cur = l
	return nil
}

// StopMonitoring ends the current loop, if any. An attempt in flight is
// cancelled and its result discarded.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Monitoring returns the trip currently being monitored.
func (m *Monitor) Monitoring() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return 0, false
	}
	return m.cur.tripID, true
}

// Close stops monitoring and releases an owned scheduler.
func (m *Monitor) Close() {
	m.StopMonitoring()
	if m.ownsSched {
		m.sched.Stop()
	}
}

func (m *Monitor) stopLocked() {
	if m.cur == nil {
		return
	}
	m.cur.cancel()
	if m.cur.handle != nil {
		m.cur.handle.Cancel()
	}
	m.cur = nil
}

// current reports whether l is still the live loop.
func (m *Monitor) current(l *loop) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur == l && l.ctx.Err() == nil
}

func (m *Monitor) attempt(l *loop) {
	if !m.current(l) {
		return
	}
	res, err := m.gw.TryStart(l.ctx, l.tripID)
	if !m.current(l) {
		return
	}
	if err != nil {
		var te *gateway.TransientError
		if errors.As(err, &te) && te.ServerSide() {
			log.Printf("autostart: trip %d: backend error %d, retrying: %v", l.tripID, te.StatusCode, err)
		} else {
			log.Printf("autostart: trip %d: attempt failed, retrying: %v", l.tripID, err)
		}
		return
	}

	out := Result{TripID: l.tripID, Started: res.Started, Reason: res.Reason, At: time.Now()}
	if res.Started {
		m.mu.Lock()
		if m.cur == l {
			m.stopLocked()
		}
		m.mu.Unlock()
	}
	l.onResult(out)
}
