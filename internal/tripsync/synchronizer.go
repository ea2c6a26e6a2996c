package tripsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/models"
	"github.com/zulandar/carpool/internal/scheduler"
)

// DefaultNotFoundThreshold is how many consecutive "no active trip" answers
// are tolerated before they are trusted over the cache.
const DefaultNotFoundThreshold = 2

// loopState is the re-entrancy guard of a Synchronizer.
type loopState int

const (
	stateActive loopState = iota
	stateTransitioning
	stateDone
)

func (s loopState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateTransitioning:
		return "transitioning"
	default:
		return "done"
	}
}

// SynchronizerOpts holds parameters for creating a Synchronizer.
type SynchronizerOpts struct {
	Gateway   gateway.Gateway      // required
	Store     TripStore            // required
	Role      models.Role          // required
	UserID    int64                // required
	TripID    int64                // hint; 0 means whatever is cached
	Threshold int                  // consecutive misses tolerated; default 2
	Interval  time.Duration        // Run cadence; default 4s
	Scheduler *scheduler.Scheduler // optional; Run creates one when nil
}

// Synchronizer reconciles the cached current trip against the backend for
// one view. It emits at most one Transition, after which it is done.
type Synchronizer struct {
	gw        gateway.Gateway
	store     TripStore
	role      models.Role
	userID    int64
	tripID    int64
	threshold int
	interval  time.Duration
	sched     *scheduler.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	tickMu sync.Mutex // serializes Reconcile

	mu          sync.Mutex
	state       loopState
	misses      int
	lastState   models.TripState
	transitions chan Transition
	done        chan struct{}
}

// NewSynchronizer creates a Synchronizer in the active state.
func NewSynchronizer(opts SynchronizerOpts) (*Synchronizer, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("tripsync: gateway is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("tripsync: store is required")
	}
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("tripsync: role must be driver or passenger, got %q", opts.Role)
	}
	if opts.UserID <= 0 {
		return nil, fmt.Errorf("tripsync: user id is required")
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultNotFoundThreshold
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 4 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		gw:          opts.Gateway,
		store:       opts.Store,
		role:        opts.Role,
		userID:      opts.UserID,
		tripID:      opts.TripID,
		threshold:   threshold,
		interval:    interval,
		sched:       opts.Scheduler,
		ctx:         ctx,
		cancel:      cancel,
		transitions: make(chan Transition, 1),
		done:        make(chan struct{}),
	}, nil
}

// Transitions returns the stream of emitted transitions. It is closed once
// the instance is done.
func (s *Synchronizer) Transitions() <-chan Transition {
	return s.transitions
}

// Done is closed once the instance will do no more work.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// Active reports whether ticks still have an effect.
func (s *Synchronizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Stop marks the instance done and cancels any in-flight tick. A result
// arriving afterwards is discarded. Stop is idempotent.
func (s *Synchronizer) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

// finishLocked moves to Done and closes the output channels once.
func (s *Synchronizer) finishLocked() {
	if s.state == stateDone {
		return
	}
	s.state = stateDone
	close(s.transitions)
	close(s.done)
}

// Run reconciles once immediately and then on the configured interval until
// ctx ends or a transition is emitted. It only fails on setup errors.
func (s *Synchronizer) Run(ctx context.Context) error {
	sched := s.sched
	if sched == nil {
		sched = scheduler.New()
		defer sched.Stop()
	}
	handle, err := sched.Every(fmt.Sprintf("tripsync-%s-%d", s.role, s.userID), s.interval, func() {
		s.Reconcile(ctx)
	})
	if err != nil {
		return fmt.Errorf("tripsync: schedule: %w", err)
	}
	defer handle.Cancel()

	select {
	case <-ctx.Done():
		s.Stop()
	case <-s.done:
	}
	return nil
}

// Reconcile performs one tick.
func (s *Synchronizer) Reconcile(ctx context.Context) Outcome {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if !s.Active() {
		return Outcome{Action: ActionIdle}
	}

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(s.ctx, cancel)
	defer stopWatch()

	cached, ok, err := s.store.CurrentTrip()
	if err != nil {
		log.Printf("tripsync: read cache: %v", err)
		return Outcome{Action: ActionKept, Err: err}
	}
	if !ok {
		return s.emit(Transition{Kind: NoActiveTrip, TripID: s.tripID}, nil)
	}

	s.mu.Lock()
	if s.lastState == "" {
		s.lastState = cached.State
	}
	s.mu.Unlock()

	remote, err := gateway.CurrentTrip(tickCtx, s.gw, s.role, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return Outcome{Action: ActionDiscarded}
	}

	switch {
	case errors.Is(err, gateway.ErrNotFound):
		s.misses++
		if s.misses <= s.threshold {
			return Outcome{Action: ActionKept, Trip: cached}
		}
		if err := s.store.ClearCurrentTrip(); err != nil {
			log.Printf("tripsync: clear cache: %v", err)
		}
		return s.emitLocked(Transition{Kind: NoActiveTrip, TripID: cached.ID}, nil)

	case err != nil:
		if !gateway.IsTransient(err) {
			log.Printf("tripsync: trip %d: unexpected error, retrying: %v", cached.ID, err)
		}
		return Outcome{Action: ActionKept, Trip: cached, Err: err}
	}

	if verr := remote.Validate(); verr != nil {
		log.Printf("tripsync: ignoring inconsistent trip from backend: %v", verr)
		return Outcome{Action: ActionKept, Trip: cached, Err: verr}
	}

	s.misses = 0
	if remote.ID == cached.ID && !remote.State.Terminal() && !cached.State.CanTransition(remote.State) {
		// Lifecycle only moves forward; this is an out-of-date read.
		// Terminal states are always accepted.
		log.Printf("tripsync: trip %d: ignoring stale state %s over %s", remote.ID, remote.State, cached.State)
		return Outcome{Action: ActionKept, Trip: cached}
	}
	if remote.ID != cached.ID {
		// A different trip has no state history on this instance.
		s.lastState = ""
	}
	if s.tripID != 0 && remote.ID != s.tripID {
		log.Printf("tripsync: backend reports trip %d instead of %d, adopting it", remote.ID, s.tripID)
		s.tripID = remote.ID
	}
	previous := s.lastState
	s.lastState = remote.State

	switch remote.State {
	case models.TripCanceled, models.TripFinished:
		if err := s.store.ClearCurrentTrip(); err != nil {
			log.Printf("tripsync: clear cache: %v", err)
		}
		kind := TripFinished
		if remote.State == models.TripCanceled {
			kind = TripCanceled
		}
		return s.emitLocked(Transition{Kind: kind, TripID: remote.ID, Trip: remote}, nil)

	case models.TripInProgress:
		if err := s.store.SaveCurrentTrip(remote); err != nil {
			log.Printf("tripsync: write cache: %v", err)
		}
		if previous != models.TripInProgress {
			return s.emitLocked(Transition{Kind: TripStarted, TripID: remote.ID, Trip: remote}, remote)
		}
		return Outcome{Action: ActionUpdated, Trip: remote}
	}

	if err := s.store.SaveCurrentTrip(remote); err != nil {
		log.Printf("tripsync: write cache: %v", err)
		return Outcome{Action: ActionKept, Trip: cached, Err: err}
	}
	return Outcome{Action: ActionUpdated, Trip: remote}
}

func (s *Synchronizer) emit(t Transition, trip *models.Trip) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return Outcome{Action: ActionDiscarded}
	}
	return s.emitLocked(t, trip)
}

// emitLocked runs the Active -> Transitioning -> Done sequence.
func (s *Synchronizer) emitLocked(t Transition, trip *models.Trip) Outcome {
	s.state = stateTransitioning
	if t.At.IsZero() {
		t.At = time.Now()
	}
	s.transitions <- t
	s.finishLocked()
	return Outcome{Action: ActionTransition, Trip: trip, Transition: &t}
}
