package tripsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/config"
	"github.com/zulandar/carpool/internal/db"
	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/models"
	"github.com/zulandar/carpool/internal/scheduler"
)

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()
	gdb, err := db.Open(config.CacheConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	s, err := cache.New(gdb)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	return s
}

func trip(id int64, state models.TripState, passengers int) *models.Trip {
	tr := &models.Trip{
		ID:            id,
		Origin:        "UIS",
		Destination:   "Floridablanca",
		DepartureTime: time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC),
		SeatsMax:      4,
		Driver:        models.Driver{ID: 7, Name: "Ana"},
		State:         state,
	}
	for i := 0; i < passengers; i++ {
		tr.Passengers = append(tr.Passengers, models.Passenger{ID: int64(100 + i)})
	}
	return tr
}

var (
	notFound  = gateway.TripReply{Err: gateway.ErrNotFound}
	transient = gateway.TripReply{Err: &gateway.TransientError{Op: "current trip", StatusCode: 502, Err: errors.New("bad gateway")}}
)

func found(t *models.Trip) gateway.TripReply { return gateway.TripReply{Trip: t} }

type fixture struct {
	gw    *gateway.MockGateway
	store *cache.Store
	sync  *Synchronizer
}

func newFixture(t *testing.T, cached *models.Trip, threshold int) *fixture {
	t.Helper()
	f := &fixture{gw: gateway.NewMockGateway(), store: openTestStore(t)}
	if cached != nil {
		if err := f.store.SaveCurrentTrip(cached); err != nil {
			t.Fatal(err)
		}
	}
	var hint int64
	if cached != nil {
		hint = cached.ID
	}
	s, err := NewSynchronizer(SynchronizerOpts{
		Gateway:   f.gw,
		Store:     f.store,
		Role:      models.RolePassenger,
		UserID:    100,
		TripID:    hint,
		Threshold: threshold,
	})
	if err != nil {
		t.Fatalf("NewSynchronizer: %v", err)
	}
	f.sync = s
	return f
}

func (f *fixture) cached(t *testing.T) *models.Trip {
	t.Helper()
	tr, ok, err := f.store.CurrentTrip()
	if err != nil {
		t.Fatalf("CurrentTrip: %v", err)
	}
	if !ok {
		return nil
	}
	return tr
}

// drain returns every transition emitted so far without blocking.
func drain(s *Synchronizer) []Transition {
	var out []Transition
	for {
		select {
		case tr, ok := <-s.Transitions():
			if !ok {
				return out
			}
			out = append(out, tr)
		default:
			return out
		}
	}
}

func TestNewSynchronizer_Validation(t *testing.T) {
	store := openTestStore(t)
	gw := gateway.NewMockGateway()
	cases := []struct {
		name string
		opts SynchronizerOpts
	}{
		{"no gateway", SynchronizerOpts{Store: store, Role: models.RoleDriver, UserID: 1}},
		{"no store", SynchronizerOpts{Gateway: gw, Role: models.RoleDriver, UserID: 1}},
		{"bad role", SynchronizerOpts{Gateway: gw, Store: store, Role: "admin", UserID: 1}},
		{"no user", SynchronizerOpts{Gateway: gw, Store: store, Role: models.RoleDriver}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSynchronizer(tc.opts); err == nil {
				t.Error("expected error")
			}
		})
	}

	s, err := NewSynchronizer(SynchronizerOpts{Gateway: gw, Store: store, Role: models.RoleDriver, UserID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if s.threshold != DefaultNotFoundThreshold {
		t.Errorf("threshold = %d, want default %d", s.threshold, DefaultNotFoundThreshold)
	}
}

func TestReconcile_EmptyCacheEmitsNoActiveTripImmediately(t *testing.T) {
	f := newFixture(t, nil, 2)
	f.gw.QueueCurrent(notFound)

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionTransition || out.Transition.Kind != NoActiveTrip {
		t.Fatalf("Reconcile() = %+v, want NoActiveTrip transition", out)
	}
	if got := drain(f.sync); len(got) != 1 || got[0].Kind != NoActiveTrip {
		t.Errorf("transitions = %+v, want one NoActiveTrip", got)
	}
	if f.sync.Active() {
		t.Error("synchronizer still active after transition")
	}
}

func TestReconcile_TransientFailuresNeverClearCache(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 2), 2)
	f.gw.QueueCurrent(transient)

	for i := 0; i < 10; i++ {
		out := f.sync.Reconcile(context.Background())
		if out.Action != ActionKept {
			t.Fatalf("tick %d: Action = %q, want kept", i, out.Action)
		}
		if !gateway.IsTransient(out.Err) {
			t.Errorf("tick %d: Err = %v, want transient", i, out.Err)
		}
	}
	if c := f.cached(t); c == nil || c.ID != 31 {
		t.Errorf("cache = %+v, want trip 31 kept", c)
	}
	if got := drain(f.sync); len(got) != 0 {
		t.Errorf("transitions = %+v, want none", got)
	}
	if !f.sync.Active() {
		t.Error("synchronizer should stay active")
	}
}

func TestReconcile_NotFoundDebounce(t *testing.T) {
	for _, threshold := range []int{1, 2, 3, 5} {
		f := newFixture(t, trip(31, models.TripCreated, 1), threshold)
		f.gw.QueueCurrent(notFound)

		for i := 1; i <= threshold; i++ {
			out := f.sync.Reconcile(context.Background())
			if out.Action != ActionKept {
				t.Fatalf("threshold %d, miss %d: Action = %q, want kept", threshold, i, out.Action)
			}
			if f.cached(t) == nil {
				t.Fatalf("threshold %d, miss %d: cache cleared too early", threshold, i)
			}
		}

		out := f.sync.Reconcile(context.Background())
		if out.Action != ActionTransition || out.Transition.Kind != NoActiveTrip {
			t.Fatalf("threshold %d: miss %d = %+v, want NoActiveTrip", threshold, threshold+1, out)
		}
		if out.Transition.TripID != 31 {
			t.Errorf("TripID = %d, want 31", out.Transition.TripID)
		}
		if f.cached(t) != nil {
			t.Errorf("threshold %d: cache not cleared", threshold)
		}

		if out := f.sync.Reconcile(context.Background()); out.Action != ActionIdle {
			t.Errorf("threshold %d: tick after transition = %q, want idle", threshold, out.Action)
		}
		if got := drain(f.sync); len(got) != 1 {
			t.Errorf("threshold %d: %d transitions, want exactly 1", threshold, len(got))
		}
	}
}

func TestReconcile_TransientDoesNotCountTowardDebounce(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	f.gw.QueueCurrent(notFound, transient, notFound, transient, transient, notFound)

	var actions []Action
	for i := 0; i < 6; i++ {
		actions = append(actions, f.sync.Reconcile(context.Background()).Action)
	}
	for i, a := range actions[:5] {
		if a != ActionKept {
			t.Errorf("tick %d = %q, want kept", i, a)
		}
	}
	if actions[5] != ActionTransition {
		t.Errorf("third miss = %q, want transition", actions[5])
	}
}

func TestReconcile_TripBodyResetsDebounce(t *testing.T) {
	tr := trip(31, models.TripCreated, 1)
	f := newFixture(t, tr, 2)
	f.gw.QueueCurrent(notFound, notFound, found(tr), notFound, notFound)

	for i := 0; i < 5; i++ {
		if out := f.sync.Reconcile(context.Background()); out.Action == ActionTransition {
			t.Fatalf("tick %d emitted %+v, counter was not reset", i, out.Transition)
		}
	}
	if !f.sync.Active() {
		t.Error("synchronizer should still be active")
	}
}

func TestReconcile_SeatUpdateIsSilent(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 3), 2)
	f.gw.QueueCurrent(found(trip(31, models.TripCreated, 4)))

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionUpdated {
		t.Fatalf("Action = %q, want updated", out.Action)
	}
	if c := f.cached(t); c.SeatsTaken() != 4 {
		t.Errorf("cached seats = %d/4, want 4/4", c.SeatsTaken())
	}
	if got := drain(f.sync); len(got) != 0 {
		t.Errorf("transitions = %+v, want none", got)
	}
}

func TestReconcile_TripStartedExactlyOnce(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 2), 2)
	f.gw.QueueCurrent(found(trip(31, models.TripInProgress, 2)))

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionTransition || out.Transition.Kind != TripStarted {
		t.Fatalf("first tick = %+v, want TripStarted", out)
	}
	if c := f.cached(t); c == nil || c.State != models.TripInProgress {
		t.Errorf("cache = %+v, want IN_PROGRESS", c)
	}
	for i := 0; i < 3; i++ {
		if out := f.sync.Reconcile(context.Background()); out.Action != ActionIdle {
			t.Errorf("later tick %d = %q, want idle", i, out.Action)
		}
	}
	if got := drain(f.sync); len(got) != 1 || got[0].Kind != TripStarted {
		t.Errorf("transitions = %+v, want exactly one TripStarted", got)
	}
}

func TestReconcile_InProgressAlreadyKnownThenFinished(t *testing.T) {
	f := newFixture(t, trip(31, models.TripInProgress, 2), 2)
	f.gw.QueueCurrent(found(trip(31, models.TripInProgress, 2)), found(trip(31, models.TripFinished, 2)))

	if out := f.sync.Reconcile(context.Background()); out.Action != ActionUpdated {
		t.Fatalf("first tick = %q, want updated (already in progress)", out.Action)
	}
	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionTransition || out.Transition.Kind != TripFinished {
		t.Fatalf("second tick = %+v, want TripFinished", out)
	}
	if out.Transition.Trip == nil || out.Transition.Trip.State != models.TripFinished {
		t.Errorf("Transition.Trip = %+v", out.Transition.Trip)
	}
	if f.cached(t) != nil {
		t.Error("cache not cleared after finish")
	}
}

func TestReconcile_CanceledClearsCache(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 2), 2)
	f.gw.QueueCurrent(found(trip(31, models.TripCanceled, 2)))

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionTransition || out.Transition.Kind != TripCanceled {
		t.Fatalf("Reconcile() = %+v, want TripCanceled", out)
	}
	if !out.Transition.Kind.Terminal() {
		t.Error("TripCanceled should be terminal")
	}
	if f.cached(t) != nil {
		t.Error("cache not cleared after cancel")
	}
}

func TestReconcile_DifferentTripIsAdopted(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	f.gw.QueueCurrent(found(trip(32, models.TripCreated, 2)))

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionUpdated {
		t.Fatalf("Action = %q, want updated", out.Action)
	}
	if c := f.cached(t); c == nil || c.ID != 32 {
		t.Errorf("cache = %+v, want trip 32", c)
	}
	if f.sync.tripID != 32 {
		t.Errorf("tripID hint = %d, want 32", f.sync.tripID)
	}
}

func TestReconcile_InconsistentTripIgnored(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	bad := trip(31, models.TripCreated, 5) // 5 passengers, 4 seats
	f.gw.QueueCurrent(found(bad))

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionKept || out.Err == nil {
		t.Fatalf("Reconcile() = %+v, want kept with error", out)
	}
	if c := f.cached(t); c.SeatsTaken() != 1 {
		t.Errorf("cache overwritten with inconsistent trip: %+v", c)
	}
}

func TestReconcile_StaleStateDoesNotRegress(t *testing.T) {
	f := newFixture(t, trip(31, models.TripInProgress, 2), 2)
	f.gw.QueueCurrent(found(trip(31, models.TripCreated, 2)), found(trip(31, models.TripInProgress, 3)))

	out := f.sync.Reconcile(context.Background())
	if out.Action != ActionKept {
		t.Fatalf("stale tick = %q, want kept", out.Action)
	}
	if c := f.cached(t); c == nil || c.State != models.TripInProgress {
		t.Fatalf("cache = %+v, want IN_PROGRESS", c)
	}

	out = f.sync.Reconcile(context.Background())
	if out.Action != ActionUpdated {
		t.Fatalf("second tick = %q, want updated", out.Action)
	}
	if c := f.cached(t); c.SeatsTaken() != 3 {
		t.Errorf("cached seats = %d, want 3", c.SeatsTaken())
	}
	if got := drain(f.sync); len(got) != 0 {
		t.Errorf("transitions = %+v, want none", got)
	}
}

func TestReconcile_BackwardsStates(t *testing.T) {
	cases := []struct {
		name       string
		cached     models.TripState
		remote     models.TripState
		wantAction Action
		wantKind   TransitionKind
		wantCache  models.TripState // "" means cleared
	}{
		{"in progress read as created", models.TripInProgress, models.TripCreated, ActionKept, "", models.TripInProgress},
		{"created stays created", models.TripCreated, models.TripCreated, ActionUpdated, "", models.TripCreated},
		{"created to finished is accepted", models.TripCreated, models.TripFinished, ActionTransition, TripFinished, ""},
		{"in progress to canceled", models.TripInProgress, models.TripCanceled, ActionTransition, TripCanceled, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, trip(31, tc.cached, 1), 2)
			f.gw.QueueCurrent(found(trip(31, tc.remote, 1)))

			out := f.sync.Reconcile(context.Background())
			if out.Action != tc.wantAction {
				t.Fatalf("Action = %q, want %q", out.Action, tc.wantAction)
			}
			if tc.wantKind != "" && out.Transition.Kind != tc.wantKind {
				t.Errorf("Transition.Kind = %q, want %q", out.Transition.Kind, tc.wantKind)
			}
			c := f.cached(t)
			switch {
			case tc.wantCache == "" && c != nil:
				t.Errorf("cache = %+v, want cleared", c)
			case tc.wantCache != "" && (c == nil || c.State != tc.wantCache):
				t.Errorf("cache = %+v, want %s", c, tc.wantCache)
			}
		})
	}
}

func TestReconcile_BackwardsAfterTripStarted(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 2), 2)
	f.gw.QueueCurrent(found(trip(31, models.TripInProgress, 2)))
	if out := f.sync.Reconcile(context.Background()); out.Action != ActionTransition || out.Transition.Kind != TripStarted {
		t.Fatalf("first tick = %+v, want TripStarted", out)
	}

	// The next view starts a fresh instance over the same cache.
	gw := gateway.NewMockGateway()
	next, err := NewSynchronizer(SynchronizerOpts{
		Gateway: gw,
		Store:   f.store,
		Role:    models.RolePassenger,
		UserID:  100,
		TripID:  31,
	})
	if err != nil {
		t.Fatal(err)
	}
	gw.QueueCurrent(found(trip(31, models.TripCreated, 2)), found(trip(31, models.TripInProgress, 2)))
	for i := 0; i < 2; i++ {
		out := next.Reconcile(context.Background())
		if out.Action == ActionTransition {
			t.Fatalf("tick %d emitted %+v, want no transition", i, out.Transition)
		}
	}
	if c := f.cached(t); c == nil || c.State != models.TripInProgress {
		t.Errorf("cache = %+v, want IN_PROGRESS", c)
	}
	if next.lastState != models.TripInProgress {
		t.Errorf("lastState = %s, want IN_PROGRESS", next.lastState)
	}
	if got := drain(next); len(got) != 0 {
		t.Errorf("transitions = %+v, want none", got)
	}
}

func TestStop_DiscardsInFlightResult(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.gw.CurrentHook = func(ctx context.Context, role models.Role, userID int64) (*models.Trip, error) {
		close(entered)
		<-release
		return trip(31, models.TripInProgress, 1), nil
	}

	result := make(chan Outcome, 1)
	go func() { result <- f.sync.Reconcile(context.Background()) }()

	<-entered
	f.sync.Stop()
	close(release)

	out := <-result
	if out.Action != ActionDiscarded {
		t.Errorf("Action = %q, want discarded", out.Action)
	}
	if c := f.cached(t); c == nil || c.State != models.TripCreated {
		t.Errorf("cache = %+v, want untouched CREATED trip", c)
	}
	if got := drain(f.sync); len(got) != 0 {
		t.Errorf("transitions = %+v, want none", got)
	}
	f.sync.Stop()
}

func TestStop_CancelsInFlightContext(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	entered := make(chan struct{})
	f.gw.CurrentHook = func(ctx context.Context, role models.Role, userID int64) (*models.Trip, error) {
		close(entered)
		<-ctx.Done()
		return nil, &gateway.TransientError{Op: "current trip", Err: ctx.Err()}
	}

	result := make(chan Outcome, 1)
	go func() { result <- f.sync.Reconcile(context.Background()) }()
	<-entered
	f.sync.Stop()

	select {
	case out := <-result:
		if out.Action != ActionDiscarded {
			t.Errorf("Action = %q, want discarded", out.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call not cancelled by Stop")
	}
}

func TestRun_StopsAfterTransition(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	f.sync.interval = 10 * time.Millisecond
	f.gw.QueueCurrent(found(trip(31, models.TripCreated, 2)), found(trip(31, models.TripInProgress, 2)))

	sched := scheduler.New()
	defer sched.Stop()
	f.sync.sched = sched

	errc := make(chan error, 1)
	go func() { errc <- f.sync.Run(context.Background()) }()

	select {
	case tr := <-f.sync.Transitions():
		if tr.Kind != TripStarted {
			t.Errorf("Kind = %q, want trip_started", tr.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no transition")
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after transition")
	}
	calls := f.gw.CurrentCalls()
	time.Sleep(50 * time.Millisecond)
	if f.gw.CurrentCalls() != calls {
		t.Errorf("ticks continued after Run returned: %d -> %d", calls, f.gw.CurrentCalls())
	}
}

func TestRun_ContextCancelStops(t *testing.T) {
	f := newFixture(t, trip(31, models.TripCreated, 1), 2)
	f.sync.interval = 10 * time.Millisecond
	f.gw.QueueCurrent(transient)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.sync.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for f.gw.CurrentCalls() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Run never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-errc:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if f.sync.Active() {
		t.Error("synchronizer still active after Run returned")
	}
	if _, ok := <-f.sync.Transitions(); ok {
		t.Error("transitions channel should be closed without a value")
	}
}
