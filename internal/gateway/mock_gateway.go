package gateway

import (
	"context"
	"sync"

	"github.com/zulandar/carpool/internal/models"
)

// TripReply is one scripted answer to a current-trip query or a mutation.
type TripReply struct {
	Trip *models.Trip
	Err  error
}

// StartReply is one scripted answer to TryStart.
type StartReply struct {
	Result StartResult
	Err    error
}

// CancelCall records the arguments of a Cancel call.
type CancelCall struct {
	TripID  int64
	ActorID int64
	Role    models.Role
}

// CommentCall records the arguments of a Comment call.
type CommentCall struct {
	TripID  int64
	ActorID int64
	Text    string
}

// MockGateway implements Gateway for testing. Replies are consumed in order;
// the last scripted reply of each queue repeats once the queue is drained.
// An empty current-trip queue answers ErrNotFound.
type MockGateway struct {
	mu sync.Mutex

	current []TripReply
	starts  []StartReply
	cancel  TripReply
	finish  TripReply
	comment error

	// CurrentHook, when set, replaces the current-trip queue. It runs
	// without the mock's lock held, so it may block on ctx.
	CurrentHook func(ctx context.Context, role models.Role, userID int64) (*models.Trip, error)

	// StartHook, when set, replaces the start queue. It runs without the
	// mock's lock held.
	StartHook func(ctx context.Context, tripID int64) (StartResult, error)

	currentCalls int
	startTrips   []int64
	cancelCalls  []CancelCall
	finishCalls  []int64
	commentCalls []CommentCall
}

var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) CurrentTripForDriver(ctx context.Context, driverID int64) (*models.Trip, error) {
	return m.currentTrip(ctx, models.RoleDriver, driverID)
}

func (m *MockGateway) CurrentTripForPassenger(ctx context.Context, passengerID int64) (*models.Trip, error) {
	return m.currentTrip(ctx, models.RolePassenger, passengerID)
}

func (m *MockGateway) currentTrip(ctx context.Context, role models.Role, userID int64) (*models.Trip, error) {
	m.mu.Lock()
	m.currentCalls++
	hook := m.CurrentHook
	if hook != nil {
		m.mu.Unlock()
		return hook(ctx, role, userID)
	}
	defer m.mu.Unlock()
	if len(m.current) == 0 {
		return nil, ErrNotFound
	}
	r := m.current[0]
	if len(m.current) > 1 {
		m.current = m.current[1:]
	}
	return cloneTrip(r.Trip), r.Err
}

func (m *MockGateway) TryStart(ctx context.Context, tripID int64) (StartResult, error) {
	m.mu.Lock()
	m.startTrips = append(m.startTrips, tripID)
	hook := m.StartHook
	if hook != nil {
		m.mu.Unlock()
		return hook(ctx, tripID)
	}
	defer m.mu.Unlock()
	if len(m.starts) == 0 {
		return StartResult{}, &TransientError{Op: "start trip", StatusCode: 503, Err: errMockUnscripted}
	}
	r := m.starts[0]
	if len(m.starts) > 1 {
		m.starts = m.starts[1:]
	}
	return r.Result, r.Err
}

func (m *MockGateway) Cancel(ctx context.Context, tripID, actorID int64, role models.Role) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls = append(m.cancelCalls, CancelCall{TripID: tripID, ActorID: actorID, Role: role})
	return cloneTrip(m.cancel.Trip), m.cancel.Err
}

func (m *MockGateway) Finish(ctx context.Context, tripID, driverID int64) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishCalls = append(m.finishCalls, tripID)
	return cloneTrip(m.finish.Trip), m.finish.Err
}

func (m *MockGateway) Comment(ctx context.Context, tripID, actorID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commentCalls = append(m.commentCalls, CommentCall{TripID: tripID, ActorID: actorID, Text: text})
	return m.comment
}

// --- Test helpers ---

// QueueCurrent appends replies for the current-trip queries.
func (m *MockGateway) QueueCurrent(replies ...TripReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = append(m.current, replies...)
}

// QueueStart appends replies for TryStart.
func (m *MockGateway) QueueStart(replies ...StartReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts = append(m.starts, replies...)
}

// SetCancelReply sets the answer for every Cancel call.
func (m *MockGateway) SetCancelReply(r TripReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = r
}

// SetFinishReply sets the answer for every Finish call.
func (m *MockGateway) SetFinishReply(r TripReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finish = r
}

// SetCommentErr sets the error returned by every Comment call.
func (m *MockGateway) SetCommentErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comment = err
}

// CurrentCalls returns how many current-trip queries were made.
func (m *MockGateway) CurrentCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCalls
}

// StartCalls returns how many start attempts were made.
func (m *MockGateway) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.startTrips)
}

// StartTrips returns the trip ids passed to TryStart, in call order.
func (m *MockGateway) StartTrips() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.startTrips...)
}

// CancelCalls returns a copy of the recorded Cancel calls.
func (m *MockGateway) CancelCalls() []CancelCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CancelCall(nil), m.cancelCalls...)
}

// FinishCalls returns the trip ids passed to Finish.
func (m *MockGateway) FinishCalls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.finishCalls...)
}

// CommentCalls returns a copy of the recorded Comment calls.
func (m *MockGateway) CommentCalls() []CommentCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CommentCall(nil), m.commentCalls...)
}

type mockError string

func (e mockError) Error() string { return string(e) }

const errMockUnscripted = mockError("mock gateway: no scripted reply")

// cloneTrip copies the slices of a trip so callers cannot alias the script.
func cloneTrip(t *models.Trip) *models.Trip {
	if t == nil {
		return nil
	}
	c := *t
	c.Passengers = append([]models.Passenger(nil), t.Passengers...)
	c.ChatMessages = append([]models.ServerMessage(nil), t.ChatMessages...)
	if t.ChatID != nil {
		id := *t.ChatID
		c.ChatID = &id
	}
	return &c
}
