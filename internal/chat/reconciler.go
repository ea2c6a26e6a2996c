package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/channel"
	"github.com/zulandar/carpool/internal/models"
)

// ErrEmptyMessage is returned when the content is blank after trimming.
var ErrEmptyMessage = errors.New("chat: message is empty")

// SendError reports a failed transmission. Input is the text exactly as the
// caller passed it, so it can be put back in the input box.
type SendError struct {
	Input string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("chat: send: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// MessageStore persists a chat's full message sequence.
type MessageStore interface {
	Messages(chatID int64) ([]cache.StoredMessage, error)
	SaveMessages(chatID int64, msgs []cache.StoredMessage) error
}

// ChangeKind says how the list changed.
type ChangeKind string

const (
	Appended  ChangeKind = "appended"
	Collapsed ChangeKind = "collapsed" // a pending entry became confirmed
	Updated   ChangeKind = "updated"   // a confirmed entry was re-delivered
	Removed   ChangeKind = "removed"   // a pending entry whose send failed
)

// Change describes one mutation of the list.
type Change struct {
	Kind    ChangeKind
	Message Message
}

// ReconcilerOpts holds parameters for creating a Reconciler.
type ReconcilerOpts struct {
	Channel  channel.Channel // required
	Store    MessageStore    // required
	TripID   int64           // required
	ChatID   int64           // required
	OnChange func(Change)    // optional; called outside the lock
	NewID    func() string   // pending id source; default uuid
}

// Reconciler owns the ordered message list of one chat.
type Reconciler struct {
	ch       channel.Channel
	store    MessageStore
	tripID   int64
	chatID   int64
	onChange func(Change)
	newID    func() string

	mu   sync.Mutex
	msgs []Message
}

// NewReconciler creates a Reconciler with an empty list; call Activate to
// load history.
func NewReconciler(opts ReconcilerOpts) (*Reconciler, error) {
	if opts.Channel == nil {
		return nil, fmt.Errorf("chat: channel is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: store is required")
	}
	if opts.TripID <= 0 {
		return nil, fmt.Errorf("chat: trip id is required")
	}
	if opts.ChatID <= 0 {
		return nil, fmt.Errorf("chat: chat id is required")
	}
	r := &Reconciler{
		ch:       opts.Channel,
		store:    opts.Store,
		tripID:   opts.TripID,
		chatID:   opts.ChatID,
		onChange: opts.OnChange,
		newID:    opts.NewID,
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r, nil
}

// Messages returns a copy of the list in append order.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Activate loads the cached list and merges the server snapshot carried by
// the trip into it. Messages present in both never appear twice.
func (r *Reconciler) Activate(ctx context.Context, snapshot []models.ServerMessage) error {
	stored, err := r.store.Messages(r.chatID)
	if err != nil {
		return fmt.Errorf("chat: load chat %d: %w", r.chatID, err)
	}

	r.mu.Lock()
	r.msgs = r.msgs[:0]
	for _, s := range stored {
		r.msgs = append(r.msgs, fromStored(s))
	}
	for _, s := range snapshot {
		r.mergeLocked(fromServer(s))
	}
	r.persistLocked()
	r.mu.Unlock()
	return nil
}

// SendLocal appends a pending message right away and publishes it. When
// publishing fails the pending entry is removed again and a *SendError
// carrying the original input is returned, unless the server already echoed
// the message back, in which case the confirmed entry is returned.
func (r *Reconciler) SendLocal(ctx context.Context, content string, author Author) (Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	r.mu.Lock()
	msg, appended := r.addPendingLocked(text, author)
	if appended {
		r.persistLocked()
	}
	r.mu.Unlock()
	if appended {
		r.notify(Change{Kind: Appended, Message: msg})
	}

	err := r.ch.Send(ctx, channel.OutboundMessage{
		TripID:     r.tripID,
		ChatID:     r.chatID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    text,
	})
	if err == nil {
		return msg, nil
	}

	r.mu.Lock()
	if !r.hasLocked(msg.Identity) {
		// The echo collapsed the entry while Send was in flight.
		if echoed, ok := r.confirmedLocked(text, author); ok {
			r.mu.Unlock()
			return echoed, nil
		}
	}
	removed := appended && r.removePendingLocked(msg.Identity)
	if removed {
		r.persistLocked()
	}
	r.mu.Unlock()
	if removed {
		r.notify(Change{Kind: Removed, Message: msg})
	}
	return Message{}, &SendError{Input: content, Err: err}
}

// addPendingLocked reuses a pending entry with the same author and content
// so at most one such entry exists.
func (r *Reconciler) addPendingLocked(text string, author Author) (Message, bool) {
	for _, m := range r.msgs {
		if m.Pending() && m.AuthorID == author.ID && m.Content == text {
			return m, false
		}
	}
	msg := Message{
		Identity:   PendingID(r.newID()),
		Content:    text,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		SentAt:     time.Now(),
	}
	r.msgs = append(r.msgs, msg)
	return msg, true
}

func (r *Reconciler) hasLocked(id Identity) bool {
	for _, m := range r.msgs {
		if m.Identity == id {
			return true
		}
	}
	return false
}

// confirmedLocked finds the latest confirmed entry by author with content.
func (r *Reconciler) confirmedLocked(text string, author Author) (Message, bool) {
	for i := len(r.msgs) - 1; i >= 0; i-- {
		m := r.msgs[i]
		if !m.Pending() && m.AuthorID == author.ID && m.Content == text {
			return m, true
		}
	}
	return Message{}, false
}

func (r *Reconciler) removePendingLocked(id Identity) bool {
	for i, m := range r.msgs {
		if m.Identity == id {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// OnChannelMessage merges one delivery. Malformed bodies are logged,
// dropped and reported.
func (r *Reconciler) OnChannelMessage(ev channel.Event) error {
	s, err := channel.DecodeMessage(ev.Body)
	if err != nil {
		log.Printf("chat: chat %d: dropping malformed event: %v", r.chatID, err)
		return err
	}
	msg := fromServer(s)

	r.mu.Lock()
	kind := r.mergeLocked(msg)
	r.persistLocked()
	r.mu.Unlock()

	r.notify(Change{Kind: kind, Message: msg})
	return nil
}

// mergeLocked applies the precedence: same server id updates in place, then
// a pending entry by the same author with identical content is collapsed,
// otherwise the message is appended.
func (r *Reconciler) mergeLocked(msg Message) ChangeKind {
	for i, m := range r.msgs {
		if m.Identity == msg.Identity {
			r.msgs[i] = msg
			return Updated
		}
	}
	for i, m := range r.msgs {
		if m.Pending() && m.AuthorID == msg.AuthorID && m.Content == msg.Content {
			r.msgs[i] = msg
			return Collapsed
		}
	}
	r.msgs = append(r.msgs, msg)
	return Appended
}

// Run connects the channel and applies deliveries one at a time until ctx
// ends. The channel is closed on return.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.ch.Connect(ctx); err != nil {
		return fmt.Errorf("chat: connect: %w", err)
	}
	defer r.ch.Close()

	events, err := r.ch.Listen(ctx)
	if err != nil {
		return fmt.Errorf("chat: listen: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.OnChannelMessage(ev)
		}
	}
}

func (r *Reconciler) persistLocked() {
	stored := make([]cache.StoredMessage, len(r.msgs))
	for i, m := range r.msgs {
		stored[i] = toStored(m)
	}
	if err := r.store.SaveMessages(r.chatID, stored); err != nil {
		log.Printf("chat: persist chat %d: %v", r.chatID, err)
	}
}

func (r *Reconciler) notify(c Change) {
	if r.onChange != nil {
		r.onChange(c)
	}
}
