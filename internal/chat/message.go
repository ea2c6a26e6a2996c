// Package chat merges optimistic local chat messages with the messages the
// channel delivers into one ordered, persisted list per chat.
package chat

import (
	"time"

	"github.com/zulandar/carpool/internal/cache"
	"github.com/zulandar/carpool/internal/models"
)

// IdentityKind tags a message id as local or server-issued.
type IdentityKind int

const (
	Pending IdentityKind = iota
	Confirmed
)

func (k IdentityKind) String() string {
	if k == Confirmed {
		return "confirmed"
	}
	return "pending"
}

// Identity is either Pending{local id} or Confirmed{server id}.
type Identity struct {
	Kind IdentityKind
	ID   string
}

// PendingID returns a local identity.
func PendingID(localID string) Identity { return Identity{Kind: Pending, ID: localID} }

// ConfirmedID returns a server identity.
func ConfirmedID(serverID string) Identity { return Identity{Kind: Confirmed, ID: serverID} }

// Author is who wrote a message.
type Author struct {
	ID   int64
	Name string
}

// Message is one entry of a chat.
type Message struct {
	Identity   Identity
	Content    string
	AuthorID   int64
	AuthorName string
	SentAt     time.Time
}

// Pending reports whether the message still awaits server confirmation.
func (m Message) Pending() bool {
	return m.Identity.Kind == Pending
}

func fromServer(s models.ServerMessage) Message {
	return Message{
		Identity:   ConfirmedID(s.ID),
		Content:    s.Content,
		AuthorID:   s.AuthorID,
		AuthorName: s.AuthorName,
		SentAt:     s.SentAt,
	}
}

func toStored(m Message) cache.StoredMessage {
	kind := cache.KindPending
	if m.Identity.Kind == Confirmed {
		kind = cache.KindConfirmed
	}
	return cache.StoredMessage{
		Kind:       kind,
		ID:         m.Identity.ID,
		Content:    m.Content,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		SentAt:     m.SentAt,
	}
}

func fromStored(s cache.StoredMessage) Message {
	id := PendingID(s.ID)
	if s.Kind == cache.KindConfirmed {
		id = ConfirmedID(s.ID)
	}
	return Message{
		Identity:   id,
		Content:    s.Content,
		AuthorID:   s.AuthorID,
		AuthorName: s.AuthorName,
		SentAt:     s.SentAt,
	}
}
