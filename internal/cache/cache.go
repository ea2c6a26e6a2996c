// Package cache is the local durable store behind the trip views: the single
// "current trip" record and one ordered message list per chat.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/carpool/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageKind tags the identity of a cached chat message.
type MessageKind string

const (
	KindPending   MessageKind = "pending"
	KindConfirmed MessageKind = "confirmed"
)

// StoredMessage is a chat message as persisted in the cache.
type StoredMessage struct {
	Kind       MessageKind
	ID         string
	Content    string
	AuthorID   int64
	AuthorName string
	SentAt     time.Time
}

// Store is a gorm-backed Trip Cache. Writers are last-writer-wins; no
// locking is held across calls.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an already migrated database.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("cache: db is required")
	}
	return &Store{db: db}, nil
}

// CurrentTrip returns the cached current trip. The bool is false when no
// trip is cached.
func (s *Store) CurrentTrip() (*models.Trip, bool, error) {
	var row models.CachedTrip
	err := s.db.Where("slot = ?", models.CurrentTripSlot).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: load current trip: %w", err)
	}
	var trip models.Trip
	if err := json.Unmarshal([]byte(row.Body), &trip); err != nil {
		return nil, false, fmt.Errorf("cache: decode current trip: %w", err)
	}
	return &trip, true, nil
}

// SaveCurrentTrip replaces the cached current trip.
func (s *Store) SaveCurrentTrip(trip *models.Trip) error {
	if trip == nil {
		return fmt.Errorf("cache: trip is required")
	}
	body, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("cache: encode trip %d: %w", trip.ID, err)
	}
	row := models.CachedTrip{
		Slot:      models.CurrentTripSlot,
		TripID:    trip.ID,
		State:     string(trip.State),
		Body:      string(body),
		UpdatedAt: time.Now(),
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"trip_id", "state", "body", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("cache: save trip %d: %w", trip.ID, result.Error)
	}
	return nil
}

// ClearCurrentTrip removes the cached current trip. Clearing an empty cache
// is not an error.
func (s *Store) ClearCurrentTrip() error {
	if err := s.db.Where("slot = ?", models.CurrentTripSlot).Delete(&models.CachedTrip{}).Error; err != nil {
		return fmt.Errorf("cache: clear current trip: %w", err)
	}
	return nil
}

// Messages returns the cached message list for a chat in stored order.
func (s *Store) Messages(chatID int64) ([]StoredMessage, error) {
	var rows []models.ChatMessage
	if err := s.db.Where("chat_id = ?", chatID).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cache: load messages for chat %d: %w", chatID, err)
	}
	out := make([]StoredMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, StoredMessage{
			Kind:       MessageKind(r.Kind),
			ID:         r.MessageID,
			Content:    r.Content,
			AuthorID:   r.AuthorID,
			AuthorName: r.AuthorName,
			SentAt:     r.SentAt,
		})
	}
	return out, nil
}

// SaveMessages replaces the full message list for a chat.
func (s *Store) SaveMessages(chatID int64, msgs []StoredMessage) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete old rows: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}
		rows := make([]models.ChatMessage, 0, len(msgs))
		for i, m := range msgs {
			rows = append(rows, models.ChatMessage{
				ChatID:     chatID,
				Position:   i,
				Kind:       string(m.Kind),
				MessageID:  m.ID,
				Content:    m.Content,
				AuthorID:   m.AuthorID,
				AuthorName: m.AuthorName,
				SentAt:     m.SentAt,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: save messages for chat %d: %w", chatID, err)
	}
	return nil
}

// ClearMessages removes the cached message list for a chat.
func (s *Store) ClearMessages(chatID int64) error {
	if err := s.db.Where("chat_id = ?", chatID).Delete(&models.ChatMessage{}).Error; err != nil {
		return fmt.Errorf("cache: clear messages for chat %d: %w", chatID, err)
	}
	return nil
}
