package models

import "time"

// CurrentTripSlot is the primary key of the single current-trip row.
const CurrentTripSlot = "current"

// CachedTrip is the locally persisted "current trip" record.
type CachedTrip struct {
	Slot      string `gorm:"primaryKey;size:16"`
	TripID    int64  `gorm:"index"`
	State     string `gorm:"size:16"`
	Body      string `gorm:"type:text"`
	UpdatedAt time.Time
}

// ChatMessage is one persisted entry of a chat's reconciled message list.
type ChatMessage struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ChatID     int64  `gorm:"not null;index"`
	Position   int    `gorm:"not null"`
	Kind       string `gorm:"size:16;not null"`
	MessageID  string `gorm:"size:64;not null"`
	Content    string `gorm:"type:text"`
	AuthorID   int64
	AuthorName string `gorm:"size:128"`
	SentAt     time.Time
}
