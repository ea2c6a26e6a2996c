package db

import (
	"fmt"

	"github.com/zulandar/carpool/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of GORM models backing the local cache.
func AllModels() []interface{} {
	return []interface{}{
		&models.CachedTrip{},
		&models.ChatMessage{},
	}
}

// AutoMigrate creates or updates all cache tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
