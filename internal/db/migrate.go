package db

import (
	"fmt"

	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Message{},
		&models.Dispatch{},
		&models.DispatchError{},
		&models.Subscription{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Reset drops all tables and recreates them empty.
func Reset(db *gorm.DB) error {
	for _, model := range AllModels() {
		if err := db.Migrator().DropTable(model); err != nil {
			return fmt.Errorf("db: drop table for %T: %w", model, err)
		}
	}
	return AutoMigrate(db)
}
