package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/models"
)

// SchemaVersion identifies the current model layout; bump it when migrations change shape.
const SchemaVersion = "1"

// SchemaVersionSetting is the system setting key holding the applied schema version.
const SchemaVersionSetting = "schema.version"

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Task{},
		&models.Notification{},
		&models.Session{},
		&models.AuditLog{},
		&models.SystemSetting{},
		&models.CacheEntry{},
	)
}

// SeedData records installation metadata. It is safe to call on every start.
func SeedData(db *gorm.DB) error {
	return UpsertSystemSetting(context.Background(), db, SchemaVersionSetting, SchemaVersion)
}
