package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Eursukkul/showpass/internal/models"
)

func NewPostgresDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Event{},
		&models.TicketType{},
		&models.Reservation{},
		&models.Booking{},
		&models.Attendee{},
		&models.Credential{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// The sweep scans pending reservations by expiry.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_reservation_pending_expiry
		ON reservations (expires_at)
		WHERE status = 'pending'
	`).Error; err != nil {
		return fmt.Errorf("create reservation index: %w", err)
	}

	return nil
}
