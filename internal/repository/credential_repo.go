package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Eursukkul/showpass/internal/models"
)

type CredentialRepository interface {
	// SaveAll stores credentials, skipping any seat that already has one.
	SaveAll(ctx context.Context, creds []models.Credential) error
	FindByBooking(ctx context.Context, bookingID string) ([]models.Credential, error)
	FindBySeat(ctx context.Context, bookingID, attendeeID string) (*models.Credential, error)
	FindByCode(ctx context.Context, eventID, code string) (*models.Credential, error)
	FindByToken(ctx context.Context, token string) (*models.Credential, error)
	// Consume marks the credential used at the given time. The bool is
	// false when it was already consumed; the returned credential then
	// carries the original ConsumedAt.
	Consume(ctx context.Context, id string, at time.Time) (*models.Credential, bool, error)
	RevokeByBooking(ctx context.Context, bookingID string) error
}

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) SaveAll(ctx context.Context, creds []models.Credential) error {
	if len(creds) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&creds).Error
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (r *credentialRepository) FindByBooking(ctx context.Context, bookingID string) ([]models.Credential, error) {
	var creds []models.Credential
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("issued_at ASC, attendee_id ASC").
		Find(&creds).Error
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

func (r *credentialRepository) FindBySeat(ctx context.Context, bookingID, attendeeID string) (*models.Credential, error) {
	return r.findOne(ctx, "booking_id = ? AND attendee_id = ?", bookingID, attendeeID)
}

func (r *credentialRepository) FindByCode(ctx context.Context, eventID, code string) (*models.Credential, error) {
	return r.findOne(ctx, "event_id = ? AND verification_code = ?", eventID, code)
}

func (r *credentialRepository) FindByToken(ctx context.Context, token string) (*models.Credential, error) {
	return r.findOne(ctx, "token = ?", token)
}

func (r *credentialRepository) findOne(ctx context.Context, query string, args ...any) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where(query, args...).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return &cred, nil
}

func (r *credentialRepository) Consume(ctx context.Context, id string, at time.Time) (*models.Credential, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ? AND consumed = ?", id, false).
		Updates(map[string]any{"consumed": true, "consumed_at": at})
	if result.Error != nil {
		return nil, false, fmt.Errorf("consume credential: %w", result.Error)
	}

	cred, err := r.findOne(ctx, "id = ?", id)
	if err != nil {
		return nil, false, err
	}
	return cred, result.RowsAffected == 1, nil
}

func (r *credentialRepository) RevokeByBooking(ctx context.Context, bookingID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("booking_id = ?", bookingID).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("revoke credentials: %w", err)
	}
	return nil
}
