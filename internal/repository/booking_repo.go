package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Eursukkul/showpass/internal/models"
)

// BookingChanges are the fields a status transition may set alongside
// the new status. Zero values are left untouched; ClearAttempt wipes the
// per-attempt fields when a failed booking is resubmitted.
type BookingChanges struct {
	PaymentStatus    models.PaymentStatus
	PaymentReference *string
	ReservationID    string
	FailureReason    string
	PaymentDeadline  *time.Time
	ConfirmedAt      *time.Time
	CancelledAt      *time.Time
	ClearAttempt     bool
}

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error)
	// Transition moves a booking from -> to only if it is still in from.
	// It returns ErrStaleTransition when another writer got there first.
	Transition(ctx context.Context, id string, from, to models.BookingStatus, changes BookingChanges) error
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	err := r.db.WithContext(ctx).Create(booking).Error
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == paymentReferenceIndex {
			return ErrPaymentReferenceUsed
		}
		return ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *bookingRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*models.Booking, error) {
	return r.findOne(ctx, "user_id = ? AND idempotency_key = ?", userID, key)
}

func (r *bookingRepository) FindByPaymentReference(ctx context.Context, reference string) (*models.Booking, error) {
	return r.findOne(ctx, "payment_reference = ?", reference)
}

func (r *bookingRepository) findOne(ctx context.Context, query string, args ...any) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Attendees", orderByPosition).
		Where(query, args...).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &booking, nil
}

func (r *bookingRepository) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Attendees", orderByPosition).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) ListByStatus(ctx context.Context, status models.BookingStatus, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Attendees", orderByPosition).
		Where("status = ?", status).
		Order("updated_at ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("list bookings by status: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) Transition(ctx context.Context, id string, from, to models.BookingStatus, changes BookingChanges) error {
	updates := map[string]any{"status": to}
	if changes.ClearAttempt {
		updates["payment_status"] = models.PaymentNotRequired
		updates["payment_reference"] = nil
		updates["reservation_id"] = ""
		updates["failure_reason"] = ""
		updates["payment_deadline"] = nil
	}
	if changes.PaymentStatus != "" {
		updates["payment_status"] = changes.PaymentStatus
	}
	if changes.PaymentReference != nil {
		updates["payment_reference"] = *changes.PaymentReference
	}
	if changes.ReservationID != "" {
		updates["reservation_id"] = changes.ReservationID
	}
	if changes.FailureReason != "" {
		updates["failure_reason"] = changes.FailureReason
	}
	if changes.PaymentDeadline != nil {
		updates["payment_deadline"] = *changes.PaymentDeadline
	}
	if changes.ConfirmedAt != nil {
		updates["confirmed_at"] = *changes.ConfirmedAt
	}
	if changes.CancelledAt != nil {
		updates["cancelled_at"] = *changes.CancelledAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if constraint, ok := uniqueViolation(result.Error); ok && constraint == paymentReferenceIndex {
		return ErrPaymentReferenceUsed
	}
	if result.Error != nil {
		return fmt.Errorf("transition booking %s %s->%s: %w", id, from, to, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("check booking: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStaleTransition
	}
	return nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
