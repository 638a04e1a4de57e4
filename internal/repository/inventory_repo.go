package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Eursukkul/showpass/internal/ledger"
	"github.com/Eursukkul/showpass/internal/models"
)

// InventoryRepository is the PostgreSQL ledger store. The reservation
// check-and-increment is a single conditional UPDATE, so the database
// row lock on the ticket type orders concurrent reservations.
type InventoryRepository struct {
	db *gorm.DB
}

var _ ledger.Store = (*InventoryRepository)(nil)

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) Reserve(ctx context.Context, res models.Reservation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.TicketType{}).
			Where("id = ? AND sold + ? <= capacity", res.TicketTypeID, res.Quantity).
			Update("sold", gorm.Expr("sold + ?", res.Quantity))
		if result.Error != nil {
			return fmt.Errorf("increment sold: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			tt, err := findTicketType(tx, res.TicketTypeID)
			if errors.Is(err, ErrNotFound) {
				return ledger.ErrTicketTypeNotFound
			}
			if err != nil {
				return err
			}
			return &ledger.InsufficientInventoryError{
				TicketTypeID: res.TicketTypeID,
				Requested:    res.Quantity,
				Remaining:    tt.Remaining(),
			}
		}

		if err := tx.Create(&res).Error; err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		return nil
	})
}

func (r *InventoryRepository) Commit(ctx context.Context, reservationID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case models.ReservationCommitted:
			return nil
		case models.ReservationPending:
		default:
			return ledger.ErrReservationNotPending
		}
		return tx.Model(res).Update("status", models.ReservationCommitted).Error
	})
}

func (r *InventoryRepository) Release(ctx context.Context, reservationID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case models.ReservationReleased:
			return nil
		case models.ReservationPending:
		default:
			return ledger.ErrReservationNotPending
		}
		return giveBack(tx, res, models.ReservationReleased)
	})
}

func (r *InventoryRepository) Restore(ctx context.Context, reservationID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := lockReservation(tx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case models.ReservationCancelled:
			return nil
		case models.ReservationCommitted:
		default:
			return ledger.ErrReservationNotActive
		}
		return giveBack(tx, res, models.ReservationCancelled)
	})
}

func (r *InventoryRepository) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var out []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.ReservationPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return out, nil
}

func (r *InventoryRepository) FindTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	tt, err := findTicketType(r.db.WithContext(ctx), id)
	if errors.Is(err, ErrNotFound) {
		return nil, ledger.ErrTicketTypeNotFound
	}
	return tt, err
}

func lockReservation(tx *gorm.DB, id string) (*models.Reservation, error) {
	var res models.Reservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrReservationNotFound
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	return &res, nil
}

func giveBack(tx *gorm.DB, res *models.Reservation, status models.ReservationStatus) error {
	if err := tx.Model(res).Update("status", status).Error; err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	err := tx.Model(&models.TicketType{}).
		Where("id = ?", res.TicketTypeID).
		Update("sold", gorm.Expr("sold - ?", res.Quantity)).Error
	if err != nil {
		return fmt.Errorf("decrement sold: %w", err)
	}
	return nil
}
