package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultInterval = 30 * time.Second

type ReservationSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type BookingMaintainer interface {
	ExpireAwaitingPayment(ctx context.Context) (int, error)
	RetryIssuance(ctx context.Context) (int, error)
}

// Sweeper periodically returns abandoned holds to inventory and finishes
// bookings whose credential issuance failed.
type Sweeper struct {
	ledger   ReservationSweeper
	bookings BookingMaintainer
	interval time.Duration
}

func NewSweeper(ledger ReservationSweeper, bookings BookingMaintainer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{ledger: ledger, bookings: bookings, interval: interval}
}

// Run ticks until ctx is done. A failing pass is logged and retried on the
// next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	logrus.WithField("interval", s.interval).Info("sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			logrus.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single maintenance pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	// Bookings first, so their reservations are released with a reason
	// before the ledger sweep reclaims whatever is left.
	if n, err := s.bookings.ExpireAwaitingPayment(ctx); err != nil {
		logrus.WithError(err).Error("expire awaiting payment")
	} else if n > 0 {
		logrus.WithField("count", n).Info("expired unpaid bookings")
	}

	if n, err := s.ledger.Sweep(ctx); err != nil {
		logrus.WithError(err).Error("sweep reservations")
	} else if n > 0 {
		logrus.WithField("count", n).Info("released expired reservations")
	}

	if n, err := s.bookings.RetryIssuance(ctx); err != nil {
		logrus.WithError(err).Error("retry issuance")
	} else if n > 0 {
		logrus.WithField("count", n).Info("issued credentials for stuck bookings")
	}
}
