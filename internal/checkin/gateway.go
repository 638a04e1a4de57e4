// Package checkin admits attendees at the gate. Each credential admits
// once; the first successful scan wins and later scans are told when
// that was.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Eursukkul/showpass/internal/clock"
	"github.com/Eursukkul/showpass/internal/credential"
	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrEventMismatch     = errors.New("credential is for a different event")
)

type AlreadyCheckedInError struct {
	CheckedInAt time.Time
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("already checked in at %s", e.CheckedInAt.Format(time.RFC3339))
}

// Gate is the scanning point. An empty EventID accepts any event.
type Gate struct {
	EventID string
}

type Admission struct {
	CredentialID string    `json:"credential_id"`
	BookingID    string    `json:"booking_id"`
	AttendeeID   string    `json:"attendee_id,omitempty"`
	EventID      string    `json:"event_id"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

type Store interface {
	FindByToken(ctx context.Context, token string) (*models.Credential, error)
	FindByCode(ctx context.Context, eventID, code string) (*models.Credential, error)
	Consume(ctx context.Context, id string, at time.Time) (*models.Credential, bool, error)
}

type Verifier interface {
	Verify(token string) (*credential.Claims, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Gateway struct {
	store     Store
	verifier  Verifier
	clock     clock.Clock
	publisher Publisher
}

// NewGateway builds a gateway. publisher may be nil.
func NewGateway(store Store, verifier Verifier, clk clock.Clock, publisher Publisher) *Gateway {
	return &Gateway{store: store, verifier: verifier, clock: clk, publisher: publisher}
}

func (g *Gateway) CheckIn(ctx context.Context, gate Gate, payload []byte) (*Admission, error) {
	p, err := ParsePresentation(payload)
	if err != nil {
		return nil, err
	}

	cred, err := g.resolve(ctx, gate, p)
	if err != nil {
		return nil, err
	}
	if cred.Revoked {
		return nil, ErrInvalidCredential
	}
	if gate.EventID != "" && cred.EventID != gate.EventID {
		return nil, ErrEventMismatch
	}

	consumed, ok, err := g.store.Consume(ctx, cred.ID, g.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("consume credential: %w", err)
	}
	if !ok {
		at := time.Time{}
		if consumed.ConsumedAt != nil {
			at = *consumed.ConsumedAt
		}
		return nil, &AlreadyCheckedInError{CheckedInAt: at}
	}

	admission := &Admission{
		CredentialID: consumed.ID,
		BookingID:    consumed.BookingID,
		AttendeeID:   consumed.AttendeeID,
		EventID:      consumed.EventID,
		CheckedInAt:  *consumed.ConsumedAt,
	}

	logrus.WithFields(logrus.Fields{
		"credential_id": admission.CredentialID,
		"booking_id":    admission.BookingID,
		"event_id":      admission.EventID,
		"shape":         p.Shape.String(),
	}).Info("Checked in")

	g.publish(ctx, admission)
	return admission, nil
}

func (g *Gateway) resolve(ctx context.Context, gate Gate, p Presentation) (*models.Credential, error) {
	if p.Shape != ShapeOpaque {
		if gate.EventID != "" && p.EventID != gate.EventID {
			return nil, ErrEventMismatch
		}
		return g.lookup(g.store.FindByCode(ctx, p.EventID, credential.NormalizeCode(p.Code)))
	}

	if _, err := g.verifier.Verify(p.Value); err == nil {
		return g.lookup(g.store.FindByToken(ctx, p.Value))
	}

	// printed tickets from before signed tokens carry only the code
	if gate.EventID == "" {
		return nil, ErrInvalidCredential
	}
	return g.lookup(g.store.FindByCode(ctx, gate.EventID, credential.NormalizeCode(p.Value)))
}

func (g *Gateway) lookup(cred *models.Credential, err error) (*models.Credential, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return cred, nil
}

func (g *Gateway) publish(ctx context.Context, a *Admission) {
	if g.publisher == nil {
		return
	}
	msg := dto.CheckInMessage{
		CredentialID: a.CredentialID,
		BookingID:    a.BookingID,
		AttendeeID:   a.AttendeeID,
		EventID:      a.EventID,
		CheckedInAt:  a.CheckedInAt,
	}
	if err := g.publisher.Publish(ctx, dto.RoutingTicketCheckedIn, msg); err != nil {
		logrus.WithError(err).WithField("credential_id", a.CredentialID).Warn("Failed to publish check-in")
	}
}
