package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
)

type Credentials struct {
	mu      sync.RWMutex
	byID    map[string]*models.Credential
	bySeat  map[string]string
	byCode  map[string]string
	byToken map[string]string
}

var _ repository.CredentialRepository = (*Credentials)(nil)

func NewCredentials() *Credentials {
	return &Credentials{
		byID:    make(map[string]*models.Credential),
		bySeat:  make(map[string]string),
		byCode:  make(map[string]string),
		byToken: make(map[string]string),
	}
}

func pair(a, b string) string {
	return a + "\x00" + b
}

func (s *Credentials) SaveAll(_ context.Context, creds []models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range creds {
		if _, ok := s.bySeat[pair(cred.BookingID, cred.AttendeeID)]; ok {
			continue
		}
		if _, ok := s.byCode[pair(cred.EventID, cred.VerificationCode)]; ok {
			continue
		}
		if _, ok := s.byToken[cred.Token]; ok {
			continue
		}
		c := cred
		s.byID[c.ID] = &c
		s.bySeat[pair(c.BookingID, c.AttendeeID)] = c.ID
		s.byCode[pair(c.EventID, c.VerificationCode)] = c.ID
		s.byToken[c.Token] = c.ID
	}
	return nil
}

func (s *Credentials) FindByBooking(_ context.Context, bookingID string) ([]models.Credential, error) {
	s.mu.RLock()
	var out []models.Credential
	for _, c := range s.byID {
		if c.BookingID == bookingID {
			out = append(out, cloneCredential(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].AttendeeID < out[j].AttendeeID
	})
	return out, nil
}

func (s *Credentials) FindBySeat(_ context.Context, bookingID, attendeeID string) (*models.Credential, error) {
	return s.lookup(s.bySeat, pair(bookingID, attendeeID))
}

func (s *Credentials) FindByCode(_ context.Context, eventID, code string) (*models.Credential, error) {
	return s.lookup(s.byCode, pair(eventID, code))
}

func (s *Credentials) FindByToken(_ context.Context, token string) (*models.Credential, error) {
	return s.lookup(s.byToken, token)
}

func (s *Credentials) lookup(index map[string]string, key string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneCredential(s.byID[id])
	return &c, nil
}

func (s *Credentials) Consume(_ context.Context, id string, at time.Time) (*models.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if c.Consumed {
		out := cloneCredential(c)
		return &out, false, nil
	}
	c.Consumed = true
	c.ConsumedAt = &at
	out := cloneCredential(c)
	return &out, true, nil
}

func (s *Credentials) RevokeByBooking(_ context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.BookingID == bookingID {
			c.Revoked = true
		}
	}
	return nil
}

func cloneCredential(c *models.Credential) models.Credential {
	out := *c
	out.ConsumedAt = copyTime(c.ConsumedAt)
	return out
}
