// Package credential mints and verifies entry credentials.
//
// A token is the deterministic CBOR encoding of its Claims followed by a
// 64-byte Ed25519 signature, base64url encoded. Both steps are
// deterministic, so issuing twice for the same seat yields the same
// token. The verification code is a short keyed hash of the same claims
// for people typing a ticket number at the gate.
package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/Eursukkul/showpass/internal/clock"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/pkg/codec"
)

const (
	CodeLength    = 10
	signatureSize = ed25519.SignatureSize

	codeKeyContext = "showpass 2024 credential verification code v1"
)

type Kind string

const (
	KindAttendee Kind = "attendee"
	KindBooking  Kind = "booking"
)

var (
	ErrMalformedToken   = errors.New("credential: malformed token")
	ErrInvalidSignature = errors.New("credential: invalid signature")
	ErrIncomplete       = errors.New("credential: not every seat received a credential")
)

// crockford is Crockford's base32 alphabet: no I, L, O or U.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// Claims is the signed payload of a credential token.
type Claims struct {
	BookingID  string `cbor:"1,keyasint"`
	AttendeeID string `cbor:"2,keyasint,omitempty"`
	EventID    string `cbor:"3,keyasint"`
	Kind       Kind   `cbor:"4,keyasint"`
}

// Store is the part of the credential repository the issuer writes to.
type Store interface {
	SaveAll(ctx context.Context, creds []models.Credential) error
	FindByBooking(ctx context.Context, bookingID string) ([]models.Credential, error)
}

type Issuer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	codeKey [32]byte
	store   Store
	clock   clock.Clock
}

func NewIssuer(private ed25519.PrivateKey, store Store, clk clock.Clock) *Issuer {
	i := &Issuer{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
		store:   store,
		clock:   clk,
	}
	blake3.DeriveKey(codeKeyContext, private.Seed(), i.codeKey[:])
	return i
}

func (i *Issuer) PublicKey() ed25519.PublicKey {
	return i.public
}

// Issue creates the credentials of a booking: one per attendee, or a
// single booking-level credential in the legacy mode. Seats that already
// hold a credential keep it, so Issue is safe to retry.
func (i *Issuer) Issue(ctx context.Context, booking *models.Booking) ([]models.Credential, error) {
	claims := seatClaims(booking)
	now := i.clock.Now()

	creds := make([]models.Credential, 0, len(claims))
	for _, c := range claims {
		token, err := i.Mint(c)
		if err != nil {
			return nil, err
		}
		creds = append(creds, models.Credential{
			ID:               uuid.NewString(),
			BookingID:        c.BookingID,
			AttendeeID:       c.AttendeeID,
			EventID:          c.EventID,
			Token:            token,
			VerificationCode: i.Code(c),
			IssuedAt:         now,
		})
	}

	if err := i.store.SaveAll(ctx, creds); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	stored, err := i.store.FindByBooking(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if len(stored) != len(claims) {
		logrus.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"want":       len(claims),
			"got":        len(stored),
		}).Error("Credential issuance incomplete")
		return nil, ErrIncomplete
	}
	return stored, nil
}

func seatClaims(booking *models.Booking) []Claims {
	if booking.CredentialMode == models.CredentialPerBooking {
		return []Claims{{BookingID: booking.ID, EventID: booking.EventID, Kind: KindBooking}}
	}
	out := make([]Claims, 0, len(booking.Attendees))
	for _, a := range booking.Attendees {
		out = append(out, Claims{
			BookingID:  booking.ID,
			AttendeeID: a.ID,
			EventID:    booking.EventID,
			Kind:       KindAttendee,
		})
	}
	return out
}

// Mint signs claims and returns the token text.
func (i *Issuer) Mint(c Claims) (string, error) {
	payload, err := codec.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("credential: encoding claims: %w", err)
	}
	raw := make([]byte, 0, len(payload)+signatureSize)
	raw = append(raw, payload...)
	raw = append(raw, ed25519.Sign(i.private, payload)...)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Verify checks a token's signature and returns its claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) <= signatureSize {
		return nil, ErrMalformedToken
	}

	split := len(raw) - signatureSize
	payload, signature := raw[:split], raw[split:]
	if !ed25519.Verify(i.public, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var c Claims
	if err := codec.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if c.BookingID == "" || c.EventID == "" {
		return nil, ErrMalformedToken
	}
	return &c, nil
}

// Code derives the verification code of the claims.
func (i *Issuer) Code(c Claims) string {
	hasher, err := blake3.NewKeyed(i.codeKey[:])
	if err != nil {
		panic("credential: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	for _, part := range []string{c.BookingID, c.AttendeeID, c.EventID, string(c.Kind)} {
		hasher.Write([]byte(part))
		hasher.Write([]byte{0})
	}
	sum := hasher.Sum(nil)
	return crockford.EncodeToString(sum[:8])[:CodeLength]
}

// NormalizeCode canonicalizes a typed code: case, separators and the
// letters Crockford folds into digits.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ':
			return -1
		case 'O':
			return '0'
		case 'I', 'L':
			return '1'
		}
		return r
	}, code)
}
