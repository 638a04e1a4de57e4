package checkin

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eursukkul/showpass/internal/clock"
	"github.com/Eursukkul/showpass/internal/credential"
	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

type fixture struct {
	gateway   *Gateway
	store     *memory.Credentials
	clock     *clock.Fake
	publisher *recordingPublisher
	creds     []models.Credential
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	_, private, err := credential.GenerateKeypair()
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC))
	store := memory.NewCredentials()
	issuer := credential.NewIssuer(private, store, clk)

	creds, err := issuer.Issue(context.Background(), &models.Booking{
		ID:             "bk-1",
		EventID:        "ev-1",
		Quantity:       2,
		CredentialMode: models.CredentialPerAttendee,
		Attendees: []models.Attendee{
			{ID: "at-1", Name: "Ada"},
			{ID: "at-2", Name: "Bayo"},
		},
	})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	return &fixture{
		gateway:   NewGateway(store, issuer, clk, pub),
		store:     store,
		clock:     clk,
		publisher: pub,
		creds:     creds,
	}
}

func TestCheckIn_TokenSingleUse(t *testing.T) {
	f := newFixture(t)
	first := f.clock.Now()

	admission, err := f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, []byte(f.creds[0].Token))
	require.NoError(t, err)
	assert.Equal(t, f.creds[0].ID, admission.CredentialID)
	assert.Equal(t, "bk-1", admission.BookingID)
	assert.Equal(t, first, admission.CheckedInAt)

	f.clock.Advance(10 * time.Minute)
	_, err = f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, []byte(f.creds[0].Token))
	var already *AlreadyCheckedInError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, first, already.CheckedInAt)

	assert.Equal(t, []string{dto.RoutingTicketCheckedIn}, f.publisher.keys)
}

func TestCheckIn_OtherAttendeeUnaffected(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.CheckIn(context.Background(), Gate{}, []byte(f.creds[0].Token))
	require.NoError(t, err)
	_, err = f.gateway.CheckIn(context.Background(), Gate{}, []byte(f.creds[1].Token))
	require.NoError(t, err)
}

func TestCheckIn_StructuredShapes(t *testing.T) {
	f := newFixture(t)
	code := f.creds[0].VerificationCode

	body, _ := json.Marshal(map[string]string{"freeEventId": "ev-1", "code": code})
	admission, err := f.gateway.CheckIn(context.Background(), Gate{}, body)
	require.NoError(t, err)
	assert.Equal(t, f.creds[0].ID, admission.CredentialID)

	body, _ = json.Marshal(map[string]string{"eventId": "ev-1", "verificationCode": f.creds[1].VerificationCode})
	admission, err = f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, body)
	require.NoError(t, err)
	assert.Equal(t, f.creds[1].ID, admission.CredentialID)
}

func TestCheckIn_CodeIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	body, _ := json.Marshal(map[string]string{"event_id": "ev-1", "verification_code": " " + strings.ToLower(f.creds[0].VerificationCode)})

	_, err := f.gateway.CheckIn(context.Background(), Gate{}, body)
	require.NoError(t, err)
}

func TestCheckIn_BareCodeFallback(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.CheckIn(context.Background(), Gate{}, []byte(f.creds[0].VerificationCode))
	assert.ErrorIs(t, err, ErrInvalidCredential, "bare code needs a gate event")

	admission, err := f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, []byte(`"`+f.creds[0].VerificationCode+`"`))
	require.NoError(t, err)
	assert.Equal(t, f.creds[0].ID, admission.CredentialID)
}

func TestCheckIn_EventMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-2"}, []byte(f.creds[0].Token))
	assert.ErrorIs(t, err, ErrEventMismatch)

	body, _ := json.Marshal(map[string]string{"event_id": "ev-1", "verification_code": f.creds[0].VerificationCode})
	_, err = f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-2"}, body)
	assert.ErrorIs(t, err, ErrEventMismatch)

	// a mismatch must not burn the credential
	_, err = f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, []byte(f.creds[0].Token))
	assert.NoError(t, err)
}

func TestCheckIn_Invalid(t *testing.T) {
	f := newFixture(t)

	for _, payload := range []string{"garbage", `{"event_id":"ev-1","verification_code":"0000000000"}`, `{"foo":"bar"}`} {
		_, err := f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, []byte(payload))
		assert.ErrorIs(t, err, ErrInvalidCredential, "payload %q", payload)
	}
}

func TestCheckIn_Revoked(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.RevokeByBooking(context.Background(), "bk-1"))

	_, err := f.gateway.CheckIn(context.Background(), Gate{}, []byte(f.creds[0].Token))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestCheckIn_ConcurrentScansAdmitOnce(t *testing.T) {
	f := newFixture(t)
	const scanners = 32

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gateway.CheckIn(context.Background(), Gate{EventID: "ev-1"}, []byte(f.creds[0].Token))
			var already *AlreadyCheckedInError
			switch {
			case err == nil:
				admitted.Add(1)
			case assert.ErrorAs(t, err, &already):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(scanners-1), rejected.Load())
}
