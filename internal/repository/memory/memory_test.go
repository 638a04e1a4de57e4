package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/repository"
)

func seed(t *testing.T, c *Catalog, capacity int) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:   "ev-1",
		Name: "Afrobeat Live",
		TicketTypes: []models.TicketType{
			{ID: "tt-ga", Name: "General", UnitPrice: 5000, Capacity: capacity},
		},
	}
	require.NoError(t, c.Upsert(context.Background(), event))
	return event
}

func TestCatalog_UpsertKeepsSold(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	inv := NewInventory(c)
	event := seed(t, c, 5)

	require.NoError(t, inv.Reserve(ctx, models.Reservation{ID: "r1", TicketTypeID: "tt-ga", Quantity: 3, Status: models.ReservationPending}))

	event.TicketTypes[0].Capacity = 2
	event.TicketTypes[0].Name = "Renamed"
	assert.ErrorIs(t, c.Upsert(ctx, event), repository.ErrCapacityBelowSold)

	tt, err := c.FindTicketType(ctx, "tt-ga")
	require.NoError(t, err)
	assert.Equal(t, "General", tt.Name, "rejected update leaves the ticket type untouched")
	assert.Equal(t, 5, tt.Capacity)

	event.TicketTypes[0].Capacity = 8
	event.TicketTypes[0].Sold = 0
	require.NoError(t, c.Upsert(ctx, event))

	found, err := c.FindByID(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, found.TicketTypes, 1)
	assert.Equal(t, 3, found.TicketTypes[0].Sold, "sold is owned by the ledger, not the catalog feed")
	assert.Equal(t, 8, found.TicketTypes[0].Capacity)
}

func TestCatalog_UpsertRacingReserveKeepsSoldWithinCapacity(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 200; round++ {
		c := NewCatalog()
		inv := NewInventory(c)
		event := seed(t, c, 10)
		require.NoError(t, inv.Reserve(ctx, models.Reservation{ID: "held", TicketTypeID: "tt-ga", Quantity: 5, Status: models.ReservationPending}))

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_ = inv.Reserve(ctx, models.Reservation{ID: fmt.Sprintf("r%d", i), TicketTypeID: "tt-ga", Quantity: 1, Status: models.ReservationPending})
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			lowered := *event
			lowered.TicketTypes = []models.TicketType{{ID: "tt-ga", Name: "General", UnitPrice: 5000, Capacity: 5}}
			_ = c.Upsert(ctx, &lowered)
		}()
		close(start)
		wg.Wait()

		tt, err := c.FindTicketType(ctx, "tt-ga")
		require.NoError(t, err)
		require.LessOrEqual(t, tt.Sold, tt.Capacity, "round %d", round)
	}
}

func TestInventory_ReserveRejectsOverCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()
	inv := NewInventory(c)
	seed(t, c, 2)

	err := inv.Reserve(ctx, models.Reservation{ID: "r1", TicketTypeID: "tt-ga", Quantity: 3, Status: models.ReservationPending})
	assert.Error(t, err)

	_, ok := inv.Reservation("r1")
	assert.False(t, ok)
}

func TestCredentials_ConsumeAndRevoke(t *testing.T) {
	ctx := context.Background()
	s := NewCredentials()
	cred := models.Credential{ID: "cr-1", BookingID: "bk-1", AttendeeID: "at-1", EventID: "ev-1", Token: "tok", VerificationCode: "ABCDE12345"}
	require.NoError(t, s.SaveAll(ctx, []models.Credential{cred}))

	dup := cred
	dup.ID = "cr-2"
	require.NoError(t, s.SaveAll(ctx, []models.Credential{dup}))
	all, err := s.FindByBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, all, 1, "a seat keeps its first credential")

	at := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	got, ok, err := s.Consume(ctx, "cr-1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, *got.ConsumedAt)

	got, ok, err = s.Consume(ctx, "cr-1", at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, at, *got.ConsumedAt, "second scan reports the original time")

	require.NoError(t, s.RevokeByBooking(ctx, "bk-1"))
	found, err := s.FindByCode(ctx, "ev-1", "ABCDE12345")
	require.NoError(t, err)
	assert.True(t, found.Revoked)

	_, err = s.FindByToken(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookings_TransitionCAS(t *testing.T) {
	ctx := context.Background()
	s := NewBookings()
	b := &models.Booking{ID: "bk-1", UserID: "alice", IdempotencyKey: "k1", Status: models.StatusDraft}
	require.NoError(t, s.Create(ctx, b))
	assert.ErrorIs(t, s.Create(ctx, &models.Booking{ID: "bk-2", UserID: "alice", IdempotencyKey: "k1"}), repository.ErrDuplicateIdempotencyKey)

	require.NoError(t, s.Transition(ctx, "bk-1", models.StatusDraft, models.StatusValidating, repository.BookingChanges{}))
	assert.ErrorIs(t, s.Transition(ctx, "bk-1", models.StatusDraft, models.StatusValidating, repository.BookingChanges{}), repository.ErrStaleTransition)
	assert.ErrorIs(t, s.Transition(ctx, "nope", models.StatusDraft, models.StatusValidating, repository.BookingChanges{}), repository.ErrNotFound)

	got, err := s.FindByIdempotencyKey(ctx, "alice", "k1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidating, got.Status)

	got.Status = models.StatusCancelled
	again, err := s.FindByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidating, again.Status, "callers get copies")
}
