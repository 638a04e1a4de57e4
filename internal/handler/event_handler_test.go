package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/service"
)

type mockCatalogService struct {
	registerFn  func(ctx context.Context, event *models.Event) error
	inventoryFn func(ctx context.Context, eventID string) (*models.Event, error)
}

func (m *mockCatalogService) Register(ctx context.Context, event *models.Event) error {
	return m.registerFn(ctx, event)
}
func (m *mockCatalogService) Inventory(ctx context.Context, eventID string) (*models.Event, error) {
	return m.inventoryFn(ctx, eventID)
}

func TestCreateEvent_Handler_Success(t *testing.T) {
	var registered *models.Event
	svc := &mockCatalogService{
		registerFn: func(ctx context.Context, event *models.Event) error {
			registered = event
			event.ID = "ev-1"
			return nil
		},
	}

	e := echo.New()
	body := `{"name":"Jazz Night","venue":"Hall A","starts_at":"2025-06-01T18:00:00Z","ends_at":"2025-06-01T23:00:00Z",
		"ticket_types":[{"id":"tt-ga","name":"General","unit_price":150000,"capacity":200}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewEventHandler(svc)
	require.NoError(t, h.CreateEvent(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, registered)
	require.Len(t, registered.TicketTypes, 1)
	assert.Equal(t, int64(150000), registered.TicketTypes[0].UnitPrice)

	var resp dto.InventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ev-1", resp.EventID)
	assert.Equal(t, 200, resp.Remaining)
}

func TestCreateEvent_Handler_Errors(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"invalid":             {service.ErrInvalidEvent, http.StatusBadRequest},
		"capacity below sold": {service.ErrCapacityBelowSold, http.StatusConflict},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &mockCatalogService{
				registerFn: func(ctx context.Context, event *models.Event) error { return tc.err },
			}

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"name":"x"}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := NewEventHandler(svc).CreateEvent(c)
			assert.Equal(t, tc.code, httpCode(t, err))
		})
	}
}

func TestGetInventory_Handler(t *testing.T) {
	svc := &mockCatalogService{
		inventoryFn: func(ctx context.Context, eventID string) (*models.Event, error) {
			if eventID != "ev-1" {
				return nil, service.ErrEventNotFound
			}
			return &models.Event{
				ID:       "ev-1",
				Name:     "Jazz Night",
				StartsAt: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
				EndsAt:   time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC),
				TicketTypes: []models.TicketType{
					{ID: "tt-ga", Name: "General", Capacity: 200, Sold: 150},
					{ID: "tt-vip", Name: "VIP", Capacity: 20, Sold: 20},
				},
			}, nil
		},
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/ev-1/inventory", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("ev-1")

	require.NoError(t, NewEventHandler(svc).GetInventory(c))

	var resp dto.InventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 220, resp.Capacity)
	assert.Equal(t, 170, resp.Sold)
	assert.Equal(t, 50, resp.Remaining)
	require.Len(t, resp.TicketTypes, 2)
	assert.Equal(t, 0, resp.TicketTypes[1].Remaining)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/events/nope/inventory", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	assert.Equal(t, http.StatusNotFound, httpCode(t, NewEventHandler(svc).GetInventory(c)))
}
