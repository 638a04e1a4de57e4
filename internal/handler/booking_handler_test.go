package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/ledger"
	"github.com/Eursukkul/showpass/internal/middleware"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/service"
	"github.com/Eursukkul/showpass/internal/validator"
)

// --- Mock BookingService ---

type mockBookingService struct {
	submitFn      func(ctx context.Context, caller service.Identity, req service.SubmitRequest) (*service.Result, error)
	confirmFn     func(ctx context.Context, caller service.Identity, bookingID, paymentID string) (*service.Result, error)
	getFn         func(ctx context.Context, caller service.Identity, bookingID string) (*models.Booking, error)
	listFn        func(ctx context.Context, caller service.Identity) ([]models.Booking, error)
	credentialsFn func(ctx context.Context, caller service.Identity, bookingID string) ([]models.Credential, error)
	cancelFn      func(ctx context.Context, caller service.Identity, bookingID string) (*models.Booking, error)
}

func (m *mockBookingService) Submit(ctx context.Context, caller service.Identity, req service.SubmitRequest) (*service.Result, error) {
	return m.submitFn(ctx, caller, req)
}
func (m *mockBookingService) ConfirmPayment(ctx context.Context, caller service.Identity, bookingID, paymentID string) (*service.Result, error) {
	return m.confirmFn(ctx, caller, bookingID, paymentID)
}
func (m *mockBookingService) Get(ctx context.Context, caller service.Identity, bookingID string) (*models.Booking, error) {
	return m.getFn(ctx, caller, bookingID)
}
func (m *mockBookingService) ListForUser(ctx context.Context, caller service.Identity) ([]models.Booking, error) {
	return m.listFn(ctx, caller)
}
func (m *mockBookingService) Credentials(ctx context.Context, caller service.Identity, bookingID string) ([]models.Credential, error) {
	return m.credentialsFn(ctx, caller, bookingID)
}
func (m *mockBookingService) Cancel(ctx context.Context, caller service.Identity, bookingID string) (*models.Booking, error) {
	return m.cancelFn(ctx, caller, bookingID)
}
func (m *mockBookingService) RetryIssuance(ctx context.Context) (int, error) { return 0, nil }
func (m *mockBookingService) ExpireAwaitingPayment(ctx context.Context) (int, error) {
	return 0, nil
}

// newContext builds a context as if RequireCaller had already run.
func newContext(method, target, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(middleware.UserIDHeader, userID)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = middleware.RequireCaller()(func(echo.Context) error { return nil })(c)
	return c, rec
}

func sampleBooking(status models.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:            "bk-1",
		UserID:        "alice",
		EventID:       "ev-1",
		TicketTypeID:  "tt-vip",
		Quantity:      1,
		Status:        status,
		PaymentStatus: models.PaymentPaid,
		Attendees:     []models.Attendee{{ID: "at-1", Name: "Alice", Email: "alice@example.com"}},
		CreatedAt:     time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	return he.Code
}

// --- Tests ---

func TestCreateBooking_Handler_Success(t *testing.T) {
	var got service.SubmitRequest
	var caller service.Identity
	svc := &mockBookingService{
		submitFn: func(ctx context.Context, id service.Identity, req service.SubmitRequest) (*service.Result, error) {
			got, caller = req, id
			return &service.Result{
				Booking:     sampleBooking(models.StatusConfirmed),
				Credentials: []models.Credential{{ID: "cr-1", AttendeeID: "at-1", EventID: "ev-1", Token: "tok", VerificationCode: "ABCDE12345"}},
			}, nil
		},
	}

	body := `{"event_id":"ev-1","ticket_type_id":"tt-vip","quantity":1,"idempotency_key":"k1",
		"attendees":[{"name":"Alice","email":"alice@example.com","phone":"+6612345678"}],
		"payment_confirmation_id":"pay_1"}`
	c, rec := newContext(http.MethodPost, "/api/v1/bookings", body, "alice")

	h := NewBookingHandler(svc)
	err := h.CreateBooking(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", caller.UserID)
	assert.Equal(t, "ev-1", got.EventID)
	assert.Equal(t, "pay_1", got.PaymentConfirmationID)
	require.Len(t, got.Attendees, 1)
	assert.Equal(t, "+6612345678", got.Attendees[0].Phone)

	var resp dto.BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bk-1", resp.ID)
	assert.Equal(t, models.StatusConfirmed, resp.Status)
	require.Len(t, resp.Credentials, 1)
	assert.Equal(t, "ABCDE12345", resp.Credentials[0].VerificationCode)
}

func TestCreateBooking_Handler_IdempotencyKeyHeader(t *testing.T) {
	var got string
	svc := &mockBookingService{
		submitFn: func(ctx context.Context, id service.Identity, req service.SubmitRequest) (*service.Result, error) {
			got = req.IdempotencyKey
			return &service.Result{Booking: sampleBooking(models.StatusConfirmed), Replayed: true}, nil
		},
	}

	c, rec := newContext(http.MethodPost, "/api/v1/bookings", `{"event_id":"ev-1"}`, "alice")
	c.Request().Header.Set(IdempotencyKeyHeader, "from-header")

	require.NoError(t, NewBookingHandler(svc).CreateBooking(c))
	assert.Equal(t, "from-header", got)
	assert.Equal(t, http.StatusOK, rec.Code, "replays answer 200")
}

func TestCreateBooking_Handler_IssuingIsAccepted(t *testing.T) {
	svc := &mockBookingService{
		submitFn: func(ctx context.Context, id service.Identity, req service.SubmitRequest) (*service.Result, error) {
			return &service.Result{Booking: sampleBooking(models.StatusIssuing)}, nil
		},
	}

	c, rec := newContext(http.MethodPost, "/api/v1/bookings", `{"idempotency_key":"k"}`, "alice")

	require.NoError(t, NewBookingHandler(svc).CreateBooking(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreateBooking_Handler_InvalidBody(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/api/v1/bookings", `{"quantity":"two"`, "alice")

	err := NewBookingHandler(nil).CreateBooking(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestCreateBooking_Handler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", validator.ValidationErrors{{Field: "attendees[0].email", Message: "must be a valid email address"}}, http.StatusUnprocessableEntity},
		{"insufficient inventory", &ledger.InsufficientInventoryError{TicketTypeID: "tt-vip", Requested: 3, Remaining: 1}, http.StatusConflict},
		{"idempotency conflict", service.ErrIdempotencyConflict, http.StatusConflict},
		{"payment reference used", service.ErrPaymentReferenceUsed, http.StatusConflict},
		{"payment failed", service.ErrPaymentFailed, http.StatusPaymentRequired},
		{"payment timeout", service.ErrPaymentTimeout, http.StatusGatewayTimeout},
		{"event not found", service.ErrEventNotFound, http.StatusNotFound},
		{"ticket type not found", service.ErrTicketTypeNotFound, http.StatusNotFound},
		{"booking closed", service.ErrBookingClosed, http.StatusBadRequest},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized},
		{"wrapped internal", fmt.Errorf("create booking: %w", assert.AnError), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockBookingService{
				submitFn: func(ctx context.Context, id service.Identity, req service.SubmitRequest) (*service.Result, error) {
					return nil, tc.err
				},
			}
			c, _ := newContext(http.MethodPost, "/api/v1/bookings", `{"idempotency_key":"k"}`, "alice")

			err := NewBookingHandler(svc).CreateBooking(c)
			assert.Equal(t, tc.code, httpCode(t, err))
		})
	}
}

func TestCreateBooking_Handler_InsufficientInventoryBody(t *testing.T) {
	svc := &mockBookingService{
		submitFn: func(ctx context.Context, id service.Identity, req service.SubmitRequest) (*service.Result, error) {
			return nil, &ledger.InsufficientInventoryError{TicketTypeID: "tt-vip", Requested: 3, Remaining: 1}
		},
	}
	c, rec := newContext(http.MethodPost, "/api/v1/bookings", `{"idempotency_key":"k"}`, "alice")

	middleware.ErrorHandler(NewBookingHandler(svc).CreateBooking(c), c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp dto.InsufficientInventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Remaining)
}

func TestConfirmPayment_Handler(t *testing.T) {
	var gotID, gotPayment string
	svc := &mockBookingService{
		confirmFn: func(ctx context.Context, id service.Identity, bookingID, paymentID string) (*service.Result, error) {
			gotID, gotPayment = bookingID, paymentID
			return &service.Result{Booking: sampleBooking(models.StatusConfirmed)}, nil
		},
	}

	c, rec := newContext(http.MethodPost, "/api/v1/bookings/bk-1/payment", `{"payment_confirmation_id":"pay_9"}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-1")

	require.NoError(t, NewBookingHandler(svc).ConfirmPayment(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bk-1", gotID)
	assert.Equal(t, "pay_9", gotPayment)
}

func TestConfirmPayment_Handler_PaymentFailedBody(t *testing.T) {
	svc := &mockBookingService{
		confirmFn: func(ctx context.Context, id service.Identity, bookingID, paymentID string) (*service.Result, error) {
			return nil, service.ErrPaymentFailed
		},
	}

	c, rec := newContext(http.MethodPost, "/api/v1/bookings/bk-1/payment", `{"payment_confirmation_id":"pay_9"}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-1")

	middleware.ErrorHandler(NewBookingHandler(svc).ConfirmPayment(c), c)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "safe to retry")
	assert.NotContains(t, resp.Message, "charge")
}

func TestConfirmPayment_Handler_NotAwaiting(t *testing.T) {
	svc := &mockBookingService{
		confirmFn: func(ctx context.Context, id service.Identity, bookingID, paymentID string) (*service.Result, error) {
			return nil, service.ErrNotAwaitingPayment
		},
	}

	c, _ := newContext(http.MethodPost, "/api/v1/bookings/bk-1/payment", `{"payment_confirmation_id":"pay_9"}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-1")

	err := NewBookingHandler(svc).ConfirmPayment(c)
	assert.Equal(t, http.StatusConflict, httpCode(t, err))
}

func TestGetBooking_Handler_Success(t *testing.T) {
	svc := &mockBookingService{
		getFn: func(ctx context.Context, id service.Identity, bookingID string) (*models.Booking, error) {
			return sampleBooking(models.StatusConfirmed), nil
		},
	}

	c, rec := newContext(http.MethodGet, "/api/v1/bookings/bk-1", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-1")

	require.NoError(t, NewBookingHandler(svc).GetBooking(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBooking_Handler_Errors(t *testing.T) {
	for err, code := range map[error]int{
		service.ErrBookingNotFound: http.StatusNotFound,
		service.ErrForbidden:       http.StatusForbidden,
	} {
		svc := &mockBookingService{
			getFn: func(ctx context.Context, id service.Identity, bookingID string) (*models.Booking, error) {
				return nil, err
			},
		}
		c, _ := newContext(http.MethodGet, "/api/v1/bookings/bk-1", "", "mallory")
		c.SetParamNames("id")
		c.SetParamValues("bk-1")

		assert.Equal(t, code, httpCode(t, NewBookingHandler(svc).GetBooking(c)))
	}
}

func TestListBookings_Handler_Success(t *testing.T) {
	svc := &mockBookingService{
		listFn: func(ctx context.Context, id service.Identity) ([]models.Booking, error) {
			return []models.Booking{
				*sampleBooking(models.StatusConfirmed),
				*sampleBooking(models.StatusAwaitingPayment),
			}, nil
		},
	}

	c, rec := newContext(http.MethodGet, "/api/v1/bookings", "", "alice")

	require.NoError(t, NewBookingHandler(svc).ListBookings(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp []dto.BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestListCredentials_Handler(t *testing.T) {
	svc := &mockBookingService{
		credentialsFn: func(ctx context.Context, id service.Identity, bookingID string) ([]models.Credential, error) {
			return []models.Credential{{ID: "cr-1", BookingID: bookingID, EventID: "ev-1", Token: "tok", VerificationCode: "ABCDE12345"}}, nil
		},
	}

	c, rec := newContext(http.MethodGet, "/api/v1/bookings/bk-1/credentials", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-1")

	require.NoError(t, NewBookingHandler(svc).ListCredentials(c))
	var resp []dto.CredentialResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "tok", resp[0].Token)
}

func TestCancelBooking_Handler(t *testing.T) {
	svc := &mockBookingService{
		cancelFn: func(ctx context.Context, id service.Identity, bookingID string) (*models.Booking, error) {
			if bookingID == "bk-2" {
				return nil, service.ErrNotCancellable
			}
			return sampleBooking(models.StatusCancelled), nil
		},
	}

	c, rec := newContext(http.MethodDelete, "/api/v1/bookings/bk-1", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-1")
	require.NoError(t, NewBookingHandler(svc).CancelBooking(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp dto.BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusCancelled, resp.Status)

	c, _ = newContext(http.MethodDelete, "/api/v1/bookings/bk-2", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("bk-2")
	assert.Equal(t, http.StatusConflict, httpCode(t, NewBookingHandler(svc).CancelBooking(c)))
}

func TestBookingRoutes_RequireCaller(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	NewBookingHandler(&mockBookingService{}).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
