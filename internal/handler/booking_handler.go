package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/middleware"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/service"
)

// IdempotencyKeyHeader may carry the key instead of the request body.
const IdempotencyKeyHeader = "Idempotency-Key"

type BookingHandler struct {
	svc service.BookingService
}

func NewBookingHandler(svc service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

func (h *BookingHandler) RegisterRoutes(e *echo.Echo) {
	bookings := e.Group("/api/v1/bookings", middleware.RequireCaller())
	bookings.POST("", h.CreateBooking)
	bookings.GET("", h.ListBookings)
	bookings.GET("/:id", h.GetBooking)
	bookings.POST("/:id/payment", h.ConfirmPayment)
	bookings.GET("/:id/credentials", h.ListCredentials)
	bookings.DELETE("/:id", h.CancelBooking)
}

func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get(IdempotencyKeyHeader)
	}

	submit := service.SubmitRequest{
		EventID:               req.EventID,
		TicketTypeID:          req.TicketTypeID,
		Quantity:              req.Quantity,
		IdempotencyKey:        req.IdempotencyKey,
		PaymentConfirmationID: req.PaymentConfirmationID,
		CredentialMode:        models.CredentialMode(strings.TrimSpace(req.CredentialMode)),
	}
	for _, a := range req.Attendees {
		submit.Attendees = append(submit.Attendees, service.AttendeeInput(a))
	}

	res, err := h.svc.Submit(c.Request().Context(), middleware.Caller(c), submit)
	if err != nil {
		return toHTTPError(err)
	}

	status := http.StatusCreated
	switch {
	case res.Replayed:
		status = http.StatusOK
	case res.Booking.Status == models.StatusIssuing:
		status = http.StatusAccepted
	}
	return c.JSON(status, dto.ToBookingResponse(res.Booking, res.Credentials))
}

func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	var req dto.ConfirmPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := h.svc.ConfirmPayment(c.Request().Context(), middleware.Caller(c), c.Param("id"), req.PaymentConfirmationID)
	if err != nil {
		return toHTTPError(err)
	}

	status := http.StatusOK
	if res.Booking.Status == models.StatusIssuing {
		status = http.StatusAccepted
	}
	return c.JSON(status, dto.ToBookingResponse(res.Booking, res.Credentials))
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	booking, err := h.svc.Get(c.Request().Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking, nil))
}

func (h *BookingHandler) ListBookings(c echo.Context) error {
	bookings, err := h.svc.ListForUser(c.Request().Context(), middleware.Caller(c))
	if err != nil {
		return toHTTPError(err)
	}

	resp := make([]dto.BookingResponse, len(bookings))
	for i := range bookings {
		resp[i] = dto.ToBookingResponse(&bookings[i], nil)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) ListCredentials(c echo.Context) error {
	creds, err := h.svc.Credentials(c.Request().Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToCredentialResponses(creds))
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	booking, err := h.svc.Cancel(c.Request().Context(), middleware.Caller(c), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking, nil))
}
