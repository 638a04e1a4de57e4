package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Eursukkul/showpass/internal/checkin"
	"github.com/Eursukkul/showpass/internal/dto"
)

const maxPresentationBytes = 16 << 10

type CheckInGateway interface {
	CheckIn(ctx context.Context, gate checkin.Gate, payload []byte) (*checkin.Admission, error)
}

type CheckInHandler struct {
	gateway CheckInGateway
}

func NewCheckInHandler(gateway CheckInGateway) *CheckInHandler {
	return &CheckInHandler{gateway: gateway}
}

func (h *CheckInHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/check-in", h.CheckIn)
	e.POST("/api/v1/events/:id/check-in", h.CheckIn)
}

// CheckIn accepts the scanned payload as the raw request body: either the
// QR text itself or one of the JSON shapes printed on older tickets.
func (h *CheckInHandler) CheckIn(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPresentationBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
	}

	admission, err := h.gateway.CheckIn(c.Request().Context(), checkin.Gate{EventID: c.Param("id")}, payload)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, dto.CheckInResponse{
		CredentialID: admission.CredentialID,
		BookingID:    admission.BookingID,
		AttendeeID:   admission.AttendeeID,
		EventID:      admission.EventID,
		CheckedInAt:  admission.CheckedInAt,
	})
}
