package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Eursukkul/showpass/internal/checkin"
	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/ledger"
	"github.com/Eursukkul/showpass/internal/service"
	"github.com/Eursukkul/showpass/internal/validator"
)

// toHTTPError maps domain errors onto status codes and response bodies.
func toHTTPError(err error) error {
	var verrs validator.ValidationErrors
	var insufficient *ledger.InsufficientInventoryError
	var already *checkin.AlreadyCheckedInError

	switch {
	case errors.As(err, &verrs):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, dto.ValidationErrorResponse{
			Message: "validation failed",
			Errors:  verrs,
		})
	case errors.As(err, &insufficient):
		return echo.NewHTTPError(http.StatusConflict, dto.InsufficientInventoryResponse{
			Message:   insufficient.Error(),
			Remaining: insufficient.Remaining,
		})
	case errors.As(err, &already):
		return echo.NewHTTPError(http.StatusConflict, dto.AlreadyCheckedInResponse{
			Message:     "ticket already checked in",
			CheckedInAt: already.CheckedInAt,
		})

	case errors.Is(err, service.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEventNotFound),
		errors.Is(err, service.ErrTicketTypeNotFound),
		errors.Is(err, service.ErrBookingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrIdempotencyConflict),
		errors.Is(err, service.ErrPaymentReferenceUsed),
		errors.Is(err, service.ErrNotAwaitingPayment),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, service.ErrCapacityBelowSold):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrBookingClosed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	case errors.Is(err, service.ErrPaymentFailed):
		return echo.NewHTTPError(http.StatusPaymentRequired, "payment could not be confirmed and the tickets were released; it is safe to retry")
	case errors.Is(err, service.ErrPaymentTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "payment confirmation timed out, the tickets were released; it is safe to retry")
	case errors.Is(err, service.ErrReservationExpired):
		return echo.NewHTTPError(http.StatusGone, "the reservation expired before payment was confirmed")

	case errors.Is(err, checkin.ErrInvalidCredential):
		return echo.NewHTTPError(http.StatusNotFound, "invalid ticket")
	case errors.Is(err, checkin.ErrEventMismatch):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "ticket is for a different event")
	}

	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}
