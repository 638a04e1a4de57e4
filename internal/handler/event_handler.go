package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Eursukkul/showpass/internal/dto"
	"github.com/Eursukkul/showpass/internal/models"
	"github.com/Eursukkul/showpass/internal/service"
)

type EventHandler struct {
	svc service.CatalogService
}

func NewEventHandler(svc service.CatalogService) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.CreateEvent)
	g.GET("/:id/inventory", h.GetInventory)
}

func (h *EventHandler) CreateEvent(c echo.Context) error {
	var req dto.CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	event := &models.Event{
		ID:       req.ID,
		Name:     req.Name,
		Venue:    req.Venue,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	}
	for _, tt := range req.TicketTypes {
		event.TicketTypes = append(event.TicketTypes, models.TicketType{
			ID:        tt.ID,
			Name:      tt.Name,
			UnitPrice: tt.UnitPrice,
			Capacity:  tt.Capacity,
		})
	}

	if err := h.svc.Register(c.Request().Context(), event); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, dto.ToInventoryResponse(event))
}

func (h *EventHandler) GetInventory(c echo.Context) error {
	event, err := h.svc.Inventory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ToInventoryResponse(event))
}
