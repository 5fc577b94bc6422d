package contactjobs

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrm-platform/hrm-service/pkg/apperror"
)

// Handler serves the contact job admin endpoints
type Handler struct {
	store   Store
	pollers *Pollers
}

// NewHandler creates a new contact jobs handler
func NewHandler(store Store, pollers *Pollers) *Handler {
	return &Handler{store: store, pollers: pollers}
}

// StatsResponse is the body of GET /api/contact-jobs/stats
type StatsResponse struct {
	Types   []TypeStats    `json:"types"`
	Pollers []PollerStatus `json:"pollers"`
}

// Stats handles GET /api/contact-jobs/stats
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.store.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	if stats == nil {
		stats = []TypeStats{}
	}
	return c.JSON(http.StatusOK, StatsResponse{Types: stats, Pollers: h.pollers.Status()})
}

// Get handles GET /api/contact-jobs/:id
func (h *Handler) Get(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return apperror.ErrContactJobNotFound
	}

	job, err := h.store.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if job == nil {
		return apperror.ErrContactJobNotFound
	}
	return c.JSON(http.StatusOK, job)
}
