package contacts

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrm-platform/hrm-service/pkg/apperror"
)

// Handler handles contact HTTP requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new contacts handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /api/accounts/:accountSid/contacts
func (h *Handler) Create(c echo.Context) error {
	var in CreateContactInput
	if err := c.Bind(&in); err != nil {
		return apperror.ErrBadRequest.WithInternal(err)
	}
	in.AccountSID = c.Param("accountSid")

	contact, err := h.svc.CreateContact(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, contact)
}

// Get handles GET /api/accounts/:accountSid/contacts/:id
func (h *Handler) Get(c echo.Context) error {
	contact, err := h.svc.GetContact(c.Request().Context(), c.Param("accountSid"), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contact)
}
