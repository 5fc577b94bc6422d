package contacts

import (
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrm-platform/hrm-service/internal/config"
)

// RegisterRoutes registers the contact routes behind the admin key.
func RegisterRoutes(e *echo.Echo, h *Handler, cfg *config.Config, log *slog.Logger) {
	if cfg.AdminAPIKey == "" {
		log.Info("ADMIN_API_KEY not set, contact routes disabled")
		return
	}

	g := e.Group("/api/accounts/:accountSid/contacts")
	g.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.AdminAPIKey)) == 1, nil
	}))

	g.POST("", h.Create)
	g.GET("/:id", h.Get)
}
