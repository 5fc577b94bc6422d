package contactjobs

import (
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrm-platform/hrm-service/internal/config"
)

// RegisterRoutes registers the admin routes. They are not mounted when no
// admin key is configured.
func RegisterRoutes(e *echo.Echo, h *Handler, cfg *config.Config, log *slog.Logger) {
	if cfg.AdminAPIKey == "" {
		log.Info("ADMIN_API_KEY not set, contact job admin routes disabled")
		return
	}

	g := e.Group("/api/contact-jobs")
	g.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.AdminAPIKey)) == 1, nil
	}))

	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
}
