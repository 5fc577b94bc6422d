package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrm-platform/hrm-service/internal/config"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func setup(pingErr error, env string) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, newHandler(fakePinger{err: pingErr}, &config.Config{Environment: env}))
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantHealth string
	}{
		{"database up", nil, http.StatusOK, "healthy"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(setup(tt.pingErr, "local"), "/health")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantHealth, resp.Status)
			assert.Equal(t, tt.wantHealth, resp.Checks["database"].Status)
		})
	}
}

func TestReady(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(setup(nil, "local"), "/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(setup(errors.New("down"), "local"), "/ready").Code)
}

func TestHealthz(t *testing.T) {
	rec := get(setup(errors.New("down"), "local"), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestDebug_HiddenInProduction(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(setup(nil, "local"), "/debug").Code)
	assert.Equal(t, http.StatusNotFound, get(setup(nil, "production"), "/debug").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(setup(nil, "local"), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
