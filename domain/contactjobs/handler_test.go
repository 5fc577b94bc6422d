package contactjobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrm-platform/hrm-service/internal/config"
	"github.com/hrm-platform/hrm-service/internal/jobs"
	"github.com/hrm-platform/hrm-service/pkg/apperror"
)

func newAdminServer(t *testing.T, key string) (*echo.Echo, *memStore) {
	t.Helper()
	e, store := newAdminServerWithPollers(t, key, &Pollers{})
	return e, store
}

func newAdminServerWithPollers(t *testing.T, key string, pollers *Pollers) (*echo.Echo, *memStore) {
	t.Helper()
	store := newMemStore(newTestClock())
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(slog.Default())
	RegisterRoutes(e, NewHandler(store, pollers), &config.Config{AdminAPIKey: key}, slog.Default())
	return e, store
}

func serve(e *echo.Echo, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Stats(t *testing.T) {
	e, store := newAdminServer(t, "secret")
	resources := newFakeResources()
	pending, _ := createTranscriptJob(t, store, resources, JobTypeRetrieveTranscript, "")
	done, _ := createTranscriptJob(t, store, resources, JobTypeRetrieveTranscript, "")
	store.complete(t, done.ID, t0)
	appended, err := store.AppendFailedAttemptPayload(context.Background(), pending.ID, 1, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, appended)

	rec := serve(e, "/api/contact-jobs/stats", "secret")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Types, 1)
	assert.Equal(t, TypeStats{JobType: JobTypeRetrieveTranscript, Pending: 1, Completed: 1, WithFailures: 1}, body.Types[0])
}

func TestHandler_StatsReportsPollers(t *testing.T) {
	failing := jobs.NewPoller(jobs.PollerConfig{
		Name:       "contact-job-dispatcher",
		Interval:   time.Hour,
		RunOnStart: true,
	}, slog.Default(), func(context.Context) error { return errors.New("queue down") })
	idle := jobs.NewPoller(jobs.PollerConfig{
		Name:     "contact-job-completions",
		Interval: time.Hour,
	}, slog.Default(), func(context.Context) error { return nil })

	require.NoError(t, failing.Start(context.Background()))
	t.Cleanup(func() { _ = failing.Stop(context.Background()) })
	require.Eventually(t, func() bool { return failing.Metrics().Ticks == 1 }, time.Second, 5*time.Millisecond)

	e, _ := newAdminServerWithPollers(t, "secret", &Pollers{loops: []*jobs.Poller{failing, idle}})
	rec := serve(e, "/api/contact-jobs/stats", "secret")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pollers, 2)

	assert.Equal(t, "contact-job-dispatcher", body.Pollers[0].Name)
	assert.True(t, body.Pollers[0].Running)
	assert.Equal(t, int64(1), body.Pollers[0].Ticks)
	assert.Equal(t, int64(1), body.Pollers[0].Failures)
	assert.False(t, body.Pollers[0].LastTick.IsZero())

	assert.Equal(t, "contact-job-completions", body.Pollers[1].Name)
	assert.False(t, body.Pollers[1].Running)
	assert.Zero(t, body.Pollers[1].Ticks)
}

func TestHandler_StatsWithPipelineDisabled(t *testing.T) {
	e, _ := newAdminServer(t, "secret")
	rec := serve(e, "/api/contact-jobs/stats", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pollers":[]`)
}

func TestHandler_Get(t *testing.T) {
	e, store := newAdminServer(t, "secret")
	job, _ := createTranscriptJob(t, store, newFakeResources(), JobTypeScrubTranscript, "s3://b/raw")

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"found", job.ID, http.StatusOK},
		{"missing", "5d2b7a0e-8f7c-4b9e-a1d2-0c3e4f5a6b7c", http.StatusNotFound},
		{"not a uuid", "nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, "/api/contact-jobs/"+tt.id, "secret")
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				var got ContactJob
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, job.ID, got.ID)
				assert.Equal(t, JobTypeScrubTranscript, got.JobType)
			} else {
				assert.Contains(t, rec.Body.String(), "contact_job_not_found")
			}
		})
	}
}

func TestRoutes_KeyAuth(t *testing.T) {
	e, _ := newAdminServer(t, "secret")

	assert.Equal(t, http.StatusBadRequest, serve(e, "/api/contact-jobs/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "/api/contact-jobs/stats", "wrong").Code)
	assert.Equal(t, http.StatusOK, serve(e, "/api/contact-jobs/stats", "secret").Code)
}

func TestRoutes_DisabledWithoutKey(t *testing.T) {
	e, _ := newAdminServer(t, "")
	assert.Equal(t, http.StatusNotFound, serve(e, "/api/contact-jobs/stats", "").Code)
}
