package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/drydock-pm/drydock/modules/workitems"
	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/memory"
	"github.com/drydock-pm/drydock/pkg/configuration"
)

func newTestHandler(t *testing.T, mutate ...func(*configuration.Configuration)) http.Handler {
	t.Helper()

	opts := configuration.WorkItemIDOptions{
		TimeZone:       "UTC",
		FallbackPrefix: "WI",
		InsertRetries:  5,
		ProgressEvery:  10,
		SampleSize:     5,
		BackupDir:      t.TempDir(),
	}
	require.NoError(t, opts.Validate())

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	module, err := workitems.NewMemoryModule(memory.New(), opts, logrus.NewEntry(logger))
	require.NoError(t, err)

	conf := &configuration.Configuration{
		RequestIDHeader: "X-Request-ID",
		Prometheus:      configuration.PrometheusOptions{Enabled: true, Path: "/metrics"},
	}
	for _, fn := range mutate {
		fn(conf)
	}

	srv := Default(&DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Module:        module,
	})
	return srv.Router()
}

func TestDefault_ServesWorkItemRoutes(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/p1/work-items", strings.NewReader(`{"title":"  first  "}`))
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))

	var body struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.True(t, workitemid.IsNewFormat(body.ID), body.ID)
	require.Equal(t, "first", body.Title)
}

func TestDefault_ExposesMetrics(t *testing.T) {
	h := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/projects/p1/work-item-ids", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "workitem_ids_allocated_total")
}

func TestDefault_UnknownRouteIsJSON(t *testing.T) {
	h := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestDefault_RateLimit(t *testing.T) {
	h := newTestHandler(t, func(c *configuration.Configuration) {
		c.RateLimit = configuration.RateLimitOptions{Enabled: true, GlobalRPS: 1, Storage: "memory"}
	})

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/work-item-ids/15/03/25/001:parse", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/work-item-ids/15/03/25/002:parse", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(second.Body).Decode(&body))
	require.Equal(t, "RATE_LIMITED", body.Code)
}

func TestDefault_CorsPreflight(t *testing.T) {
	h := newTestHandler(t, func(c *configuration.Configuration) {
		c.CORSOrigins = []string{"http://localhost:3000"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/projects/p1/work-item-ids", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
