package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/drydock-pm/drydock/pkg/composables"
)

func TestWithLogger_PropagatesRequestID(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)

	var seen string
	h := WithLogger(logger, "X-Request-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = composables.UseRequestID(r.Context())
		composables.UseLogger(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "req-42", seen)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	require.Equal(t, "req-42", entries[0].Data["request-id"])
	require.Equal(t, http.StatusTeapot, entries[1].Data["status-code"])
}

func TestWithLogger_GeneratesRequestID(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	h := WithLogger(logger, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestWithLogger_RecoversPanics(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := WithLogger(logger, "X-Request-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INTERNAL_SERVER_ERROR"`)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
