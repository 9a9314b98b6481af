package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, snapshotRequestsTotal)
}

func TestObservers_SafeBeforeAndAfterInit(t *testing.T) {
	// Observers must not panic regardless of Init ordering.
	ObserveResolve("hit")
	ObserveRenderDuration(0)
	ObserveRenderFailure("render")
	ObserveSweep(1, 1)

	Init()
	ObserveResolve("miss")
	ObserveSweep(2, 1)
}

func TestMiddleware_RecordsAndPassesThrough(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandler_ServesMetrics(t *testing.T) {
	Init()
	ObserveResolve("hit")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "snapshot_requests_total")
}
