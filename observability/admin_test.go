package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api-gateway/gateway"
	"api-gateway/middleware/ratelimit/domain"
	"api-gateway/middleware/ratelimit/infra"
)

type staticRoutes []gateway.Route

func (s staticRoutes) Routes() []gateway.Route { return s }

func TestAdminRouter(t *testing.T) {
	routes := staticRoutes{{Prefix: "/api", Target: "http://api:8080"}}
	stats := infra.NewMemoryStatsStore()
	require.NoError(t, stats.Record(context.Background(), domain.StatsEvent{Key: "1.2.3.4", Allowed: true, Method: "GET", Route: "/api"}))
	require.NoError(t, stats.Record(context.Background(), domain.StatsEvent{Key: "1.2.3.4", Allowed: false, Method: "GET", Route: "/api"}))

	h := NewAdminRouter(AdminOptions{Metrics: NewMetrics(), Routes: routes, Stats: stats})

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	t.Run("routes", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/routes", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var got []gateway.Route
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, []gateway.Route(routes), got)
	})

	t.Run("metrics", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "gateway_http_requests_in_flight")
	})

	t.Run("ratelimit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ratelimit", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{
			"total": {"allowed": 1, "denied": 1},
			"by_route": {"GET /api": {"allowed": 1, "denied": 1}},
			"by_key": {}
		}`, rr.Body.String())
	})

	t.Run("unknown", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAdminRouter_Minimal(t *testing.T) {
	h := NewAdminRouter(AdminOptions{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/routes", nil))
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
}
