package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/ratelimit"
	"inkwell/internal/version"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVersion = version.Info{Version: "v1.0.0", GitCommit: "abc1234", InstanceID: "instance-1"}

func newTestRegistry(t *testing.T, cfg ratelimit.RegistryConfig) *ratelimit.Registry {
	t.Helper()
	reg, err := ratelimit.NewRegistry(ratelimit.NewWindowStore(), cfg)
	require.NoError(t, err)
	return reg
}

func TestHealthCheck(t *testing.T) {
	reg := newTestRegistry(t, ratelimit.DefaultRegistryConfig())
	_, err := reg.Check(ratelimit.PolicyAuth, ratelimit.Attributes{IP: "10.0.0.1"})
	require.NoError(t, err)

	h := NewHandlers(reg, testVersion, nil)

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, models.StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Equal(t, "instance-1", resp.InstanceID)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, 5*time.Second)

	limiter, ok := resp.Components["ratelimit"]
	require.True(t, ok)
	assert.Equal(t, models.StatusHealthy, limiter.Status)
	assert.Equal(t, float64(1), limiter.Details["active_keys"])
	assert.Equal(t, float64(3), limiter.Details["policies"])
}

func TestHealthCheck_Disabled(t *testing.T) {
	cfg := ratelimit.DefaultRegistryConfig()
	cfg.Disabled = true
	h := NewHandlers(newTestRegistry(t, cfg), testVersion, nil)

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest("GET", "/health", nil))

	var resp models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, models.StatusHealthy, resp.Status, "a disabled limiter does not make the service unhealthy")
	assert.Equal(t, models.StatusDisabled, resp.Components["ratelimit"].Status)
	assert.Equal(t, "Rate limiting is disabled", resp.Components["ratelimit"].Message)
}

func TestRateLimitStats(t *testing.T) {
	reg := newTestRegistry(t, ratelimit.DefaultRegistryConfig())
	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		_, err := reg.Check(ratelimit.PolicyAPI, ratelimit.Attributes{IP: ip})
		require.NoError(t, err)
	}
	h := NewHandlers(reg, testVersion, nil)

	rr := httptest.NewRecorder()
	h.RateLimitStats(rr, httptest.NewRequest("GET", "/api/v1/ratelimit/stats", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var stats ratelimit.RegistryStats
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	assert.False(t, stats.Disabled)
	assert.Equal(t, 2, stats.Store.TotalKeys)
	assert.Equal(t, 2, stats.Store.ActiveKeys)
	assert.Equal(t, 0, stats.Store.ExpiredKeys)

	require.Len(t, stats.Policies, 3)
	byName := map[string]ratelimit.PolicyInfo{}
	for _, p := range stats.Policies {
		byName[p.Name] = p
	}
	assert.Equal(t, int64(300), byName["auth"].WindowSeconds)
	assert.Equal(t, 10, byName["auth"].MaxRequests)
	assert.Equal(t, int64(3600), byName["signup"].WindowSeconds)
	assert.Equal(t, 100, byName["api"].MaxRequests)
}

func TestResetRateLimit(t *testing.T) {
	cfg := ratelimit.DefaultRegistryConfig()
	cfg.Auth.MaxRequests = 1
	reg := newTestRegistry(t, cfg)
	h := NewHandlers(reg, testVersion, nil)

	attrs := ratelimit.Attributes{IP: "10.0.0.1"}
	for i := 0; i < 2; i++ {
		_, err := reg.Check(ratelimit.PolicyAuth, attrs)
		require.NoError(t, err)
	}
	v, err := reg.Check(ratelimit.PolicyAuth, attrs)
	require.NoError(t, err)
	require.False(t, v.Admitted)

	reset := func(policy, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("DELETE", "/admin/ratelimit/"+policy+query, nil)
		req = mux.SetURLVars(req, map[string]string{"policy": policy})
		rr := httptest.NewRecorder()
		h.ResetRateLimit(rr, req)
		return rr
	}

	rr := reset("auth", "?ip=10.0.0.1")
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp models.RateLimitResetResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "auth", resp.Policy)
	assert.Equal(t, "10.0.0.1", resp.IP)
	assert.True(t, resp.Cleared)

	v, err = reg.Check(ratelimit.PolicyAuth, attrs)
	require.NoError(t, err)
	assert.True(t, v.Admitted, "the caller starts a fresh window after a reset")

	// Nothing to clear for a caller without a window
	rr = reset("signup", "?ip=10.0.0.1")
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.Cleared)
}

func TestResetRateLimit_Errors(t *testing.T) {
	h := NewHandlers(newTestRegistry(t, ratelimit.DefaultRegistryConfig()), testVersion, nil)

	tests := []struct {
		name       string
		policy     string
		query      string
		statusCode int
		code       string
	}{
		{name: "missing ip", policy: "auth", query: "", statusCode: http.StatusBadRequest, code: models.ErrorCodeInvalidRequest},
		{name: "unknown policy", policy: "uploads", query: "?ip=10.0.0.1", statusCode: http.StatusNotFound, code: models.ErrorCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/admin/ratelimit/"+tt.policy+tt.query, nil)
			req = mux.SetURLVars(req, map[string]string{"policy": tt.policy})
			rr := httptest.NewRecorder()
			h.ResetRateLimit(rr, req)

			assert.Equal(t, tt.statusCode, rr.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestNotFound(t *testing.T) {
	h := NewHandlers(newTestRegistry(t, ratelimit.DefaultRegistryConfig()), testVersion, nil)

	rr := httptest.NewRecorder()
	h.NotFound(rr, httptest.NewRequest("GET", "/api/v1/nothing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, models.ErrorCodeNotFound, resp.Code)
}
