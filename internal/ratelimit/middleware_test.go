package ratelimit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newRequest(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	p := newTestPolicy(t, NewWindowStore(), "api", 10, time.Minute)
	handler := Middleware(p, nil)(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("GET", "/test", "192.168.1.1:12345"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rr.Header().Get("X-RateLimit-Remaining"))
	_, err := time.Parse(time.RFC3339, rr.Header().Get("X-RateLimit-Reset"))
	assert.NoError(t, err, "reset header must be an RFC3339 timestamp")
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestMiddleware_DeniedRequest(t *testing.T) {
	p := newTestPolicy(t, NewWindowStore(), "api", 2, time.Minute)
	handler := Middleware(p, nil)(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest("GET", "/test", "192.168.1.1:12345"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	// Third request should be denied
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("GET", "/test", "192.168.1.1:12345"))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retryAfter >= 1 && retryAfter <= 60)

	// Verify JSON error body
	var errResp map[string]interface{}
	err = json.NewDecoder(rr.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Equal(t, DefaultMessage, errResp["message"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errResp["code"])
	assert.Equal(t, float64(retryAfter), errResp["retry_after"])
}

func TestMiddleware_DisabledPolicy(t *testing.T) {
	store := NewWindowStore()
	p := newTestPolicy(t, store, "auth", 1, time.Minute, WithDisabled(true))
	handler := Middleware(p, nil)(http.HandlerFunc(okHandler))

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest("POST", "/login", "192.168.1.1:12345"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Reset"))
	}
	assert.Equal(t, 0, store.Stats().TotalKeys)
}

func TestMiddleware_SeparatePoliciesSameClient(t *testing.T) {
	store := NewWindowStore()
	auth := newTestPolicy(t, store, "auth", 1, time.Minute)
	api := newTestPolicy(t, store, "api", 5, time.Minute)

	authHandler := Middleware(auth, nil)(http.HandlerFunc(okHandler))
	apiHandler := Middleware(api, nil)(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	authHandler.ServeHTTP(rr, newRequest("POST", "/login", "192.168.1.1:12345"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	authHandler.ServeHTTP(rr, newRequest("POST", "/login", "192.168.1.1:12345"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Same client through the API policy is unaffected
	rr = httptest.NewRecorder()
	apiHandler.ServeHTTP(rr, newRequest("POST", "/projects", "192.168.1.1:12345"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
}

func TestMutatingOnly(t *testing.T) {
	store := NewWindowStore()
	p := newTestPolicy(t, store, "api", 1, time.Minute)
	handler := MutatingOnly(p, nil)(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest("GET", "/projects", "10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"), "reads are not checked")
	}
	assert.Equal(t, 0, store.Stats().TotalKeys)

	tests := []struct {
		method   string
		expected int
	}{
		{method: "POST", expected: http.StatusOK},
		{method: "PUT", expected: http.StatusTooManyRequests},
		{method: "PATCH", expected: http.StatusTooManyRequests},
		{method: "DELETE", expected: http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest(tt.method, "/projects", "10.0.0.1:1"))
		assert.Equal(t, tt.expected, rr.Code, tt.method)
	}
}

func TestMiddleware_DenialLogThrottled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := newTestPolicy(t, NewWindowStore(), "auth", 1, time.Minute)
	handler := Middleware(p, logger)(http.HandlerFunc(okHandler))

	for i := 0; i < 20; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newRequest("POST", "/login", "10.0.0.9:1"))
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "Rate limit exceeded"))
	assert.Contains(t, buf.String(), "policy=auth")
	assert.Contains(t, buf.String(), "client_ip=10.0.0.9")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		expected   string
	}{
		{name: "peer with port", remoteAddr: "192.168.1.1:12345", expected: "192.168.1.1"},
		{name: "ipv6 peer", remoteAddr: "[2001:db8::1]:443", expected: "2001:db8::1"},
		{name: "peer without port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:12345", xff: "203.0.113.50, 70.41.3.18", expected: "203.0.113.50"},
		{name: "single forwarded", remoteAddr: "10.0.0.1:12345", xff: " 203.0.113.51 ", expected: "203.0.113.51"},
		{name: "empty forwarded entry", remoteAddr: "10.0.0.1:12345", xff: " , 70.41.3.18", expected: "10.0.0.1"},
		{name: "nothing", remoteAddr: "", expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest("GET", "/", tt.remoteAddr)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

func TestAttributesFromRequest(t *testing.T) {
	req := newRequest("POST", "/api/v1/projects?x=1", "10.1.2.3:999")
	attrs := AttributesFromRequest(req)
	assert.Equal(t, Attributes{IP: "10.1.2.3", Path: "/api/v1/projects"}, attrs)
}
