package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"inkwell/internal/models"
)

// denialLogInterval bounds how often a policy logs denials, so a client
// hammering a blocked endpoint cannot flood the log.
const denialLogInterval = 10 * time.Second

// Middleware returns HTTP middleware that checks every request against
// checker. Admitted requests get X-RateLimit-* headers and proceed; denied
// requests get a 429 with Retry-After and a JSON error body.
func Middleware(checker Checker, logger *slog.Logger) func(http.Handler) http.Handler {
	return newMiddleware(checker, logger, nil)
}

// MutatingOnly is like Middleware but only checks POST, PUT, PATCH and
// DELETE requests. Reads pass through untouched.
func MutatingOnly(checker Checker, logger *slog.Logger) func(http.Handler) http.Handler {
	return newMiddleware(checker, logger, isMutating)
}

func isMutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func newMiddleware(checker Checker, logger *slog.Logger, applies func(*http.Request) bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	throttle := &denialLogger{
		logger:    logger,
		sometimes: rate.Sometimes{First: 1, Interval: denialLogInterval},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := AttributesFromRequest(r)
			verdict := checker.Check(attrs)

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("ratelimit.policy", verdict.Policy),
				attribute.Bool("ratelimit.admitted", verdict.Admitted),
				attribute.Int("ratelimit.remaining", verdict.Remaining),
			)

			if !verdict.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(verdict.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(verdict.Remaining))
				w.Header().Set("X-RateLimit-Reset", verdict.ResetAt.UTC().Format(time.RFC3339))
			}

			if !verdict.Admitted {
				w.Header().Set("Retry-After", strconv.Itoa(verdict.RetryAfterSeconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewRateLimitResponse(verdict.Message, verdict.RetryAfterSeconds)
				json.NewEncoder(w).Encode(errorResp)

				throttle.denied(verdict, attrs)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// denialLogger emits at most one warning per interval and reports how many
// denials were folded into it.
type denialLogger struct {
	logger     *slog.Logger
	sometimes  rate.Sometimes
	suppressed atomic.Int64
}

func (d *denialLogger) denied(v Verdict, attrs Attributes) {
	d.suppressed.Add(1)
	d.sometimes.Do(func() {
		d.logger.Warn("Rate limit exceeded",
			"policy", v.Policy,
			"client_ip", attrs.IP,
			"path", attrs.Path,
			"limit", v.Limit,
			"retry_after", v.RetryAfterSeconds,
			"denials", d.suppressed.Swap(0),
		)
	})
}

// AttributesFromRequest extracts the caller identity from r: the first
// X-Forwarded-For entry, else the peer address without its port, else
// "unknown".
func AttributesFromRequest(r *http.Request) Attributes {
	return Attributes{
		IP:   ClientIP(r),
		Path: r.URL.Path,
	}
}

// ClientIP returns the caller's network identity for r.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return unknownClient
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
