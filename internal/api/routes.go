package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"inkwell/internal/models"
	"inkwell/internal/ratelimit"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// Limiters are the checkers guarding each route group. They are usually the
// registry's policies, optionally wrapped for instrumentation.
type Limiters struct {
	Auth   ratelimit.Checker
	Signup ratelimit.Checker
	API    ratelimit.Checker
}

// LimitersFromRegistry returns the registry's policies unwrapped.
func LimitersFromRegistry(reg *ratelimit.Registry) Limiters {
	return Limiters{
		Auth:   reg.Auth(),
		Signup: reg.Signup(),
		API:    reg.API(),
	}
}

type routeConfig struct {
	app    http.Handler
	logger *slog.Logger
	otel   mux.MiddlewareFunc
}

// RouteOption configures optional route behavior.
type RouteOption func(*routeConfig)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(c *routeConfig) {
		c.otel = otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health"
			}),
		)
	}
}

// WithApplication mounts the application handler behind the rate-limited
// /api/v1 routes.
func WithApplication(app http.Handler) RouteOption {
	return func(c *routeConfig) {
		c.app = app
	}
}

// WithLogger sets the logger for request, panic and denial logs.
func WithLogger(logger *slog.Logger) RouteOption {
	return func(c *routeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// SetupRoutes configures the HTTP routes.
//
//	/api/v1/auth/login, /api/v1/auth/callback/credentials   auth policy
//	/api/v1/auth/signup                                      signup policy
//	everything else under /api/v1/                           api policy, mutating methods only
func SetupRoutes(handlers *Handlers, limiters Limiters, opts ...RouteOption) *mux.Router {
	cfg := &routeConfig{logger: handlers.logger}
	for _, opt := range opts {
		opt(cfg)
	}
	app := cfg.app
	if app == nil {
		app = http.HandlerFunc(handlers.NotFound)
	}

	router := mux.NewRouter()
	router.Use(recoveryMiddleware(cfg.logger))
	if cfg.otel != nil {
		router.Use(cfg.otel)
	}
	router.Use(loggingMiddleware(cfg.logger))

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/ratelimit/stats", handlers.RateLimitStats).Methods("GET")

	// Login and the credentials callback share one middleware so their
	// denial logging is throttled together.
	authGuard := ratelimit.Middleware(limiters.Auth, cfg.logger)
	api.Handle("/auth/login", authGuard(app))
	api.Handle("/auth/callback/credentials", authGuard(app))
	api.Handle("/auth/signup", ratelimit.Middleware(limiters.Signup, cfg.logger)(app))

	api.PathPrefix("/").Handler(ratelimit.MutatingOnly(limiters.API, cfg.logger)(app))

	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// SetupAdminRoutes configures the operator endpoints. They belong on the
// side port next to /metrics, never on the public listener, since a reset
// lifts a lockout.
//
//	DELETE /admin/ratelimit/{policy}?ip=...&path=...
func SetupAdminRoutes(handlers *Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware(handlers.logger))
	router.Use(loggingMiddleware(handlers.logger))

	router.HandleFunc("/admin/ratelimit/{policy}", handlers.ResetRateLimit).Methods("DELETE")

	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	errorResp := models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest)
	json.NewEncoder(w).Encode(errorResp)
}

// loggingMiddleware logs each request once it has been served.
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"duration", m.Duration,
				"client_ip", ratelimit.ClientIP(r),
			)
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered", "error", err, "path", r.URL.Path)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					errorResp := models.NewErrorResponse("Internal server error", models.ErrorCodeInternalError)
					json.NewEncoder(w).Encode(errorResp)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
