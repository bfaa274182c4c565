package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inkwell/internal/api"
	"inkwell/internal/config"
	"inkwell/internal/logger"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/ratelimit"
	"inkwell/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	writeExample = flag.String("write-example-config", "", "Write an example configuration to this path and exit")
	printVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *printVersion {
		fmt.Println(ver.String())
		return
	}

	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		log.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown observability", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Window store, sweeper and policies
	store := ratelimit.NewWindowStore(ratelimit.WithShards(cfg.RateLimit.Shards))

	sweeper := ratelimit.NewSweeper(store, cfg.RateLimit.SweepInterval, log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	registry, err := ratelimit.NewRegistry(store, registryConfig(cfg.RateLimit))
	if err != nil {
		log.Error("Failed to initialize rate limit policies", "error", err)
		os.Exit(1)
	}
	if registry.Disabled() {
		log.Warn("Rate limiting is disabled; every request will be admitted")
	}

	limiters := api.LimitersFromRegistry(registry)
	if cfg.Metrics.Enabled {
		limiters, err = instrumentLimiters(limiters, otelProvider)
		if err != nil {
			log.Error("Failed to instrument rate limit policies", "error", err)
			os.Exit(1)
		}

		gauges, err := observability.RegisterStoreGauges(store,
			observability.WithMeterProvider(otelProvider.MeterProvider()))
		if err != nil {
			log.Error("Failed to register window store gauges", "error", err)
			os.Exit(1)
		}
		defer gauges.Unregister()
	}

	// Setup routes with middleware
	routeOpts := []api.RouteOption{api.WithLogger(log)}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	handlers := api.NewHandlers(registry, ver, log)
	router := api.SetupRoutes(handlers, limiters, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider, log)
		metricsServer.Handle("/admin/", api.SetupAdminRoutes(handlers))
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			"addr", server.Addr,
			"policies", registry.Names(),
			"rate_limit_disabled", registry.Disabled(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case err := <-serverErr:
		log.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}

// registryConfig maps the file/env configuration onto the policy registry.
func registryConfig(rc models.RateLimitConfig) ratelimit.RegistryConfig {
	return ratelimit.RegistryConfig{
		Disabled:     rc.Disabled,
		APIKeyByPath: rc.APIKeyByPath,
		Auth:         ratelimit.PolicySettings{Window: rc.Auth.Window, MaxRequests: rc.Auth.MaxRequests},
		Signup:       ratelimit.PolicySettings{Window: rc.Signup.Window, MaxRequests: rc.Signup.MaxRequests},
		API:          ratelimit.PolicySettings{Window: rc.API.Window, MaxRequests: rc.API.MaxRequests},
	}
}

// instrumentLimiters wraps every route group's checker with verdict metrics.
func instrumentLimiters(l api.Limiters, provider *observability.Provider) (api.Limiters, error) {
	wrap := func(c ratelimit.Checker) (ratelimit.Checker, error) {
		return observability.NewInstrumentedChecker(c, observability.WithMeterProvider(provider.MeterProvider()))
	}

	var out api.Limiters
	var err error
	if out.Auth, err = wrap(l.Auth); err != nil {
		return l, fmt.Errorf("auth: %w", err)
	}
	if out.Signup, err = wrap(l.Signup); err != nil {
		return l, fmt.Errorf("signup: %w", err)
	}
	if out.API, err = wrap(l.API); err != nil {
		return l, fmt.Errorf("api: %w", err)
	}
	return out, nil
}
