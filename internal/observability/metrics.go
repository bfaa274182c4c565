package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the Prometheus registry on its own port so scrapes
// never compete with the rate-limited API listener.
type MetricsServer struct {
	server *http.Server
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewMetricsServer creates the scrape endpoint. With a nil provider, or one
// built with metrics disabled, the path answers 404.
func NewMetricsServer(port int, path string, provider *Provider, logger *slog.Logger) *MetricsServer {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	if reg := provider.Registry(); reg != nil {
		mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		mux:    mux,
		logger: logger,
	}
}

// Handle mounts an operator-only handler beside the scrape endpoint. It must
// be called before Start.
func (ms *MetricsServer) Handle(pattern string, handler http.Handler) {
	ms.mux.Handle(pattern, handler)
}

// Handler exposes the mux for in-process scrapes.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start blocks serving metrics. It returns http.ErrServerClosed after Shutdown.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
