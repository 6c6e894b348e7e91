package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the default Prometheus registry over /metrics.
// Grounded on the teacher's gateway/middleware observability handler, which
// exposes the same registry via promhttp.HandlerFor behind an HTTP mux.
type MetricsServer struct {
	srv *http.Server
}

// NewMetricsServer builds (but does not start) an HTTP server exposing
// /metrics on addr.
func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the server in a background goroutine. Errors other than a clean
// shutdown are sent to errc.
func (m *MetricsServer) Start(errc chan<- error) {
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
