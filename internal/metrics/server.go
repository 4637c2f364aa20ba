package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crawlfabric/crawlfabric/internal/obslog"
)

// Server exposes the package's collectors on /metrics over a plain
// *http.Server with explicit StartAsync/Stop lifecycle.
type Server struct {
	server *http.Server
	log    *obslog.Logger
}

// NewServer constructs a Server bound to addr (e.g. ":9102"). It does not
// start listening until StartAsync is called.
func NewServer(addr string, log *obslog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		log:    log,
	}
}

// StartAsync begins serving in a background goroutine, logging (but not
// panicking on) a listen failure other than a clean Shutdown.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error(obslog.CauseNetworkFailure, "metrics", "listen", err, obslog.Fields{"addr": s.server.Addr})
		}
	}()
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// defaultShutdownTimeout bounds Stop when a caller has no ctx of their own
// (e.g. a deferred cleanup in a short-lived cmd/crawlctl invocation).
const defaultShutdownTimeout = 5 * time.Second
