package app

import (
	"context"
	"net/http"

	"github.com/crawlfabric/crawlfabric/internal/blobstore"
	"github.com/crawlfabric/crawlfabric/internal/health"
	"github.com/crawlfabric/crawlfabric/internal/queue"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
)

// registerHealthChecks wires one health.Checker per adapter the fabric
// depends on, each probing with the adapter's own narrow read path rather
// than a dedicated ping call the ports don't expose.
func registerHealthChecks(registry *health.Registry, store statestore.Store, queues queue.Fabric, blobs blobstore.Store) {
	registry.Register(health.CheckerFunc{
		CheckerName: "statestore",
		Fn: func(ctx context.Context) health.Status {
			if _, _, err := store.Get(ctx, "__healthcheck__"); err != nil {
				return health.StatusUnhealthy
			}
			return health.StatusHealthy
		},
	})
	registry.Register(health.CheckerFunc{
		CheckerName: "crawl-queue",
		Fn: func(ctx context.Context) health.Status {
			// A zero-wait receive probes connectivity; anything it pulls
			// is released immediately so the probe never delays real work.
			envelopes, err := queues.Crawl.Receive(ctx, 1, 0)
			if err != nil {
				return health.StatusUnhealthy
			}
			for _, env := range envelopes {
				_ = queues.Crawl.Release(ctx, env.ReceiptHandle)
			}
			return health.StatusHealthy
		},
	})
	registry.Register(health.CheckerFunc{
		CheckerName: "blobstore",
		Fn: func(ctx context.Context) health.Status {
			if _, err := blobs.Head(ctx, "__healthcheck__"); err != nil {
				return health.StatusUnhealthy
			}
			return health.StatusHealthy
		},
	})
}

// healthServer runs the health.Registry's Handler on its own listener,
// kept separate from the metrics endpoint so a scrape outage
// on one cannot be confused with the other in an orchestrator's probes.
type healthServer struct {
	addr    string
	handler http.Handler
	server  *http.Server
}

func (s *healthServer) start() {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.handler)
	s.server = &http.Server{Addr: s.addr, Handler: mux}
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

func (s *healthServer) stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
