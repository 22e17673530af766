package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Live view table
	ActiveEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plv_active_entries",
		Help: "Live view entries currently in the table",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plv_subscribers",
		Help: "Attached subscribers across all live views",
	})

	// Collaborator calls
	FetchCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plv_entity_fetch_total",
		Help: "Entity fetch calls by outcome",
	}, []string{"outcome"})

	SubscribeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plv_presence_subscribe_total",
		Help: "Presence subscribe calls by outcome",
	}, []string{"outcome"})

	UnsubscribeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plv_presence_unsubscribe_total",
		Help: "Presence unsubscribe calls by outcome",
	}, []string{"outcome"})

	SelfRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plv_self_snapshot_total",
		Help: "Self snapshot requests by outcome",
	}, []string{"outcome"})

	// Event dispatch
	EventsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plv_events_dispatched_total",
		Help: "Presence events routed to an active live view",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plv_events_dropped_total",
		Help: "Presence events dropped before delivery",
	}, []string{"reason"})

	// Snapshot delivery
	SnapshotsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plv_snapshots_published_total",
		Help: "Snapshots published to live views",
	})

	SnapshotsShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plv_snapshots_shed_total",
		Help: "Buffered snapshots shed for lagging subscribers",
	})

	// Consumer surfaces
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plv_ws_connections",
		Help: "Open WebSocket live view connections",
	})

	CacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plv_cache_writes_total",
		Help: "Snapshot cache writes by outcome",
	}, []string{"outcome"})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
