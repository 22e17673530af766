package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/nats-io/nats.go"
)

// HealthStatus represents the overall health state.
type HealthStatus struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks,omitempty"`
}

// Check represents an individual health check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pinger is anything with a Ping health probe (the snapshot cache, the redis
// directory backend).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker runs health probes.
type HealthChecker struct {
	natsConn *nats.Conn
	probes   map[string]Pinger
}

// NewHealthChecker creates a new health checker. Nil probes are skipped.
func NewHealthChecker(nc *nats.Conn, probes map[string]Pinger) *HealthChecker {
	return &HealthChecker{natsConn: nc, probes: probes}
}

// Liveness checks if the process is alive.
func (h *HealthChecker) Liveness() HealthStatus {
	return HealthStatus{OK: true}
}

// Readiness checks if the service can handle requests.
func (h *HealthChecker) Readiness() HealthStatus {
	status := HealthStatus{OK: true}

	if h.natsConn != nil && !h.natsConn.IsConnected() {
		status.OK = false
		status.Checks = append(status.Checks, Check{
			Name: "nats", Status: "disconnected",
		})
	} else {
		status.Checks = append(status.Checks, Check{
			Name: "nats", Status: "connected",
		})
	}

	for name, p := range h.probes {
		if p == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			status.OK = false
			status.Checks = append(status.Checks, Check{
				Name: name, Status: "error", Error: err.Error(),
			})
		} else {
			status.Checks = append(status.Checks, Check{
				Name: name, Status: "ok",
			})
		}
	}

	return status
}

// RunHealthServer starts the health check HTTP server.
func RunHealthServer(ctx context.Context, cfg config.HealthConfig, checker *HealthChecker) error {
	mux := http.NewServeMux()

	livenessPath := cfg.LivenessPath
	if livenessPath == "" {
		livenessPath = "/healthz"
	}
	readinessPath := cfg.ReadinessPath
	if readinessPath == "" {
		readinessPath = "/readyz"
	}

	mux.HandleFunc(livenessPath, func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness())
	})

	mux.HandleFunc(readinessPath, func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness())
	})

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

func writeHealth(w http.ResponseWriter, status HealthStatus) {
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
