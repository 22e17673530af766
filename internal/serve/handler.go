package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/directory"
	"github.com/gftdcojp/presence-liveview/internal/liveview"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"go.uber.org/zap"
)

// SnapshotReader reads the last snapshot written for a key. Implemented
// by the bbolt-backed cache store.
type SnapshotReader interface {
	Get(ctx context.Context, key types.Key) (types.Snapshot, bool, error)
	Keys(ctx context.Context) ([]types.Key, error)
}

type handler struct {
	mux    *liveview.Mux
	cache  SnapshotReader
	logger *zap.Logger
}

// RunHTTP starts the HTTP API server.
func RunHTTP(ctx context.Context, cfg config.APIConfig, m *liveview.Mux, cacheStore SnapshotReader, logger *zap.Logger) error {
	h := &handler{
		mux:    m,
		cache:  cacheStore,
		logger: logger,
	}

	var root http.Handler = h.routes()
	if cfg.JWTSecret != "" {
		root = jwtAuth(cfg.JWTSecret, root)
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: root,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP API listening", zap.String("addr", cfg.Listen))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", h.handleStatus)
	mux.HandleFunc("GET /v1/self/{key}", h.handleSelf)
	mux.HandleFunc("GET /v1/last/{key}", h.handleLast)
	mux.HandleFunc("GET /v1/last", h.handleLastKeys)
	mux.HandleFunc("GET /v1/liveview/{key}", h.handleLiveView)
	return mux
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":       "ok",
		"active_views": h.mux.ActiveViews(),
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) handleSelf(w http.ResponseWriter, r *http.Request) {
	key := types.Key(r.PathValue("key"))

	snap, err := h.mux.SelfSnapshot(r.Context(), key)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) handleLast(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot cache disabled"})
		return
	}

	key := types.Key(r.PathValue("key"))
	snap, ok, err := h.cache.Get(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot for key"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) handleLastKeys(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot cache disabled"})
		return
	}

	keys, err := h.cache.Keys(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys, "count": len(keys)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
