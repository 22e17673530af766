package serve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/liveview"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type snapshotRequest struct {
	Key types.Key `json:"key"`
}

type snapshotResponse struct {
	Snapshot *types.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RunNATSResponder serves snapshot lookups over NATS request-reply.
// Keys may contain dots and other subject-hostile characters, so they
// travel in the request payload instead of subject tokens.
// Subjects: {prefix}.self and {prefix}.last
func RunNATSResponder(ctx context.Context, nc *nats.Conn, cfg config.NATSResponderConfig, m *liveview.Mux, cacheStore SnapshotReader, logger *zap.Logger) error {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "plv"
	}

	selfSubject := prefix + ".self"
	selfSub, err := nc.Subscribe(selfSubject, func(msg *nats.Msg) {
		var req snapshotRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respondError(msg, "invalid request payload")
			return
		}

		snap, err := m.SelfSnapshot(ctx, req.Key)
		if err != nil {
			respondError(msg, err.Error())
			return
		}
		respondSnapshot(msg, snap)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", selfSubject, err)
	}
	defer selfSub.Unsubscribe()

	lastSubject := prefix + ".last"
	lastSub, err := nc.Subscribe(lastSubject, func(msg *nats.Msg) {
		var req snapshotRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respondError(msg, "invalid request payload")
			return
		}

		if cacheStore == nil {
			respondError(msg, "snapshot cache disabled")
			return
		}
		snap, ok, err := cacheStore.Get(ctx, req.Key)
		if err != nil {
			respondError(msg, err.Error())
			return
		}
		if !ok {
			respondError(msg, "no snapshot for key")
			return
		}
		respondSnapshot(msg, snap)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", lastSubject, err)
	}
	defer lastSub.Unsubscribe()

	logger.Info("NATS responder started",
		zap.String("self_subject", selfSubject),
		zap.String("last_subject", lastSubject),
	)

	<-ctx.Done()
	return nil
}

func respondSnapshot(msg *nats.Msg, snap types.Snapshot) {
	resp, _ := json.Marshal(snapshotResponse{Snapshot: &snap})
	msg.Respond(resp)
}

func respondError(msg *nats.Msg, errMsg string) {
	resp, _ := json.Marshal(snapshotResponse{Error: errMsg})
	msg.Respond(resp)
}
