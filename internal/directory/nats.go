package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSFetcher resolves entities over NATS request-reply against the
// directory service. Subject: {prefix}.entity.get, request {"key": ...},
// reply is the entity JSON or {"error": ...}.
type NATSFetcher struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

type entityRequest struct {
	Key string `json:"key"`
}

type entityReply struct {
	types.Entity
	Error string `json:"error,omitempty"`
}

// NewNATSFetcher creates a NATS-backed entity fetcher.
func NewNATSFetcher(nc *nats.Conn, cfg config.DirectoryConfig, logger *zap.Logger) *NATSFetcher {
	timeout := cfg.RequestTimeout.Duration()
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &NATSFetcher{
		nc:      nc,
		prefix:  cfg.SubjectPrefix,
		timeout: timeout,
		logger:  logger,
	}
}

func (f *NATSFetcher) Fetch(ctx context.Context, key types.Key) (types.Entity, error) {
	req, err := json.Marshal(entityRequest{Key: string(key)})
	if err != nil {
		return types.Entity{}, fmt.Errorf("encoding entity request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	subject := f.prefix + ".entity.get"
	msg, err := f.nc.RequestWithContext(reqCtx, subject, req)
	if err != nil {
		return types.Entity{}, fmt.Errorf("directory request on %s: %w", subject, err)
	}

	var reply entityReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return types.Entity{}, fmt.Errorf("decoding entity reply: %w", err)
	}
	if reply.Error != "" {
		if reply.Error == "not found" {
			return types.Entity{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return types.Entity{}, fmt.Errorf("directory error for %s: %s", key, reply.Error)
	}

	f.logger.Debug("entity fetched",
		zap.String("key", string(key)),
		zap.String("entity_id", reply.ID),
	)
	return reply.Entity, nil
}
