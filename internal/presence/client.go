// Package presence implements the presence service collaborators over NATS:
// a request-reply client for get/subscribe/unsubscribe and the shared push
// stream of presence change events.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/liveview"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client talks to the remote presence service over NATS request-reply.
// Subjects: {prefix}.get, {prefix}.subscribe, {prefix}.unsubscribe, with the
// addressed ids carried in the JSON payload.
type Client struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a presence service client.
func NewClient(nc *nats.Conn, cfg config.PresenceConfig, logger *zap.Logger) *Client {
	timeout := cfg.RequestTimeout.Duration()
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		nc:      nc,
		prefix:  cfg.SubjectPrefix,
		timeout: timeout,
		logger:  logger,
	}
}

type getRequest struct {
	IDs []types.InternalID `json:"ids"`
}

type getReply struct {
	Statuses map[types.InternalID]types.RawStatus `json:"statuses"`
	Error    string                               `json:"error,omitempty"`
}

type idRequest struct {
	ID types.InternalID `json:"id"`
}

type subscribeReply struct {
	liveview.SubscriptionAck
	Error string `json:"error,omitempty"`
}

type unsubscribeReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Get returns the current raw status for each id the service knows about.
func (c *Client) Get(ctx context.Context, ids []types.InternalID) (map[types.InternalID]types.RawStatus, error) {
	var reply getReply
	if err := c.request(ctx, c.prefix+".get", getRequest{IDs: ids}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("presence get: %s", reply.Error)
	}
	return reply.Statuses, nil
}

// Subscribe registers interest in id with the presence service. The ack
// carries the subject's status at subscription time.
func (c *Client) Subscribe(ctx context.Context, id types.InternalID) (liveview.SubscriptionAck, error) {
	var reply subscribeReply
	if err := c.request(ctx, c.prefix+".subscribe", idRequest{ID: id}, &reply); err != nil {
		return liveview.SubscriptionAck{}, err
	}
	if reply.Error != "" {
		return liveview.SubscriptionAck{}, fmt.Errorf("presence subscribe for %s: %s", id, reply.Error)
	}
	return reply.SubscriptionAck, nil
}

// Unsubscribe withdraws interest in id.
func (c *Client) Unsubscribe(ctx context.Context, id types.InternalID) error {
	var reply unsubscribeReply
	if err := c.request(ctx, c.prefix+".unsubscribe", idRequest{ID: id}, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("presence unsubscribe for %s: %s", id, reply.Error)
	}
	return nil
}

func (c *Client) request(ctx context.Context, subject string, req, reply interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", subject, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return fmt.Errorf("presence request on %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("decoding reply from %s: %w", subject, err)
	}
	return nil
}
