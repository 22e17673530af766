package plv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config configures the presence live view client.
type Config struct {
	// NC is the NATS connection.
	NC *nats.Conn

	// SubjectPrefix is the prefix for sidecar request subjects.
	// Defaults to "plv".
	SubjectPrefix string

	// Timeout for sidecar requests. Defaults to 5s.
	Timeout time.Duration
}

// Snapshot is a point-in-time view of an entity and its presence status,
// as returned by the sidecar.
type Snapshot struct {
	ID          string    `json:"id"`
	Emails      []string  `json:"emails,omitempty"`
	DisplayName string    `json:"display_name"`
	GivenName   string    `json:"given_name,omitempty"`
	FamilyName  string    `json:"family_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	OrgID       string    `json:"org_id,omitempty"`
	Status      string    `json:"status"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Client queries a presence-liveview sidecar over NATS request-reply.
type Client struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

// New creates a new presence live view client.
func New(cfg Config) (*Client, error) {
	if cfg.NC == nil {
		return nil, fmt.Errorf("plv: NC (NATS connection) is required")
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "plv"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		nc:      cfg.NC,
		prefix:  prefix,
		timeout: timeout,
	}, nil
}

type snapshotRequest struct {
	Key string `json:"key"`
}

type snapshotResponse struct {
	Snapshot *Snapshot `json:"snapshot"`
	Error    string    `json:"error"`
}

// Self fetches a fresh snapshot for the key: the sidecar queries the
// directory and presence backends directly, without creating a live view.
func (c *Client) Self(ctx context.Context, key string) (*Snapshot, error) {
	return c.request(ctx, c.prefix+".self", key)
}

// Last returns the sidecar's cached last-known snapshot for the key.
func (c *Client) Last(ctx context.Context, key string) (*Snapshot, error) {
	return c.request(ctx, c.prefix+".last", key)
}

func (c *Client) request(ctx context.Context, subject, key string) (*Snapshot, error) {
	payload, err := json.Marshal(snapshotRequest{Key: key})
	if err != nil {
		return nil, fmt.Errorf("plv: encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("plv: request to %s: %w", subject, err)
	}

	var resp snapshotResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("plv: decoding response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("plv: sidecar error: %s", resp.Error)
	}
	if resp.Snapshot == nil {
		return nil, fmt.Errorf("plv: empty response from sidecar")
	}
	return resp.Snapshot, nil
}
