// Package liveview multiplexes live presence views. For each requested key it
// composes a one-shot entity fetch, a presence subscribe handshake, and the
// shared presence event stream into a single ordered stream of snapshots,
// shared by every consumer of that key. The remote subscription is created on
// the first consumer and released when the last one detaches.
package liveview

import (
	"context"
	"errors"

	"github.com/gftdcojp/presence-liveview/internal/types"
)

// ErrClosed is returned by LiveView and SelfSnapshot after Close.
var ErrClosed = errors.New("liveview: multiplexer closed")

// EntityFetcher performs the one-shot read of an entity's directory
// attributes. Implementations live in internal/directory.
type EntityFetcher interface {
	Fetch(ctx context.Context, key types.Key) (types.Entity, error)
}

// SubscriptionAck is the presence service's response to a subscribe request.
// The first response carries the subject's status at subscription time.
type SubscriptionAck struct {
	Responses []AckResponse `json:"responses"`
}

type AckResponse struct {
	Status AckStatus `json:"status"`
}

type AckStatus struct {
	Status types.RawStatus `json:"status"`
}

// InitialStatus extracts the first status payload from the ack, if present.
func (a SubscriptionAck) InitialStatus() (types.RawStatus, bool) {
	if len(a.Responses) == 0 {
		return "", false
	}
	return a.Responses[0].Status.Status, true
}

// PresenceClient is the subscribe/unsubscribe/get surface of the remote
// presence service. All three calls may fail; the multiplexer decides per
// call site whether a failure propagates, degrades, or is swallowed.
type PresenceClient interface {
	Get(ctx context.Context, ids []types.InternalID) (map[types.InternalID]types.RawStatus, error)
	Subscribe(ctx context.Context, id types.InternalID) (SubscriptionAck, error)
	Unsubscribe(ctx context.Context, id types.InternalID) error
}

// EventSource is the shared, never-completing push stream of presence change
// notifications. The channel is owned by the source; the multiplexer only
// receives from it.
type EventSource interface {
	Events() <-chan types.Event
}

// KeyResolver derives the protocol identifier the presence service addresses
// an entity by from its public key. Pure and synchronous.
type KeyResolver interface {
	ToInternalID(key types.Key) types.InternalID
}

// ResolverFunc adapts a plain function to the KeyResolver interface.
type ResolverFunc func(key types.Key) types.InternalID

func (f ResolverFunc) ToInternalID(key types.Key) types.InternalID {
	return f(key)
}

// SnapshotWriter receives every published snapshot for best-effort
// persistence. Write failures never affect the live stream.
type SnapshotWriter interface {
	Put(ctx context.Context, key types.Key, snap types.Snapshot) error
}
