package liveview

import (
	"sync"

	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/google/uuid"
)

// Subscription is a consumer's handle on one key's live view. The channel
// delivers the initial snapshot followed by update snapshots in event order.
// It is closed when the consumer detaches, the view fails, or the
// multiplexer shuts down; after close, Err reports whether the view failed.
type Subscription struct {
	id  uuid.UUID
	key types.Key
	ch  chan types.Snapshot
	mux *Mux
	e   *entry

	once sync.Once

	// err is written under e.mu before the channel is closed.
	err error
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan types.Snapshot {
	return s.ch
}

// Key returns the key this subscription observes.
func (s *Subscription) Key() types.Key {
	return s.key
}

// Err returns the terminal error of the view, if any. It is meaningful only
// after C() is closed; a nil result means the stream ended cleanly.
func (s *Subscription) Err() error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.err
}

// Close detaches the consumer. Closing the last subscription for a key tears
// the shared view down and releases the remote presence subscription.
// Safe to call more than once and safe to call before the initial snapshot
// has resolved.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mux.detach(s.e, s)
	})
}
