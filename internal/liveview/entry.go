package liveview

import (
	"context"
	"sync"

	"github.com/gftdcojp/presence-liveview/internal/metrics"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/google/uuid"
)

// entry is the per-key shared stream. The table owns entries; consumers hold
// only Subscription handles. Lifecycle: created on the first subscriber,
// removed from the table exactly when the subscriber count returns to zero
// (or when the initial fetch fails). A torn-down entry is never revived; a
// later request for the key builds a fresh one.
type entry struct {
	key types.Key
	id  types.InternalID

	// cancel stops the build goroutine. Set once at creation.
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
	refs int

	// entity is the base record captured by the initial fetch. Update
	// snapshots reuse it; it is never refetched for this entry.
	entity types.Entity

	// last is the replay value handed to late subscribers.
	last *types.Snapshot

	// ready flips when the initial snapshot has been emitted. Events that
	// arrive earlier are dropped: the update segment starts only after the
	// initial segment completes.
	ready bool

	// subscribed records that the remote presence subscription was
	// established, so teardown knows whether there is one to release.
	subscribed bool

	// torn marks the entry as removed from the table. Guards against
	// publishes and attaches racing teardown.
	torn bool

	// failed holds the initial fetch error delivered to subscribers.
	failed error
}

// attachLocked adds a subscriber and replays the latest snapshot to it.
// Caller holds the table lock; the entry is guaranteed live.
func (e *entry) attachLocked(m *Mux) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		id:  uuid.New(),
		key: e.key,
		ch:  make(chan types.Snapshot, m.buf),
		mux: m,
		e:   e,
	}
	e.subs[sub.id] = sub
	e.refs++

	// Late joiner: hand over the most recent snapshot immediately rather
	// than waiting for the next change. The channel is fresh, so the
	// buffered send always succeeds.
	if e.last != nil {
		sub.ch <- *e.last
	}

	metrics.Subscribers.Inc()
	return sub
}

// publishLocked records snap as the replay value and fans it out. A full
// subscriber buffer sheds its oldest snapshot first: the stream carries
// state, not a log, so the latest value always gets through. Caller holds
// e.mu.
func (e *entry) publishLocked(snap types.Snapshot) {
	e.last = &snap
	for _, sub := range e.subs {
		select {
		case sub.ch <- snap:
			continue
		default:
		}
		select {
		case <-sub.ch:
			metrics.SnapshotsShed.Inc()
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
	metrics.SnapshotsPublished.Inc()
}
