package liveview

import (
	"context"
	"fmt"
	"sync"

	"github.com/gftdcojp/presence-liveview/internal/metrics"
	"github.com/gftdcojp/presence-liveview/internal/status"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MuxConfig holds dependencies for the multiplexer.
type MuxConfig struct {
	Fetcher  EntityFetcher
	Presence PresenceClient
	Events   EventSource
	Resolver KeyResolver

	// Cache, when set, receives every published snapshot (write-through,
	// best-effort).
	Cache SnapshotWriter

	// SubscriberBuffer is the per-subscriber channel depth.
	SubscriberBuffer int

	Logger *zap.Logger
}

// Mux owns the table of active live views. All table mutation is serialized
// through its lock, so concurrent first-subscribers for one key share a
// single entry (and a single remote subscription), and a subscriber can
// never attach to an entry that teardown has already removed.
//
// Lock order is always Mux.mu before entry.mu.
type Mux struct {
	fetcher  EntityFetcher
	presence PresenceClient
	events   EventSource
	resolver KeyResolver
	cache    SnapshotWriter
	buf      int
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[types.Key]*entry
	byID    map[types.InternalID]*entry
	closed  bool
}

// NewMux creates a new live view multiplexer.
func NewMux(cfg MuxConfig) *Mux {
	buf := cfg.SubscriberBuffer
	if buf <= 0 {
		buf = 16
	}
	return &Mux{
		fetcher:  cfg.Fetcher,
		presence: cfg.Presence,
		events:   cfg.Events,
		resolver: cfg.Resolver,
		cache:    cfg.Cache,
		buf:      buf,
		logger:   cfg.Logger,
		entries:  make(map[types.Key]*entry),
		byID:     make(map[types.InternalID]*entry),
	}
}

// LiveView returns a subscription to the shared live view for key, creating
// the view on first request. The subscription immediately replays the most
// recent snapshot when one exists; otherwise the initial snapshot arrives
// once the entity fetch and presence handshake resolve.
func (m *Mux) LiveView(key types.Key) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	e, ok := m.entries[key]
	if !ok {
		id := m.resolver.ToInternalID(key)
		buildCtx, cancel := context.WithCancel(context.Background())
		e = &entry{
			key:    key,
			id:     id,
			cancel: cancel,
			subs:   make(map[uuid.UUID]*Subscription),
		}
		m.entries[key] = e
		m.byID[id] = e
		metrics.ActiveEntries.Inc()

		m.logger.Debug("live view created",
			zap.String("key", string(key)),
			zap.String("internal_id", string(id)),
		)
		go m.buildEntry(buildCtx, e)
	}

	return e.attachLocked(m), nil
}

// buildEntry runs the initial segment: entity fetch and presence subscribe
// in parallel (neither depends on the other), then exactly one initial
// snapshot. Subscribe failure degrades the status to unknown; fetch failure
// fails the whole view. Updates are delivered separately by the dispatcher.
func (m *Mux) buildEntry(ctx context.Context, e *entry) {
	var (
		entity   types.Entity
		fetchErr error
		initial  = status.StatusUnknown
		subOK    bool
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		entity, fetchErr = m.fetcher.Fetch(ctx, e.key)
		if fetchErr != nil {
			metrics.FetchCalls.WithLabelValues("error").Inc()
			return
		}
		metrics.FetchCalls.WithLabelValues("ok").Inc()
	}()
	go func() {
		defer wg.Done()
		ack, err := m.presence.Subscribe(ctx, e.id)
		if err != nil {
			metrics.SubscribeCalls.WithLabelValues("error").Inc()
			m.logger.Warn("presence subscribe failed, degrading to unknown",
				zap.String("internal_id", string(e.id)),
				zap.Error(err),
			)
			return
		}
		metrics.SubscribeCalls.WithLabelValues("ok").Inc()
		subOK = true
		if raw, ok := ack.InitialStatus(); ok {
			initial = status.FromRaw(string(raw))
		}
	}()
	wg.Wait()

	// Register the remote subscription before checking for teardown, so
	// that whichever of (teardown, this goroutine) runs second releases it.
	e.mu.Lock()
	if subOK {
		e.subscribed = true
	}
	torn := e.torn
	e.mu.Unlock()
	if torn {
		if subOK {
			m.releaseSubscription(e)
		}
		return
	}

	if fetchErr != nil {
		m.failEntry(e, fmt.Errorf("fetching entity %q: %w", e.key, fetchErr))
		return
	}

	snap := types.NewSnapshot(entity, initial)

	e.mu.Lock()
	if e.torn {
		e.mu.Unlock()
		return
	}
	e.entity = entity
	e.ready = true
	e.publishLocked(snap)
	e.mu.Unlock()

	m.writeThrough(e.key, snap)
}

// failEntry delivers err to every attached subscriber and removes the entry.
// Only the initial fetch takes this path; other keys' entries are unaffected.
func (m *Mux) failEntry(e *entry, err error) {
	m.mu.Lock()
	e.mu.Lock()
	if e.torn {
		e.mu.Unlock()
		m.mu.Unlock()
		return
	}
	e.torn = true
	e.failed = err
	delete(m.entries, e.key)
	delete(m.byID, e.id)
	for id, sub := range e.subs {
		sub.err = err
		close(sub.ch)
		delete(e.subs, id)
		metrics.Subscribers.Dec()
	}
	e.refs = 0
	subscribed := e.subscribed
	e.mu.Unlock()
	m.mu.Unlock()

	metrics.ActiveEntries.Dec()
	m.logger.Warn("live view failed", zap.String("key", string(e.key)), zap.Error(err))

	e.cancel()
	if subscribed {
		go m.releaseSubscription(e)
	}
}

// detach removes one subscriber and, on the transition to zero, tears the
// entry down: the entry leaves the table synchronously, then the remote
// subscription is released in the background. An unsubscribe failure is
// swallowed (logged at warn); no observer remains to report it to.
func (m *Mux) detach(e *entry, s *Subscription) {
	m.mu.Lock()
	e.mu.Lock()

	if _, ok := e.subs[s.id]; !ok {
		// Already detached by entry failure or multiplexer shutdown.
		e.mu.Unlock()
		m.mu.Unlock()
		return
	}

	delete(e.subs, s.id)
	e.refs--
	close(s.ch)
	metrics.Subscribers.Dec()

	last := e.refs == 0
	if last {
		e.torn = true
		delete(m.entries, e.key)
		delete(m.byID, e.id)
	}
	subscribed := e.subscribed
	e.mu.Unlock()
	m.mu.Unlock()

	if !last {
		return
	}

	metrics.ActiveEntries.Dec()
	m.logger.Debug("live view torn down", zap.String("key", string(e.key)))

	e.cancel()
	if subscribed {
		go m.releaseSubscription(e)
	}
}

func (m *Mux) releaseSubscription(e *entry) {
	if err := m.presence.Unsubscribe(context.Background(), e.id); err != nil {
		metrics.UnsubscribeCalls.WithLabelValues("error").Inc()
		m.logger.Warn("presence unsubscribe failed",
			zap.String("internal_id", string(e.id)),
			zap.Error(err),
		)
		return
	}
	metrics.UnsubscribeCalls.WithLabelValues("ok").Inc()
}

// Run consumes the event source and routes each event to its entry. Events
// for subjects with no active entry are dropped. A single dispatch loop
// preserves the arrival order of updates within every key.
func (m *Mux) Run(ctx context.Context) error {
	events := m.events.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.dispatch(ev)
		}
	}
}

func (m *Mux) dispatch(ev types.Event) {
	m.mu.Lock()
	e, ok := m.byID[ev.Subject]
	m.mu.Unlock()
	if !ok {
		metrics.EventsDropped.WithLabelValues("no_entry").Inc()
		return
	}

	st := status.FromRaw(string(ev.Status))

	e.mu.Lock()
	if e.torn || !e.ready {
		e.mu.Unlock()
		metrics.EventsDropped.WithLabelValues("not_ready").Inc()
		return
	}
	snap := types.NewSnapshot(e.entity, st)
	e.publishLocked(snap)
	key := e.key
	e.mu.Unlock()

	metrics.EventsDispatched.Inc()
	m.writeThrough(key, snap)
}

// SelfSnapshot is the one-shot "me" path: entity fetch plus a single presence
// lookup, run in parallel. A Get failure or a missing id degrades the status
// to unknown; only the entity fetch can fail the call.
func (m *Mux) SelfSnapshot(ctx context.Context, key types.Key) (types.Snapshot, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return types.Snapshot{}, ErrClosed
	}

	id := m.resolver.ToInternalID(key)

	var (
		entity   types.Entity
		fetchErr error
		st       = status.StatusUnknown
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		entity, fetchErr = m.fetcher.Fetch(ctx, key)
	}()
	go func() {
		defer wg.Done()
		statuses, err := m.presence.Get(ctx, []types.InternalID{id})
		if err != nil {
			metrics.SelfRequests.WithLabelValues("degraded").Inc()
			m.logger.Warn("presence get failed, degrading to unknown",
				zap.String("internal_id", string(id)),
				zap.Error(err),
			)
			return
		}
		if raw, ok := statuses[id]; ok {
			st = status.FromRaw(string(raw))
		}
	}()
	wg.Wait()

	if fetchErr != nil {
		metrics.SelfRequests.WithLabelValues("error").Inc()
		return types.Snapshot{}, fmt.Errorf("fetching entity %q: %w", key, fetchErr)
	}

	metrics.SelfRequests.WithLabelValues("ok").Inc()
	return types.NewSnapshot(entity, st), nil
}

// ActiveViews reports the number of live entries, for the status API.
func (m *Mux) ActiveViews() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close tears down every entry and rejects further requests. Remote
// subscriptions are released best-effort before Close returns.
func (m *Mux) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	remaining := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		remaining = append(remaining, e)
	}
	m.entries = make(map[types.Key]*entry)
	m.byID = make(map[types.InternalID]*entry)
	m.mu.Unlock()

	for _, e := range remaining {
		e.mu.Lock()
		e.torn = true
		for id, sub := range e.subs {
			close(sub.ch)
			delete(e.subs, id)
			metrics.Subscribers.Dec()
		}
		e.refs = 0
		subscribed := e.subscribed
		e.mu.Unlock()

		metrics.ActiveEntries.Dec()
		e.cancel()
		if subscribed {
			m.releaseSubscription(e)
		}
	}
}

func (m *Mux) writeThrough(key types.Key, snap types.Snapshot) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Put(context.Background(), key, snap); err != nil {
		m.logger.Debug("snapshot cache write failed",
			zap.String("key", string(key)),
			zap.Error(err),
		)
	}
}
