package liveview

import (
	"context"
	"fmt"
	"sync"

	"github.com/gftdcojp/presence-liveview/internal/types"
)

// mockFetcher is a controllable EntityFetcher for testing.
type mockFetcher struct {
	mu       sync.Mutex
	entities map[types.Key]types.Entity
	err      error
	calls    int

	// gate, when non-nil, blocks Fetch until closed.
	gate chan struct{}
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{entities: make(map[types.Key]types.Entity)}
}

func (m *mockFetcher) Fetch(ctx context.Context, key types.Key) (types.Entity, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	err := m.err
	entity, ok := m.entities[key]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return types.Entity{}, ctx.Err()
		}
	}
	if err != nil {
		return types.Entity{}, err
	}
	if !ok {
		return types.Entity{}, fmt.Errorf("no entity for key %s", key)
	}
	return entity, nil
}

func (m *mockFetcher) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockPresence is a thread-safe PresenceClient test double that records
// every subscribe and unsubscribe.
type mockPresence struct {
	mu           sync.Mutex
	ackStatus    types.RawStatus
	emptyAck     bool
	statuses     map[types.InternalID]types.RawStatus
	subscribeErr error
	unsubErr     error
	getErr       error
	subscribes   []types.InternalID
	unsubscribes []types.InternalID

	// unsubSeen receives one value per Unsubscribe call, so tests can wait
	// for the fire-and-forget teardown path.
	unsubSeen chan types.InternalID
}

func newMockPresence(ack types.RawStatus) *mockPresence {
	return &mockPresence{
		ackStatus: ack,
		statuses:  make(map[types.InternalID]types.RawStatus),
		unsubSeen: make(chan types.InternalID, 16),
	}
}

func (m *mockPresence) Get(ctx context.Context, ids []types.InternalID) (map[types.InternalID]types.RawStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[types.InternalID]types.RawStatus)
	for _, id := range ids {
		if raw, ok := m.statuses[id]; ok {
			out[id] = raw
		}
	}
	return out, nil
}

func (m *mockPresence) Subscribe(ctx context.Context, id types.InternalID) (SubscriptionAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribes = append(m.subscribes, id)
	if m.subscribeErr != nil {
		return SubscriptionAck{}, m.subscribeErr
	}
	if m.emptyAck {
		return SubscriptionAck{}, nil
	}
	return SubscriptionAck{
		Responses: []AckResponse{{Status: AckStatus{Status: m.ackStatus}}},
	}, nil
}

func (m *mockPresence) Unsubscribe(ctx context.Context, id types.InternalID) error {
	m.mu.Lock()
	m.unsubscribes = append(m.unsubscribes, id)
	err := m.unsubErr
	m.mu.Unlock()
	m.unsubSeen <- id
	return err
}

func (m *mockPresence) subscribeCount(id types.InternalID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subscribes {
		if s == id {
			n++
		}
	}
	return n
}

func (m *mockPresence) unsubscribeCount(id types.InternalID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.unsubscribes {
		if s == id {
			n++
		}
	}
	return n
}

// mockEvents is an EventSource fed by tests.
type mockEvents struct {
	ch chan types.Event
}

func newMockEvents() *mockEvents {
	return &mockEvents{ch: make(chan types.Event)}
}

func (m *mockEvents) Events() <-chan types.Event {
	return m.ch
}

func (m *mockEvents) emit(subject types.InternalID, raw types.RawStatus) {
	m.ch <- types.Event{Subject: subject, Status: raw}
}

// mockCache records write-through snapshots.
type mockCache struct {
	mu    sync.Mutex
	puts  []types.Key
	snaps map[types.Key]types.Snapshot
}

func newMockCache() *mockCache {
	return &mockCache{snaps: make(map[types.Key]types.Snapshot)}
}

func (m *mockCache) Put(_ context.Context, key types.Key, snap types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, key)
	m.snaps[key] = snap
	return nil
}

func (m *mockCache) latest(key types.Key) (types.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[key]
	return snap, ok
}
