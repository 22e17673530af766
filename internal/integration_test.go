package internal_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/cache"
	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/directory"
	"github.com/gftdcojp/presence-liveview/internal/liveview"
	"github.com/gftdcojp/presence-liveview/internal/presence"
	"github.com/gftdcojp/presence-liveview/internal/serve"
	"github.com/gftdcojp/presence-liveview/internal/status"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/gftdcojp/presence-liveview/pkg/plv"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// startEmbeddedNATS starts an embedded nats-server on a random port.
func startEmbeddedNATS(t *testing.T) (*server.Server, string) {
	t.Helper()

	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1, // random port
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create nats-server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats-server failed to start")
	}

	url := fmt.Sprintf("nats://127.0.0.1:%d", opts.Port)
	t.Cleanup(func() { ns.Shutdown() })
	return ns, url
}

// fakeDirectory answers directory.entity.get requests from a fixed table.
type fakeDirectory struct {
	entities map[string]types.Entity
}

func (f *fakeDirectory) start(t *testing.T, nc *nats.Conn) {
	t.Helper()
	sub, err := nc.Subscribe("directory.entity.get", func(msg *nats.Msg) {
		var req struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			msg.Respond([]byte(`{"error":"bad request"}`))
			return
		}
		entity, ok := f.entities[req.Key]
		if !ok {
			msg.Respond([]byte(`{"error":"not found"}`))
			return
		}
		data, _ := json.Marshal(entity)
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("starting fake directory: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
}

// fakePresence answers presence get/subscribe/unsubscribe requests and
// counts subscription traffic per id.
type fakePresence struct {
	mu           sync.Mutex
	statuses     map[string]string
	subscribes   map[string]int
	unsubscribes map[string]int
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		statuses:     make(map[string]string),
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
	}
}

func (f *fakePresence) start(t *testing.T, nc *nats.Conn) {
	t.Helper()

	getSub, err := nc.Subscribe("presence.get", func(msg *nats.Msg) {
		var req struct {
			IDs []string `json:"ids"`
		}
		json.Unmarshal(msg.Data, &req)

		f.mu.Lock()
		out := make(map[string]string)
		for _, id := range req.IDs {
			if raw, ok := f.statuses[id]; ok {
				out[id] = raw
			}
		}
		f.mu.Unlock()

		data, _ := json.Marshal(map[string]interface{}{"statuses": out})
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("starting fake presence get: %v", err)
	}
	t.Cleanup(func() { getSub.Unsubscribe() })

	subSub, err := nc.Subscribe("presence.subscribe", func(msg *nats.Msg) {
		var req struct {
			ID string `json:"id"`
		}
		json.Unmarshal(msg.Data, &req)

		f.mu.Lock()
		f.subscribes[req.ID]++
		raw, ok := f.statuses[req.ID]
		f.mu.Unlock()

		if !ok {
			msg.Respond([]byte(`{"responses":[]}`))
			return
		}
		data, _ := json.Marshal(map[string]interface{}{
			"responses": []map[string]interface{}{
				{"status": map[string]string{"status": raw}},
			},
		})
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("starting fake presence subscribe: %v", err)
	}
	t.Cleanup(func() { subSub.Unsubscribe() })

	unsubSub, err := nc.Subscribe("presence.unsubscribe", func(msg *nats.Msg) {
		var req struct {
			ID string `json:"id"`
		}
		json.Unmarshal(msg.Data, &req)

		f.mu.Lock()
		f.unsubscribes[req.ID]++
		f.mu.Unlock()

		msg.Respond([]byte(`{"ok":true}`))
	})
	if err != nil {
		t.Fatalf("starting fake presence unsubscribe: %v", err)
	}
	t.Cleanup(func() { unsubSub.Unsubscribe() })
}

func (f *fakePresence) subscribeCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes[id]
}

func (f *fakePresence) unsubscribeCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribes[id]
}

type testEnv struct {
	nc       *nats.Conn
	mux      *liveview.Mux
	presence *fakePresence
	cache    *cache.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	_, natsURL := startEmbeddedNATS(t)

	nc, err := nats.Connect(natsURL)
	if err != nil {
		t.Fatalf("connect to NATS: %v", err)
	}
	t.Cleanup(nc.Close)

	logger := zap.NewNop()

	dir := &fakeDirectory{entities: map[string]types.Entity{
		"Ada@Example.com": {ID: "u-ada", DisplayName: "Ada", Emails: []string{"ada@example.com"}},
	}}
	dir.start(t, nc)

	pres := newFakePresence()
	pres.statuses["u-ada"] = "active"
	pres.start(t, nc)

	presCfg := config.PresenceConfig{
		SubjectPrefix:  "presence",
		EventsSubject:  "presence.events.>",
		RequestTimeout: config.Duration(2 * time.Second),
		EventBuffer:    64,
	}
	dirCfg := config.DirectoryConfig{
		Backend:        "nats",
		SubjectPrefix:  "directory",
		RequestTimeout: config.Duration(2 * time.Second),
	}

	events := presence.NewEventStream(nc, presCfg, logger)

	cachePath := filepath.Join(t.TempDir(), "cache.db")
	cacheStore, err := cache.NewStore(cachePath, true, logger)
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { cacheStore.Close() })

	m := liveview.NewMux(liveview.MuxConfig{
		Fetcher:  directory.NewNATSFetcher(nc, dirCfg, logger),
		Presence: presence.NewClient(nc, presCfg, logger),
		Events:   events,
		Resolver: liveview.ResolverFunc(func(k types.Key) types.InternalID {
			// The directory knows keys verbatim; presence addresses the
			// internal directory id.
			if strings.EqualFold(string(k), "ada@example.com") {
				return "u-ada"
			}
			return types.InternalID(k)
		}),
		Cache:  cacheStore,
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go events.Run(ctx)
	go m.Run(ctx)
	t.Cleanup(m.Close)

	return &testEnv{nc: nc, mux: m, presence: pres, cache: cacheStore}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvSnapshot(t *testing.T, sub *liveview.Subscription) types.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		if !ok {
			t.Fatalf("stream closed: %v", sub.Err())
		}
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return types.Snapshot{}
}

func TestIntegration_LiveViewOverNATS(t *testing.T) {
	env := newTestEnv(t)

	sub, err := env.mux.LiveView("Ada@Example.com")
	if err != nil {
		t.Fatal(err)
	}

	snap := recvSnapshot(t, sub)
	if snap.DisplayName != "Ada" {
		t.Errorf("entity display name = %q, want Ada", snap.DisplayName)
	}
	if snap.Status != status.StatusActive {
		t.Errorf("initial status = %q, want active", snap.Status)
	}

	// Push a presence change through the real events subject.
	event, _ := json.Marshal(map[string]string{"subject": "u-ada", "status": "meeting"})
	if err := env.nc.Publish("presence.events.u-ada", event); err != nil {
		t.Fatal(err)
	}

	snap = recvSnapshot(t, sub)
	if snap.Status != status.StatusMeeting {
		t.Errorf("updated status = %q, want meeting", snap.Status)
	}
	if snap.DisplayName != "Ada" {
		t.Errorf("entity changed across update: %+v", snap.Entity)
	}

	if got := env.presence.subscribeCount("u-ada"); got != 1 {
		t.Errorf("subscribe count = %d, want 1", got)
	}

	sub.Close()
	waitFor(t, "unsubscribe", func() bool {
		return env.presence.unsubscribeCount("u-ada") == 1
	})
}

func TestIntegration_ResponderAndClient(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go serve.RunNATSResponder(ctx, env.nc, config.NATSResponderConfig{
		Enabled:       true,
		SubjectPrefix: "plv",
	}, env.mux, env.cache, zap.NewNop())

	client, err := plv.New(plv.Config{NC: env.nc, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	// Self: fresh directory fetch + presence get, no live view involved.
	var snap *plv.Snapshot
	waitFor(t, "responder", func() bool {
		snap, err = client.Self(context.Background(), "Ada@Example.com")
		return err == nil
	})
	if snap.DisplayName != "Ada" || snap.Status != "active" {
		t.Errorf("self snapshot = %+v", snap)
	}

	// Last: populate the cache through a live view, then read it back.
	sub, err := env.mux.LiveView("Ada@Example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	recvSnapshot(t, sub)

	waitFor(t, "cached snapshot", func() bool {
		last, err := client.Last(context.Background(), "Ada@Example.com")
		return err == nil && last.Status == "active"
	})
}

func TestIntegration_UnknownKeyFails(t *testing.T) {
	env := newTestEnv(t)

	sub, err := env.mux.LiveView("nobody@example.com")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected no snapshot for unknown key")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream close")
	}
	if sub.Err() == nil {
		t.Error("expected an error on the failed view")
	}
}
