// Package plv provides a client for the presence-liveview sidecar's NATS
// request-reply interface.
//
// The sidecar maintains shared live views of entity presence. This client
// covers the two one-shot lookups it exposes over NATS: a fresh snapshot
// assembled on demand, and the last snapshot the sidecar cached. For the
// continuously updating stream, connect to the sidecar's WebSocket endpoint
// instead.
//
// # Basic Usage
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//
//	client, _ := plv.New(plv.Config{NC: nc})
//
//	// Fresh snapshot: directory fetch + presence query
//	snap, _ := client.Self(ctx, "ada@example.com")
//	fmt.Println(snap.DisplayName, snap.Status)
//
//	// Last cached snapshot: served from the sidecar's local store
//	snap, _ = client.Last(ctx, "ada@example.com")
//
// # Sidecar Subjects
//
// Keys routinely contain characters that are not valid NATS subject tokens,
// so they travel in the JSON request payload rather than the subject:
//
//	plv.self    — {"key": "..."} → fresh snapshot
//	plv.last    — {"key": "..."} → last cached snapshot
//
// The subject prefix defaults to "plv" and can be configured via
// [Config.SubjectPrefix].
package plv
