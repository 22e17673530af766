package types

import (
	"time"

	"github.com/gftdcojp/presence-liveview/internal/status"
)

// Key is the public-facing entity identifier consumers use, typically an
// email address or directory id. It is opaque to the core.
type Key string

// InternalID is the protocol-specific identifier derived from a Key. The
// presence service and its event stream address entities by InternalID.
type InternalID string

// RawStatus is a presence status value as it appears on the wire, before
// mapping into the closed status enumeration.
type RawStatus string

// Entity holds the directory attributes of a remote entity. An Entity is
// fetched once when a live view is created and never mutated by presence
// updates; only an explicit refetch produces a new one.
type Entity struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails,omitempty"`
	DisplayName string   `json:"display_name"`
	GivenName   string   `json:"given_name,omitempty"`
	FamilyName  string   `json:"family_name,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	OrgID       string   `json:"org_id,omitempty"`
}

// Event is a single presence change notification from the shared event
// stream, tagged with the subject it concerns.
type Event struct {
	Subject InternalID `json:"subject"`
	Status  RawStatus  `json:"status"`
}

// Snapshot is the unit of emission to consumers: the entity attributes
// captured at view creation combined with the latest known status.
type Snapshot struct {
	Entity
	Status     status.Status `json:"status"`
	ObservedAt time.Time     `json:"observed_at"`
}

// NewSnapshot assembles a Snapshot from an entity and a status. The status
// fully replaces whatever was there before; entity fields are carried as-is.
func NewSnapshot(e Entity, s status.Status) Snapshot {
	return Snapshot{Entity: e, Status: s, ObservedAt: time.Now().UTC()}
}
