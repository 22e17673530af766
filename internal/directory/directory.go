// Package directory provides entity fetcher backends. Each backend performs
// the one-shot read of an entity's attributes by key; nothing here caches,
// the multiplexer fetches once per live view.
package directory

import (
	"context"
	"errors"

	"github.com/gftdcojp/presence-liveview/internal/types"
)

// ErrNotFound indicates the directory has no entity for the requested key.
var ErrNotFound = errors.New("directory: entity not found")

// Fetcher reads an entity's base attributes by key.
type Fetcher interface {
	Fetch(ctx context.Context, key types.Key) (types.Entity, error)
}
