// Package transport defines how change batches and acknowledgements move
// between peers. The sync engine is agnostic to the variant behind the
// PeerTransport interface.
package transport

import "context"

// ChangeEntry is the wire form of one change-log entry. Data is null for
// deletes and carries the serialized row for inserts and updates; At is the
// ISO-8601 commit timestamp when known.
type ChangeEntry struct {
	ID      int64          `json:"id"`
	Table   string         `json:"table"`
	PK      int64          `json:"pk"`
	Op      string         `json:"op"`
	Version int            `json:"version"`
	Data    map[string]any `json:"data"`
	At      *string        `json:"at"`
}

// PeerTransport is the capability set a sync cycle needs from a remote
// counterpart. Ack is advisory; peers keep no server-side state for it.
type PeerTransport interface {
	GetChangesSince(ctx context.Context, sinceID int64, limit int, excludeOrigin *int) ([]ChangeEntry, error)
	ApplyChanges(ctx context.Context, entries []ChangeEntry) error
	Ack(ctx context.Context, lastSeenID int64)
}

// Peer is the serving side of the protocol, implemented by the sync engine.
// Local wraps it into an in-process PeerTransport.
type Peer interface {
	ChangesSince(ctx context.Context, sinceID int64, limit int, excludeOrigin *int) ([]ChangeEntry, error)
	ApplyChanges(ctx context.Context, entries []ChangeEntry, origin *int) error
}
