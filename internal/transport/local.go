package transport

import "context"

// Local connects two sync engines in the same process, standing in for the
// HTTP round trip. Origin identifies the pushing side so the remote engine
// can tag applied entries and keep them out of later pulls by that node.
type Local struct {
	Peer   Peer
	Origin *int
}

func (t *Local) GetChangesSince(ctx context.Context, sinceID int64, limit int, excludeOrigin *int) ([]ChangeEntry, error) {
	return t.Peer.ChangesSince(ctx, sinceID, limit, excludeOrigin)
}

func (t *Local) ApplyChanges(ctx context.Context, entries []ChangeEntry) error {
	return t.Peer.ApplyChanges(ctx, entries, t.Origin)
}

func (t *Local) Ack(context.Context, int64) {}
