package transport

import (
	"context"
	"sync"
)

// InMemory is a PeerTransport backed by a shared in-memory entry list, used
// for testing and in-process composition. Entries carry no origin on the
// wire, so the exclusion filter does not apply here.
type InMemory struct {
	mu      sync.Mutex
	entries []ChangeEntry
}

func NewInMemory(entries []ChangeEntry) *InMemory {
	return &InMemory{entries: entries}
}

func (t *InMemory) GetChangesSince(_ context.Context, sinceID int64, limit int, _ *int) ([]ChangeEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ChangeEntry
	for _, e := range t.entries {
		if e.ID <= sinceID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *InMemory) ApplyChanges(_ context.Context, entries []ChangeEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entries...)
	return nil
}

func (t *InMemory) Ack(context.Context, int64) {}

// Entries returns a copy of the accumulated list.
func (t *InMemory) Entries() []ChangeEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ChangeEntry(nil), t.entries...)
}
