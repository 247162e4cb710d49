// Package sync orchestrates replication: it serializes outgoing change-log
// pages, applies incoming ones under a conflict policy and in schema order,
// and drives the resumable pull-then-push cycle against a peer transport.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/hook"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/repository"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
)

// ConflictPolicy decides whether an incoming write overwrites a local row.
type ConflictPolicy string

const (
	// VersionStrict discards incoming writes whose version is not strictly
	// newer than the local row's; the existing row wins ties.
	VersionStrict ConflictPolicy = "version_strict"
	// LastWriteWins always overwrites and keeps the higher version number.
	LastWriteWins ConflictPolicy = "last_write_wins"
)

// ParsePolicy maps a config string to a ConflictPolicy.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case VersionStrict, LastWriteWins:
		return ConflictPolicy(s), nil
	case "":
		return LastWriteWins, nil
	}
	return "", errors.New("sync: unknown conflict policy " + s)
}

// DefaultBatchSize caps a pull or push page when the caller passes zero.
const DefaultBatchSize = 1000

// Engine replicates one tenant's dataset against one peer. Instances are
// cheap and single-use; concurrent cycles against the same peer serialize on
// the SyncState row they share.
type Engine struct {
	DB     *gorm.DB
	Store  repository.Store
	Graph  *schema.Graph
	Policy ConflictPolicy
	PeerID string
	Tenant string
	NodeID *int // nil until the node registry leased a number
	Logger *zap.Logger
}

func (e *Engine) tenantID() string {
	if e.Tenant == "" {
		return tenant.Default
	}
	return e.Tenant
}

func (e *Engine) policy() ConflictPolicy {
	if e.Policy == "" {
		return LastWriteWins
	}
	return e.Policy
}

// WarnIfCyclic makes a schema cycle observable: the affected tables apply in
// unspecified relative order, which callers with cyclic schemas must handle
// by providing an explicit order upstream.
func WarnIfCyclic(g *schema.Graph, logger *zap.Logger) {
	if logger == nil || len(g.CyclicTables()) == 0 {
		return
	}
	logger.Warn("schema graph has a dependency cycle; apply order is unspecified for these tables",
		zap.Strings("tables", g.CyclicTables()))
}

// ChangesSince serves a change-log page as wire entries, ascending by id,
// excluding entries originated by excludeOrigin. Row data is read at serve
// time, so an entry for a since-deleted row carries null data.
func (e *Engine) ChangesSince(ctx context.Context, sinceID int64, limit int, excludeOrigin *int) ([]transport.ChangeEntry, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	changes, err := e.Store.ListChangesSince(ctx, repository.ListChangesParams{
		Tenant:        e.tenantID(),
		SinceID:       sinceID,
		Limit:         limit,
		ExcludeOrigin: excludeOrigin,
	})
	if err != nil {
		return nil, err
	}
	out := make([]transport.ChangeEntry, 0, len(changes))
	for _, ch := range changes {
		out = append(out, e.serialize(ctx, ch))
	}
	return out, nil
}

func (e *Engine) serialize(ctx context.Context, ch models.ChangeLog) transport.ChangeEntry {
	entry := transport.ChangeEntry{
		ID:      ch.ID,
		Table:   ch.Table,
		PK:      ch.PK,
		Op:      ch.Op,
		Version: ch.Version,
	}
	if !ch.CommittedAt.IsZero() {
		at := ch.CommittedAt.UTC().Format(time.RFC3339Nano)
		entry.At = &at
	}
	if ch.Op == models.OpDelete {
		return entry
	}
	codec, ok := e.Graph.Codec(ch.Table)
	if !ok {
		return entry
	}
	row, found, err := e.findRow(e.DB.WithContext(ctx), codec, ch.PK)
	if err != nil && e.Logger != nil {
		e.Logger.Warn("row fetch failed while serializing change",
			zap.String("table", ch.Table), zap.Int64("pk", ch.PK), zap.Error(err))
	}
	if found {
		if data, err := encodeRow(row); err == nil {
			entry.Data = data
		} else if e.Logger != nil {
			e.Logger.Warn("row encode failed",
				zap.String("table", ch.Table), zap.Int64("pk", ch.PK), zap.Error(err))
		}
	}
	return entry
}

// ApplyChanges applies a remote batch in one transaction: entries are
// partitioned by table, tables walk in schema order, entries within a table
// keep their batch order. Origin is the pushing node when known; re-logged
// entries are tagged with it so they are never served back to that node.
func (e *Engine) ApplyChanges(ctx context.Context, entries []transport.ChangeEntry, origin *int) error {
	ctx = e.applyContext(ctx, origin)
	return e.Store.InTx(ctx, func(tx *gorm.DB) error {
		return e.applyEntries(ctx, tx, entries)
	})
}

func (e *Engine) applyContext(ctx context.Context, origin *int) context.Context {
	ctx = tenant.With(ctx, e.tenantID())
	ctx = hook.WithApply(ctx)
	if origin != nil {
		ctx = hook.WithOrigin(ctx, *origin)
	}
	return ctx
}

func (e *Engine) applyEntries(ctx context.Context, tx *gorm.DB, entries []transport.ChangeEntry) error {
	byTable := make(map[string][]transport.ChangeEntry)
	for _, entry := range entries {
		byTable[entry.Table] = append(byTable[entry.Table], entry)
	}
	for _, table := range e.Graph.Order() {
		for _, entry := range byTable[table] {
			if err := e.applyOne(ctx, tx, entry); err != nil {
				return err
			}
		}
		delete(byTable, table)
	}
	for table := range byTable {
		if e.Logger != nil {
			e.Logger.Warn("dropping changes for unregistered table", zap.String("table", table))
		}
	}
	return nil
}

func (e *Engine) applyOne(ctx context.Context, tx *gorm.DB, entry transport.ChangeEntry) error {
	codec, ok := e.Graph.Codec(entry.Table)
	if !ok {
		return nil
	}
	tx = tx.WithContext(ctx)

	if entry.Op == models.OpDelete {
		row, found, err := e.findRow(tx, codec, entry.PK)
		if err != nil {
			return err
		}
		if !found {
			return nil // already gone; deletes are idempotent
		}
		return tx.Table(codec.Table()).Delete(row).Error
	}

	if entry.Data == nil {
		// A mixed-validity batch must not abort wholesale; the row is left
		// untouched and the condition surfaced as a warning.
		if e.Logger != nil {
			e.Logger.Warn("change entry carries no row data",
				zap.String("table", entry.Table),
				zap.Int64("pk", entry.PK),
				zap.String("op", entry.Op))
		}
		return nil
	}

	row, found, err := e.findRow(tx, codec, entry.PK)
	if err != nil {
		return err
	}

	if !found {
		fresh := codec.New()
		if err := decodeInto(fresh, entry.Data); err != nil {
			return e.warnDecode(entry, err)
		}
		fresh.SetRowID(entry.PK)
		fresh.SetRowVersion(entry.Version)
		return tx.Table(codec.Table()).Create(fresh).Error
	}

	local := row.RowVersion()
	if e.policy() == VersionStrict && entry.Version <= local {
		return nil // stale or already-seen write; the existing row wins ties
	}
	if err := decodeInto(row, entry.Data); err != nil {
		return e.warnDecode(entry, err)
	}
	row.SetRowID(entry.PK)
	if local > entry.Version {
		row.SetRowVersion(local)
	} else {
		row.SetRowVersion(entry.Version)
	}
	return tx.Table(codec.Table()).Save(row).Error
}

func (e *Engine) warnDecode(entry transport.ChangeEntry, err error) error {
	if e.Logger != nil {
		e.Logger.Warn("change entry data does not decode into row",
			zap.String("table", entry.Table),
			zap.Int64("pk", entry.PK),
			zap.Error(err))
	}
	return nil
}

func (e *Engine) findRow(tx *gorm.DB, codec schema.Codec, pk int64) (schema.Row, bool, error) {
	row := codec.New()
	err := tx.Table(codec.Table()).Where("id = ?", pk).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func encodeRow(row schema.Row) (map[string]any, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func decodeInto(row schema.Row, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, row)
}
