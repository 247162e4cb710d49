package models

import "time"

// Base is embedded by every replicated entity. Ids come from the identity
// generator, never from the database; Version starts at 1 and is bumped by
// the change hooks on every real update. DeletedAt is a plain soft-delete
// marker, deliberately not gorm.DeletedAt so replication sees soft-deleted
// rows like any other update.
type Base struct {
	ID        int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Version   int        `gorm:"not null;default:1" json:"version"`
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

func (b *Base) RowID() int64 { return b.ID }

func (b *Base) SetRowID(id int64) { b.ID = id }

func (b *Base) RowVersion() int { return b.Version }

func (b *Base) SetRowVersion(v int) { b.Version = v }

// RowSummary is the small map of watched fields carried on change-log
// entries for cheap inspection without a full row fetch.
func (b *Base) RowSummary() map[string]any {
	out := map[string]any{
		"version":    b.Version,
		"updated_at": b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if b.DeletedAt != nil {
		out["deleted_at"] = b.DeletedAt.UTC().Format(time.RFC3339Nano)
	} else {
		out["deleted_at"] = nil
	}
	return out
}
