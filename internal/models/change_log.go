package models

import (
	"time"

	"gorm.io/datatypes"
)

// Change-log operations.
const (
	OpInsert = "I"
	OpUpdate = "U"
	OpDelete = "D"
)

// ChangeLog is the append-only record of committed row mutations, one entry
// per mutation, written by the change hooks and never updated afterwards.
// The autoincrement id doubles as the log's logical clock.
type ChangeLog struct {
	ID          int64             `gorm:"primaryKey;autoIncrement"`
	Tenant      string            `gorm:"type:varchar(64);not null;default:'default';index:idx_change_log_tenant_id"`
	Table       string            `gorm:"column:table_name;type:varchar(64);not null"`
	PK          int64             `gorm:"column:pk;not null"`
	Op          string            `gorm:"type:varchar(1);not null"`
	Version     int               `gorm:"not null"`
	OriginNode  *int              `gorm:"index"` // nil for legacy/unknown origin
	CommittedAt time.Time         `gorm:"not null;autoCreateTime"`
	Summary     datatypes.JSONMap `gorm:"type:jsonb"`
}

func (ChangeLog) TableName() string {
	return "change_log"
}
