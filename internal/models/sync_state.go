package models

// SyncState is the durable cursor for one (tenant, peer) relationship. Both
// watermarks are monotonically non-decreasing and only the sync engine moves
// them, in the same transaction as the changes they stand for.
type SyncState struct {
	Tenant             string `gorm:"type:varchar(64);primaryKey;default:'default'"`
	PeerID             string `gorm:"type:varchar(64);primaryKey"`
	LastPushedChangeID int64  `gorm:"not null;default:0"`
	LastPulledChangeID int64  `gorm:"not null;default:0"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
