package models

import "time"

// NodeLease maps a client-chosen stable device key to its leased node
// number. Both uniqueness constraints matter: the device-key one makes
// registration idempotent, the node-id one makes concurrent allocation races
// lose cleanly at the store.
type NodeLease struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	DeviceKey string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	NodeID    int       `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (NodeLease) TableName() string {
	return "node_registry"
}
