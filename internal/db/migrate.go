package db

import (
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.ChangeLog{},
		&models.SyncState{},
		&models.NodeLease{},
		&models.Customer{},
		&models.Order{},
	)
}
