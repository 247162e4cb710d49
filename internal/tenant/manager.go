package tenant

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Opener opens (and migrates) the database belonging to one tenant.
type Opener func(tenant string) (*gorm.DB, error)

// Manager implements database-per-tenant isolation: each tenant gets its own
// store, change log and watermark table, opened lazily on first use.
type Manager struct {
	mu   sync.Mutex
	open Opener
	dbs  map[string]*gorm.DB
}

func NewManager(open Opener) *Manager {
	return &Manager{open: open, dbs: make(map[string]*gorm.DB)}
}

func (m *Manager) DB(tenant string) (*gorm.DB, error) {
	if tenant == "" {
		tenant = Default
	}
	if !ValidName(tenant) {
		return nil, fmt.Errorf("tenant: invalid name %q", tenant)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.dbs[tenant]; ok {
		return db, nil
	}
	db, err := m.open(tenant)
	if err != nil {
		return nil, err
	}
	m.dbs[tenant] = db
	return db, nil
}
