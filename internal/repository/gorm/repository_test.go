package gormrepository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	"github.com/systemizing-solutions/shuttle-bridge/internal/db"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/repository"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbh, err := db.OpenDSN(config.DBConfig{Driver: "sqlite"}, filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(dbh) })
	if err := db.AutoMigrate(dbh); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(dbh.Gorm)
}

func saveState(t *testing.T, store *Store, state *models.SyncState) error {
	t.Helper()
	return store.InTx(context.Background(), func(tx *gorm.DB) error {
		return store.SaveSyncStateTx(context.Background(), tx, state)
	})
}

func TestSaveSyncStateRejectsRegression(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Two cycles load the same cursor before either persists.
	first, err := store.GetOrCreateSyncState(ctx, "", "peer")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	second, err := store.GetOrCreateSyncState(ctx, "", "peer")
	if err != nil {
		t.Fatalf("state: %v", err)
	}

	first.LastPulledChangeID = 50
	if err := saveState(t, store, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second.LastPulledChangeID = 42
	if err := saveState(t, store, second); !errors.Is(err, repository.ErrStaleSyncState) {
		t.Fatalf("err=%v want ErrStaleSyncState", err)
	}

	got, err := store.GetOrCreateSyncState(ctx, "", "peer")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.LastPulledChangeID != 50 {
		t.Fatalf("watermark regressed: %d want 50", got.LastPulledChangeID)
	}

	// Saving the same values again is fine; page replays do exactly that.
	first.LastPulledChangeID = 50
	if err := saveState(t, store, first); err != nil {
		t.Fatalf("idempotent save: %v", err)
	}
	first.LastPulledChangeID = 60
	if err := saveState(t, store, first); err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, err = store.GetOrCreateSyncState(ctx, "", "peer")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.LastPulledChangeID != 60 {
		t.Fatalf("last_pulled=%d want 60", got.LastPulledChangeID)
	}
}

func TestMaxChangeIDScopesTenantAndOrigin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	maxID, err := store.MaxChangeID(ctx, "", nil)
	if err != nil || maxID != 0 {
		t.Fatalf("empty log max=%d err=%v", maxID, err)
	}

	node := 3
	entries := []models.ChangeLog{
		{Tenant: tenant.Default, Table: "customers", PK: 1, Op: models.OpInsert, Version: 1},
		{Tenant: tenant.Default, Table: "customers", PK: 2, Op: models.OpInsert, Version: 1, OriginNode: &node},
		{Tenant: "acme", Table: "customers", PK: 3, Op: models.OpInsert, Version: 1},
	}
	for i := range entries {
		if err := store.db.Create(&entries[i]).Error; err != nil {
			t.Fatalf("seed entry %d: %v", i, err)
		}
	}

	maxID, err = store.MaxChangeID(ctx, tenant.Default, nil)
	if err != nil || maxID != entries[1].ID {
		t.Fatalf("default tenant max=%d err=%v want %d", maxID, err, entries[1].ID)
	}
	maxID, err = store.MaxChangeID(ctx, tenant.Default, &node)
	if err != nil || maxID != entries[1].ID {
		t.Fatalf("origin-scoped max=%d err=%v want %d", maxID, err, entries[1].ID)
	}
	other := 4
	maxID, err = store.MaxChangeID(ctx, tenant.Default, &other)
	if err != nil || maxID != 0 {
		t.Fatalf("foreign origin max=%d err=%v want 0", maxID, err)
	}
	maxID, err = store.MaxChangeID(ctx, "acme", nil)
	if err != nil || maxID != entries[2].ID {
		t.Fatalf("acme max=%d err=%v want %d", maxID, err, entries[2].ID)
	}
}
