package hook

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	"github.com/systemizing-solutions/shuttle-bridge/internal/db"
	"github.com/systemizing-solutions/shuttle-bridge/internal/ident"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbh, err := db.OpenDSN(config.DBConfig{Driver: "sqlite"}, filepath.Join(t.TempDir(), "hook.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(dbh) })
	if err := db.AutoMigrate(dbh); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ids, err := ident.New(1)
	if err != nil {
		t.Fatalf("ident: %v", err)
	}
	if err := dbh.Gorm.Use(&Plugin{IDs: ids}); err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	return dbh.Gorm
}

func changeEntries(t *testing.T, gdb *gorm.DB) []models.ChangeLog {
	t.Helper()
	var entries []models.ChangeLog
	if err := gdb.Order("id asc").Find(&entries).Error; err != nil {
		t.Fatalf("list change log: %v", err)
	}
	return entries
}

func TestCreateAssignsIdentityAndLogsInsert(t *testing.T) {
	gdb := newTestDB(t)

	cust := models.Customer{Name: "Ada", Status: "active"}
	if err := gdb.Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if cust.ID == 0 {
		t.Fatalf("id not assigned")
	}
	if ident.NodeOf(cust.ID) != 1 {
		t.Fatalf("id node=%d want 1", ident.NodeOf(cust.ID))
	}
	if cust.Version != 1 {
		t.Fatalf("version=%d want 1", cust.Version)
	}

	entries := changeEntries(t, gdb)
	if len(entries) != 1 {
		t.Fatalf("entries=%d want 1", len(entries))
	}
	e := entries[0]
	if e.Op != models.OpInsert || e.Table != "customers" || e.PK != cust.ID || e.Version != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.OriginNode != nil {
		t.Fatalf("origin=%v want nil for local mutation", *e.OriginNode)
	}
	if e.Tenant != tenant.Default {
		t.Fatalf("tenant=%q want %q", e.Tenant, tenant.Default)
	}
	if e.Summary == nil {
		t.Fatalf("summary missing")
	}
}

func TestSaveBumpsVersionAndLogsUpdate(t *testing.T) {
	gdb := newTestDB(t)

	cust := models.Customer{Name: "Ada"}
	if err := gdb.Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	cust.Name = "Grace"
	if err := gdb.Save(&cust).Error; err != nil {
		t.Fatalf("save: %v", err)
	}
	if cust.Version != 2 {
		t.Fatalf("version=%d want 2", cust.Version)
	}

	entries := changeEntries(t, gdb)
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	if entries[1].Op != models.OpUpdate || entries[1].Version != 2 {
		t.Fatalf("unexpected update entry %+v", entries[1])
	}
}

func TestMapUpdateBumpsVersion(t *testing.T) {
	gdb := newTestDB(t)

	cust := models.Customer{Name: "Ada"}
	if err := gdb.Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	err := gdb.Model(&cust).Updates(map[string]any{"name": "Grace"}).Error
	if err != nil {
		t.Fatalf("updates: %v", err)
	}

	var got models.Customer
	if err := gdb.Where("id = ?", cust.ID).Take(&got).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("version=%d want 2", got.Version)
	}
	if got.Name != "Grace" {
		t.Fatalf("name=%q want Grace", got.Name)
	}
}

func TestBookkeepingOnlyUpdateEmitsNothing(t *testing.T) {
	gdb := newTestDB(t)

	cust := models.Customer{Name: "Ada"}
	if err := gdb.Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	err := gdb.Model(&cust).Updates(map[string]any{"updated_at": time.Now().UTC()}).Error
	if err != nil {
		t.Fatalf("updates: %v", err)
	}

	var got models.Customer
	if err := gdb.Where("id = ?", cust.ID).Take(&got).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("version=%d want 1", got.Version)
	}
	if entries := changeEntries(t, gdb); len(entries) != 1 {
		t.Fatalf("entries=%d want only the insert", len(entries))
	}
}

func TestDeleteLogsDelete(t *testing.T) {
	gdb := newTestDB(t)

	cust := models.Customer{Name: "Ada"}
	if err := gdb.Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gdb.Delete(&cust).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}

	entries := changeEntries(t, gdb)
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	if entries[1].Op != models.OpDelete || entries[1].PK != cust.ID {
		t.Fatalf("unexpected delete entry %+v", entries[1])
	}
}

func TestApplyContextSkipsVersionBump(t *testing.T) {
	gdb := newTestDB(t)

	cust := models.Customer{Name: "Ada"}
	if err := gdb.Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx := WithApply(context.Background())
	cust.Name = "Grace"
	cust.Version = 5
	if err := gdb.WithContext(ctx).Save(&cust).Error; err != nil {
		t.Fatalf("save: %v", err)
	}

	var got models.Customer
	if err := gdb.Where("id = ?", cust.ID).Take(&got).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Version != 5 {
		t.Fatalf("version=%d want explicit 5", got.Version)
	}
	entries := changeEntries(t, gdb)
	if entries[len(entries)-1].Version != 5 {
		t.Fatalf("entry version=%d want 5", entries[len(entries)-1].Version)
	}
}

func TestContextTagsOriginAndTenant(t *testing.T) {
	gdb := newTestDB(t)

	ctx := tenant.With(WithOrigin(context.Background(), 7), "acme")
	cust := models.Customer{Name: "Ada"}
	if err := gdb.WithContext(ctx).Create(&cust).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	entries := changeEntries(t, gdb)
	if len(entries) != 1 {
		t.Fatalf("entries=%d want 1", len(entries))
	}
	e := entries[0]
	if e.OriginNode == nil || *e.OriginNode != 7 {
		t.Fatalf("origin=%v want 7", e.OriginNode)
	}
	if e.Tenant != "acme" {
		t.Fatalf("tenant=%q want acme", e.Tenant)
	}
}
