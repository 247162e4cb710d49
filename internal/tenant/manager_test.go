package tenant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	"github.com/systemizing-solutions/shuttle-bridge/internal/db"
	"github.com/systemizing-solutions/shuttle-bridge/internal/hook"
	"github.com/systemizing-solutions/shuttle-bridge/internal/ident"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	gormrepository "github.com/systemizing-solutions/shuttle-bridge/internal/repository/gorm"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	syncengine "github.com/systemizing-solutions/shuttle-bridge/internal/sync"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
)

// fileOpener opens one sqlite database per tenant under dir, the way the
// server composes the manager in database-per-tenant mode.
func fileOpener(t *testing.T, dir string, opens *int) tenant.Opener {
	t.Helper()
	ids, err := ident.New(1)
	if err != nil {
		t.Fatalf("ident: %v", err)
	}
	return func(name string) (*gorm.DB, error) {
		*opens++
		dbh, err := db.OpenDSN(config.DBConfig{Driver: "sqlite"}, filepath.Join(dir, name+".db"))
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { _ = db.Close(dbh) })
		if err := db.AutoMigrate(dbh); err != nil {
			return nil, err
		}
		if err := dbh.Gorm.Use(&hook.Plugin{IDs: ids}); err != nil {
			return nil, err
		}
		return dbh.Gorm, nil
	}
}

func tenantEngine(gdb *gorm.DB, name string) *syncengine.Engine {
	return &syncengine.Engine{
		DB:     gdb,
		Store:  gormrepository.New(gdb),
		Graph:  schema.NewGraph(models.CustomerCodec{}, models.OrderCodec{}),
		Policy: syncengine.VersionStrict,
		PeerID: "peer",
		Tenant: name,
	}
}

func TestManagerIsolatesTenantDatabases(t *testing.T) {
	opens := 0
	m := tenant.NewManager(fileOpener(t, t.TempDir(), &opens))
	ctx := context.Background()

	acmeDB, err := m.DB("acme")
	if err != nil {
		t.Fatalf("open acme: %v", err)
	}
	globexDB, err := m.DB("globex")
	if err != nil {
		t.Fatalf("open globex: %v", err)
	}
	if acmeDB == globexDB {
		t.Fatalf("tenants share a database handle")
	}
	if opens != 2 {
		t.Fatalf("opens=%d want 2", opens)
	}

	acmeCtx := tenant.With(ctx, "acme")
	if err := acmeDB.WithContext(acmeCtx).Create(&models.Customer{Name: "Ada"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	acmeEntries, err := tenantEngine(acmeDB, "acme").ChangesSince(acmeCtx, 0, 10, nil)
	if err != nil {
		t.Fatalf("acme changes: %v", err)
	}
	if len(acmeEntries) != 1 {
		t.Fatalf("acme entries=%d want 1", len(acmeEntries))
	}

	globexEntries, err := tenantEngine(globexDB, "globex").ChangesSince(tenant.With(ctx, "globex"), 0, 10, nil)
	if err != nil {
		t.Fatalf("globex changes: %v", err)
	}
	if len(globexEntries) != 0 {
		t.Fatalf("globex sees %d foreign entries", len(globexEntries))
	}
	var count int64
	if err := globexDB.Model(&models.Customer{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("globex store holds %d foreign rows", count)
	}
}

func TestManagerReusesOpenDatabases(t *testing.T) {
	opens := 0
	m := tenant.NewManager(fileOpener(t, t.TempDir(), &opens))

	first, err := m.DB("acme")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := m.DB("acme")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if first != second || opens != 1 {
		t.Fatalf("opens=%d, handle reused=%v", opens, first == second)
	}
}

func TestManagerRejectsUnsafeTenantNames(t *testing.T) {
	opens := 0
	m := tenant.NewManager(fileOpener(t, t.TempDir(), &opens))

	for _, name := range []string{"../x", "a/b", "a b", "a;drop", "no.dots"} {
		if _, err := m.DB(name); err == nil {
			t.Fatalf("tenant %q accepted", name)
		}
	}
	if opens != 0 {
		t.Fatalf("opener invoked %d times for invalid names", opens)
	}
}

func TestMiddlewareRejectsUnsafeTenantHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(tenant.Middleware(""))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": tenant.From(c.Request.Context())})
	})

	do := func(header, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/whoami"+query, nil)
		if header != "" {
			req.Header.Set(tenant.HeaderName, header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("../x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for traversal header", rec.Code)
	}
	if rec := do("", "?tenant=a/b"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400 for unsafe query tenant", rec.Code)
	}
	if rec := do("acme", ""); rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200 for valid tenant", rec.Code)
	}
	if rec := do("", ""); rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200 without tenant", rec.Code)
	}
}
