package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	cronrunner "github.com/systemizing-solutions/shuttle-bridge/internal/cron"
	"github.com/systemizing-solutions/shuttle-bridge/internal/db"
	"github.com/systemizing-solutions/shuttle-bridge/internal/device"
	"github.com/systemizing-solutions/shuttle-bridge/internal/handler"
	"github.com/systemizing-solutions/shuttle-bridge/internal/hook"
	"github.com/systemizing-solutions/shuttle-bridge/internal/ident"
	"github.com/systemizing-solutions/shuttle-bridge/internal/logger"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/registry"
	gormrepository "github.com/systemizing-solutions/shuttle-bridge/internal/repository/gorm"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	syncengine "github.com/systemizing-solutions/shuttle-bridge/internal/sync"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
)

// serverNode is the server's own writer number. Client leases start at 1.
const serverNode = 0

func main() {
	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfgPath := os.Getenv("SB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("SB_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	graph := schema.NewGraph(models.CustomerCodec{}, models.OrderCodec{})
	syncengine.WarnIfCyclic(graph, log)

	policy, err := syncengine.ParsePolicy(cfg.Sync.Policy)
	if err != nil {
		log.Fatal("invalid sync policy", zap.String("policy", cfg.Sync.Policy), zap.Error(err))
	}

	switch mode {
	case "serve":
		runServer(cfg, log, graph, policy)
	case "sync":
		runClientSync(cfg, log, graph, policy)
	case "register":
		runRegister(cfg, log)
	default:
		log.Fatal("unknown mode (want serve, sync or register)", zap.String("mode", mode))
	}
}

func runServer(cfg config.Config, log *zap.Logger, graph *schema.Graph, policy syncengine.ConflictPolicy) {
	ids, err := ident.New(serverNode)
	if err != nil {
		log.Fatal("id generator init failed", zap.Error(err))
	}
	plugin := &hook.Plugin{IDs: ids, Logger: log}

	databasePerTenant := strings.EqualFold(cfg.Tenancy.Mode, "database") && cfg.DB.DSNTemplate != ""

	var shared *gorm.DB
	openTenant := func(t string) (*gorm.DB, error) {
		if !databasePerTenant && shared != nil {
			return shared, nil
		}
		dsn := cfg.DB.DSN
		if databasePerTenant {
			dsn = fmt.Sprintf(cfg.DB.DSNTemplate, t)
		}
		dbh, err := db.OpenDSN(cfg.DB, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(dbh); err != nil {
			return nil, err
		}
		if err := dbh.Gorm.Use(plugin); err != nil {
			return nil, err
		}
		return dbh.Gorm, nil
	}
	manager := tenant.NewManager(openTenant)

	defaultDB, err := manager.DB(tenant.Default)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	if !databasePerTenant {
		shared = defaultDB
	}

	// Leases live in the default store regardless of tenancy mode; a node
	// number identifies a physical writer, not a tenant.
	registrySvc := &registry.Service{Store: gormrepository.New(defaultDB), Logger: log}

	nodeID := serverNode
	provider := func(ctx context.Context) (*syncengine.Engine, error) {
		t := tenant.From(ctx)
		gdb, err := manager.DB(t)
		if err != nil {
			return nil, err
		}
		return &syncengine.Engine{
			DB:     gdb,
			Store:  gormrepository.New(gdb),
			Graph:  graph,
			Policy: policy,
			PeerID: cfg.Sync.PeerID,
			Tenant: t,
			NodeID: &nodeID,
			Logger: log,
		}, nil
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(tenant.Middleware(cfg.Tenancy.Header))

	healthHandler := &handler.HealthHandler{DB: defaultDB}
	healthHandler.Register(engine)
	nodeHandler := &handler.NodeHandler{Registry: registrySvc}
	nodeHandler.Register(engine)
	syncHandler := &handler.SyncHandler{Engines: provider, Logger: log}
	syncHandler.Register(engine)
	datasetHandler := &handler.DatasetHandler{Manager: manager, Logger: log}
	datasetHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled && cfg.Sync.PeerURL != "" {
		cronRunner := cronrunner.New(log, ctx)
		httpClient := &http.Client{Timeout: cfg.Sync.Timeout}
		peer := transport.NewHTTP(httpClient, cfg.Sync.PeerURL, &nodeID, log)
		_, err := cronRunner.Add(cfg.Cron.SyncCycle, func(ctx context.Context) {
			eng, err := provider(ctx)
			if err != nil {
				log.Warn("cron sync engine init failed", zap.Error(err))
				return
			}
			if _, err := eng.PullThenPush(ctx, peer, cfg.Sync.BatchSize); err != nil {
				log.Warn("cron sync cycle failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Warn("cron register sync cycle failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runClientSync(cfg config.Config, log *zap.Logger, graph *schema.Graph, policy syncengine.ConflictPolicy) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.Sync.Timeout}
	dm, err := device.NewManager(cfg.Client.ConfigPath, httpClient)
	if err != nil {
		log.Fatal("device config load failed", zap.Error(err))
	}
	nodeID, err := dm.EnsureNodeID(ctx, cfg.Client.ServerURL)
	if err != nil {
		log.Fatal("node registration failed", zap.Error(err))
	}

	ids, err := ident.New(nodeID)
	if err != nil {
		log.Fatal("id generator init failed", zap.Error(err))
	}
	dbh, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbh)
	if err := db.AutoMigrate(dbh); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}
	if err := dbh.Gorm.Use(&hook.Plugin{IDs: ids, Logger: log}); err != nil {
		log.Fatal("hook install failed", zap.Error(err))
	}

	eng := &syncengine.Engine{
		DB:     dbh.Gorm,
		Store:  gormrepository.New(dbh.Gorm),
		Graph:  graph,
		Policy: policy,
		PeerID: cfg.Sync.PeerID,
		Tenant: tenant.Default,
		NodeID: &nodeID,
		Logger: log,
	}
	peer := transport.NewHTTP(httpClient, cfg.Client.ServerURL, &nodeID, log)

	res, err := eng.PullThenPush(ctx, peer, cfg.Sync.BatchSize)
	if err != nil {
		log.Fatal("sync cycle failed",
			zap.Int("pulled", res.Pulled), zap.Int("pushed", res.Pushed), zap.Error(err))
	}
	log.Info("sync cycle complete",
		zap.Int("node_id", nodeID),
		zap.Int("pulled", res.Pulled),
		zap.Int("pushed", res.Pushed))
}

func runRegister(cfg config.Config, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Sync.Timeout)
	defer cancel()

	dm, err := device.NewManager(cfg.Client.ConfigPath, &http.Client{Timeout: cfg.Sync.Timeout})
	if err != nil {
		log.Fatal("device config load failed", zap.Error(err))
	}
	nodeID, err := dm.EnsureNodeID(ctx, cfg.Client.ServerURL)
	if err != nil {
		log.Fatal("node registration failed", zap.Error(err))
	}
	log.Info("node registered",
		zap.String("device_key", dm.DeviceKey()),
		zap.Int("node_id", nodeID))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Tenant")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
