package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/plugin"
	"github.com/queryrun/server/internal/scripting"
	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/handlers"
	"github.com/queryrun/server/pkg/api/middleware"
	"github.com/queryrun/server/pkg/config"
	"github.com/queryrun/server/pkg/router"
)

func main() {
	log.Println("🚀 Starting query server...")

	configPath := os.Getenv("QUERY_SERVER_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	secret := []byte(cfg.TokenSecret)

	log.Printf("📂 DBs path: %s", cfg.DBsPath)
	if err := os.MkdirAll(cfg.DBsPath, 0o755); err != nil {
		log.Fatalf("❌ Failed to create dbs path: %v", err)
	}

	systemDBs, err := openSystemDBs(ctx, cfg.DBsPath, secret)
	if err != nil {
		log.Fatalf("❌ Failed to open system databases: %v", err)
	}
	defer systemDBs.closeAll()

	if err := bootstrapAdmin(ctx, systemDBs.config, cfg.AdminEmail, cfg.AdminPass, secret); err != nil {
		log.Fatalf("❌ Failed to bootstrap admin user: %v", err)
	}

	l1, err := cache.NewL1(0)
	if err != nil {
		log.Fatalf("❌ Failed to build L1 cache: %v", err)
	}

	invalidator, err := cache.NewInvalidator(ctx, systemDBs.cacheInval, systemDBs.cacheFunction, l1)
	if err != nil {
		log.Fatalf("❌ Failed to start cache invalidator: %v", err)
	}
	invalidatorCtx, stopInvalidator := context.WithCancel(ctx)
	defer stopInvalidator()
	go invalidator.Run(invalidatorCtx)
	log.Println("🔄 Cache invalidation poll loop started")

	pluginGate, err := plugin.NewGate(ctx, systemDBs.plugin)
	if err != nil {
		log.Fatalf("❌ Failed to start plugin gate: %v", err)
	}
	defer pluginGate.Close(ctx)

	openUserDB := func(ctx context.Context, name string) (*storage.DB, error) {
		return storage.OpenUser(ctx, cfg.DBsPath, name, secret)
	}
	engine := scripting.NewEngine(openUserDB, pluginGate, l1, secret, 8)

	deps := &handlers.Deps{
		ConfigDB:   systemDBs.config,
		AssetDB:    systemDBs.asset,
		FunctionDB: systemDBs.function,
		PluginDB:   systemDBs.plugin,
		CacheDB:    systemDBs.cacheFunction,
		InvalDB:    systemDBs.cacheInval,
		DBsPath:    cfg.DBsPath,
		Secret:     secret,
		L1:         l1,
		PluginGate: pluginGate,
		Engine:     engine,
	}

	if !cfg.Log.Console {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())

	registerAdminRoutes(r, deps)

	dispatcher := router.New(cfg.ProxyEnabled, cfg.ProxyPort, cfg.AppEnabled,
		systemDBs.function, systemDBs.cacheFunction, systemDBs.cacheInval, engine, l1)
	r.NoRoute(dispatcher.Handle)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("🌐 Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Graceful shutdown failed: %v", err)
	}
}

func registerAdminRoutes(r *gin.Engine, deps *handlers.Deps) {
	r.GET("/_/healthcheck", handlers.Healthcheck)

	userTokenHandler := handlers.NewUserHandler(deps)
	r.POST("/_/user/token", userTokenHandler.IssueToken)
	r.POST("/_/user/token/value", userTokenHandler.Value)

	admin := r.Group("/_")
	admin.Use(middleware.Auth(deps.ConfigDB, deps.Secret))
	{
		assetHandler := handlers.NewAssetHandler(deps)
		admin.GET("/asset/:name", assetHandler.Serve)

		queryHandler := handlers.NewQueryHandler(deps)
		admin.POST("/query", queryHandler.Run)

		functionHandler := handlers.NewFunctionHandler(deps)
		admin.GET("/function", functionHandler.List)
	}

	// The builder/admin-CRUD endpoints spec.md §4.1 names explicitly
	// additionally require one of the create_user/create_token feature
	// flags to be on.
	gated := r.Group("/_")
	gated.Use(middleware.Auth(deps.ConfigDB, deps.Secret))
	gated.Use(middleware.RequireFeatureFlag(deps.ConfigDB, "create_user", "create_token"))
	{
		assetHandler := handlers.NewAssetHandler(deps)
		gated.POST("/asset-builder", assetHandler.Build)
		gated.DELETE("/asset-builder", assetHandler.Delete)

		functionHandler := handlers.NewFunctionHandler(deps)
		gated.POST("/function-builder", functionHandler.Build)
		gated.DELETE("/function", functionHandler.Delete)

		pluginHandler := handlers.NewPluginHandler(deps)
		gated.POST("/plugin-builder", pluginHandler.Build)
		gated.DELETE("/plugin-builder", pluginHandler.Delete)

		migrationHandler := handlers.NewMigrationHandler(deps)
		gated.POST("/migration", migrationHandler.Run)

		branchHandler := handlers.NewBranchHandler(deps)
		gated.POST("/branch", branchHandler.Create)
		gated.GET("/branch", branchHandler.List)
		gated.DELETE("/branch", branchHandler.Delete)

		tokenHandler := handlers.NewTokenHandler(deps)
		gated.POST("/token", tokenHandler.Create)
		gated.GET("/token", tokenHandler.List)
		gated.DELETE("/token", tokenHandler.Delete)

		userHandler := handlers.NewUserHandler(deps)
		gated.POST("/user", userHandler.Create)
	}
}

type systemDBs struct {
	config        *storage.DB
	asset         *storage.DB
	function      *storage.DB
	plugin        *storage.DB
	cacheFunction *storage.DB
	cacheInval    *storage.DB
}

func (s *systemDBs) closeAll() {
	for _, db := range []*storage.DB{s.config, s.asset, s.function, s.plugin, s.cacheFunction, s.cacheInval} {
		if db != nil {
			_ = db.Close()
		}
	}
}

func openSystemDBs(ctx context.Context, dbsPath string, secret []byte) (*systemDBs, error) {
	open := func(name string) (*storage.DB, error) {
		db, err := storage.Open(ctx, dbsPath, name, secret)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureSchema(ctx, db, name); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	configDB, err := open(storage.ConfigDB)
	if err != nil {
		return nil, err
	}
	assetDB, err := open(storage.AssetDB)
	if err != nil {
		return nil, err
	}
	functionDB, err := open(storage.FunctionDB)
	if err != nil {
		return nil, err
	}
	pluginDB, err := open(storage.PluginDB)
	if err != nil {
		return nil, err
	}
	cacheFunctionDB, err := open(storage.CacheFunctionDB)
	if err != nil {
		return nil, err
	}
	cacheInvalDB, err := open(storage.CacheInvalDB)
	if err != nil {
		return nil, err
	}

	return &systemDBs{
		config:        configDB,
		asset:         assetDB,
		function:      functionDB,
		plugin:        pluginDB,
		cacheFunction: cacheFunctionDB,
		cacheInval:    cacheInvalDB,
	}, nil
}

// bootstrapAdmin seeds the admin user and a never-expiring admin token on
// first boot (spec.md §8 scenario A). Whether bootstrap already ran is
// decided by the presence of an admin row, not by the create_user/
// create_token feature flags: those flags are legitimately togglable by an
// admin afterward (spec.md §3), so reusing one as a "done" sentinel would
// make flipping it off brick the next restart on a UNIQUE violation.
func bootstrapAdmin(ctx context.Context, configDB *storage.DB, email, password string, secret []byte) error {
	var existing int
	if err := configDB.GetContext(ctx, &existing,
		"SELECT COUNT(*) FROM _config_user WHERE admin = 1"); err != nil {
		return fmt.Errorf("check existing admin: %w", err)
	}
	if existing > 0 {
		return nil
	}

	hash, err := authn.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	userUUID := uuid.NewString()

	tx, err := configDB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO _config_user (uuid, email, password_hash, admin) VALUES (?, ?, ?, 1)",
		userUUID, email, hash); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}

	now := time.Now().Unix()
	token, err := authn.MintToken(secret, authn.IssuerUserToken, now, now)
	if err != nil {
		return fmt.Errorf("mint admin token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO _config_user_token (user_uuid, token, expiration_date, write, updated_at) VALUES (?, ?, ?, 1, ?)
`, userUUID, token, now, now); err != nil {
		return fmt.Errorf("insert admin token: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO _config_option (name, value) VALUES ('create_user', '1')"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO _config_option (name, value) VALUES ('create_token', '1')"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("👤 Admin user bootstrapped: %s", email)
	return nil
}
