package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/config"
	"ghginventory.org/internal/demo"
	"ghginventory.org/internal/httpapi"
	"ghginventory.org/internal/obs"
	"ghginventory.org/internal/registry"
	"ghginventory.org/internal/store/pg"
	"ghginventory.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger, err := obs.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		obs.Logger().Fatal("build logger", zap.Error(err))
	}
	defer obs.SetLogger(logger)()
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.SetBuildInfo(version, commit)

	var (
		store registry.Store
		db    *sql.DB
	)
	if cfg.Database.DSN != "" {
		pgStore, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		defer pgStore.Close()
		store, db = pgStore, pgStore.DB()
	} else {
		logger.Warn("no database configured, using in-memory registry")
		store = registry.NewInMemory()
	}

	if cfg.Bootstrap.Email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		root, created, err := auth.EnsureRoot(ctx, store, auth.RootAccount{
			Email:       cfg.Bootstrap.Email,
			Password:    cfg.Bootstrap.Password,
			Name:        cfg.Bootstrap.Name,
			CompanyName: cfg.Bootstrap.CompanyName,
		})
		cancel()
		if err != nil {
			logger.Fatal("bootstrap root account", zap.Error(err))
		}
		if created {
			logger.Info("root account created", zap.Int64("user_id", root.ID), zap.Int64("company_id", root.CompanyID))
		}
	}

	if cfg.Bootstrap.DemoPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		loaded, err := demo.Load(ctx, store, demo.RegistryScenario(), cfg.Bootstrap.DemoPassword)
		cancel()
		if err != nil {
			logger.Fatal("load demo data", zap.Error(err))
		}
		logger.Info("demo data loaded", zap.Int("companies", len(loaded.Companies)), zap.Int("users", len(loaded.Users)))
	}

	authSvc, err := auth.NewService(store,
		auth.WithTokenSecret(cfg.Auth.TokenSecret),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithAbilityOptions(ability.WithObserver(obs.RecordDecision)),
	)
	if err != nil {
		logger.Fatal("init auth", zap.Error(err))
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(store, authSvc, stream.New(),
		httpapi.WithReadyProbe(probe),
		httpapi.WithVersion(version),
		httpapi.WithCORSOrigins(cfg.CORSOrigins...),
		httpapi.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		// No WriteTimeout: the ability stream is long-lived.
	}

	grpcSvc := httpapi.NewGRPCServer(authSvc, probe)
	grpcSrv := grpcSvc.Register()
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	logger.Info("starting ghg-inventory api",
		zap.String("version", version),
		zap.String("http_addr", srv.Addr),
		zap.String("grpc_addr", cfg.GRPC.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc serve", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-ticker.C:
			grpcSvc.RefreshHealth(ctx)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	obs.SetReady(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
}
