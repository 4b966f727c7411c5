package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/notify"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/router"
	"go-auth-service/internal/service"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	userRepo := repository.NewUserRepository(db.Pool)
	slog.Info("database ready")

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	cleanup := []func(){backgroundCancel, db.Close}

	var ledger service.RevocationLedger
	switch cfg.LedgerBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			backgroundCancel()
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cleanup = append(cleanup, func() { _ = client.Close() })
		ledger = repository.NewRedisRevocationLedger(client)
		slog.Info("revocation ledger on redis", "addr", cfg.RedisAddr)
	default:
		pgLedger := repository.NewRevocationRepository(db.Pool)
		go pgLedger.StartGC(backgroundCtx, cfg.LedgerGCInterval)
		ledger = pgLedger
		slog.Info("revocation ledger on postgres", "gc_interval", cfg.LedgerGCInterval.String())
	}

	var verifier service.FederatedVerifier = service.DisabledVerifier{}
	if cfg.FederatedTokenInfoURL != "" {
		verifier = service.NewTokenInfoVerifier(cfg.FederatedTokenInfoURL)
		slog.Info("federated login enabled", "tokeninfo", cfg.FederatedTokenInfoURL)
	}

	bus := notify.NewBus()
	mailer := notify.NewLogMailer(bus)
	go mailer.Run(backgroundCtx)

	codec := service.NewTokenCodec(
		cfg.AccessSecret, cfg.RefreshSecret, cfg.ResetSecret,
		cfg.AccessTTL, cfg.RefreshTTL, cfg.ResetTTL,
		nil,
	)
	authService := service.NewAuthService(codec, userRepo, ledger, verifier, bus, cfg.BcryptCost, nil)
	guard := middleware.NewSessionGuard(codec, ledger, userRepo, nil)

	cookies := handler.CookieConfig{
		Secure:      cfg.Production(),
		AccessTTL:   cfg.AccessTTL,
		RefreshTTL:  cfg.RefreshTTL,
		RefreshPath: "/api/v1/auth",
	}
	authHandler := handler.NewAuthHandler(authService, cookies)
	userHandler := handler.NewUserHandler(userRepo)

	appRouter := router.New(cfg, guard, router.Handlers{
		Auth: authHandler,
		User: userHandler,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		db:           db,
		cleanupFuncs: cleanup,
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
