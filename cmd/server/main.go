package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	_ "github.com/vissharm/ecommerce-app-user-service/docs" // swagger docs
	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
	"github.com/vissharm/ecommerce-app-user-service/internal/cache"
	"github.com/vissharm/ecommerce-app-user-service/internal/config"
	"github.com/vissharm/ecommerce-app-user-service/internal/db"
	"github.com/vissharm/ecommerce-app-user-service/internal/events"
	"github.com/vissharm/ecommerce-app-user-service/internal/handler"
	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
	"github.com/vissharm/ecommerce-app-user-service/internal/observability"
	"github.com/vissharm/ecommerce-app-user-service/internal/realtime"
	"github.com/vissharm/ecommerce-app-user-service/internal/repository"
	"github.com/vissharm/ecommerce-app-user-service/internal/router"
	"github.com/vissharm/ecommerce-app-user-service/internal/service"
)

const shutdownTimeout = 15 * time.Second

// @title User Service API
// @version 1.0
// @description Account registration, login and profile management with JWT authentication.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	checks := map[string]handler.Checker{}

	var accountRepo repository.AccountRepository
	if cfg.DBDriver == "memory" {
		logger.Warn(ctx, "using in-memory account store, data is lost on restart")
		accountRepo = repository.NewMemoryAccountRepository()
	} else {
		gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if cfg.ResetDB {
			logger.Warn(ctx, "RESET_DB=true detected, dropping accounts table")
		}
		if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
			return err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		checks["database"] = handler.CheckerFunc(sqlDB.PingContext)
		accountRepo = repository.NewAccountRepository(gormDB)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn(ctx, "redis ping failed, cache and token revocation degraded", "error", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventsEnabled {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		defer client.Close()
		publisher = events.NewAsynqPublisher(client, cfg.EventsQueue)
	}

	hasher, err := auth.NewHasher(cfg.HasherOptions())
	if err != nil {
		return err
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	tokenStore := auth.NewTokenStore(cacheClient)
	metrics := observability.NewMetrics()
	hub := realtime.NewHub(logger)

	accountService := service.NewAccountService(service.Options{
		Repository: accountRepo,
		Hasher:     hasher,
		Tokens:     jwtService,
		TokenStore: tokenStore,
		Cache:      cacheClient,
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     logger,
		Timeout:    cfg.RequestTimeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.Register(e, cfg, router.Dependencies{
		Accounts:   handler.NewAccountHandler(accountService, logger),
		Health:     handler.NewHealthHandler(checks),
		Tokens:     jwtService,
		TokenStore: tokenStore,
		Metrics:    metrics,
		Realtime:   hub,
		Logger:     logger,
	})

	logger.Info(ctx, "swagger documentation available", "url", swaggerURL(cfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.ServerPort
		logger.Info(gctx, "http server listening", "addr", addr, "environment", cfg.Environment, "db_driver", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down")
		hub.Close(shutdownCtx)
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func swaggerURL(cfg *config.Config) string {
	host := cfg.SwaggerHost
	if host == "" {
		host = "localhost:" + cfg.ServerPort
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return host + "/swagger/index.html"
}
