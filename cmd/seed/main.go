package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
	"github.com/vissharm/ecommerce-app-user-service/internal/config"
	"github.com/vissharm/ecommerce-app-user-service/internal/db"
	apperrors "github.com/vissharm/ecommerce-app-user-service/internal/errors"
	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
	"github.com/vissharm/ecommerce-app-user-service/internal/repository"
	"github.com/vissharm/ecommerce-app-user-service/internal/service"
)

// SeedAccount is one entry of the seed file.
type SeedAccount struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Contact  *string `json:"contact,omitempty"`
}

func main() {
	file := flag.String("file", "cmd/seed/accounts.json", "path to a JSON array of demo accounts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	if err := run(ctx, cfg, logger, *file); err != nil {
		logger.Error(ctx, "seed failed", "file", *file, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, file string) error {
	accounts, err := readSeedFile(file)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	logger.Info(ctx, "loaded seed accounts", "count", len(accounts))

	var repo repository.AccountRepository
	if cfg.DBDriver == "memory" {
		repo = repository.NewMemoryAccountRepository()
	} else {
		gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return fmt.Errorf("database handle: %w", err)
		}
		defer sqlDB.Close()
		if err := db.Migrate(gormDB, false); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		repo = repository.NewAccountRepository(gormDB)
	}

	hasher, err := auth.NewHasher(cfg.HasherOptions())
	if err != nil {
		return fmt.Errorf("init hasher: %w", err)
	}

	svc := service.NewAccountService(service.Options{
		Repository: repo,
		Hasher:     hasher,
		Tokens:     auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
		Logger:     logger,
		Timeout:    cfg.RequestTimeout,
	})

	created, skipped, err := seedAccounts(ctx, svc, accounts)
	if err != nil {
		return fmt.Errorf("seed accounts (created %d, skipped %d): %w", created, skipped, err)
	}
	logger.Info(ctx, "seed completed", "created", created, "skipped", skipped)
	return nil
}

func readSeedFile(path string) ([]SeedAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var accounts []SeedAccount
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return accounts, nil
}

// seedAccounts registers each account through the service. Accounts whose
// email is already taken are skipped so the seed can be re-run.
func seedAccounts(ctx context.Context, svc service.AccountService, accounts []SeedAccount) (created, skipped int, err error) {
	for _, a := range accounts {
		_, err := svc.Register(ctx, service.RegisterInput{
			Name:     a.Name,
			Email:    a.Email,
			Password: a.Password,
			Contact:  a.Contact,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, apperrors.ErrDuplicateEmail):
			skipped++
		default:
			return created, skipped, fmt.Errorf("register %s: %w", a.Email, err)
		}
	}
	return created, skipped, nil
}
