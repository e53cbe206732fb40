package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"

	"github.com/vissharm/ecommerce-app-user-service/internal/auth"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"mysql"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"user:password@tcp(localhost:3306)/users?charset=utf8mb4&parseTime=True&loc=Local"`
	ResetDB     bool   `envconfig:"RESET_DB" default:"false"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPass string `envconfig:"REDIS_PASSWORD"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// Password hashing work factor. bcrypt is the default; argon2id is accepted
	// for new hashes while existing hashes of either kind keep verifying.
	HashAlgorithm     string `envconfig:"HASH_ALGORITHM" default:"bcrypt"`
	BcryptCost        int    `envconfig:"BCRYPT_COST" default:"10"`
	Argon2MemoryKiB   uint32 `envconfig:"ARGON2_MEMORY_KIB" default:"65536"`
	Argon2Iterations  uint32 `envconfig:"ARGON2_ITERATIONS" default:"3"`
	Argon2Parallelism uint8  `envconfig:"ARGON2_PARALLELISM" default:"2"`
	HashWorkers       int    `envconfig:"HASH_WORKERS" default:"0"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	AuthRateLimit  int           `envconfig:"AUTH_RATE_LIMIT" default:"20"`

	EventsEnabled bool   `envconfig:"EVENTS_ENABLED" default:"true"`
	EventsQueue   string `envconfig:"EVENTS_QUEUE" default:"users"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	SwaggerHost string `envconfig:"SWAGGER_HOST"`
}

// Load builds Config from environment with sensible defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = runtime.NumCPU()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot safely run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret must be provided")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	switch c.HashAlgorithm {
	case "bcrypt":
		if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
			return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case "argon2id":
		if c.Argon2MemoryKiB == 0 || c.Argon2Iterations == 0 || c.Argon2Parallelism == 0 {
			return errors.New("argon2 parameters must be non-zero")
		}
	default:
		return fmt.Errorf("unsupported hash algorithm %q", c.HashAlgorithm)
	}
	switch c.DBDriver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Environment == "production"
}

// HasherOptions builds the password hasher settings shared by every binary.
func (c *Config) HasherOptions() auth.HasherOptions {
	defaults := auth.DefaultArgon2Params()
	return auth.HasherOptions{
		Algorithm:  c.HashAlgorithm,
		BcryptCost: c.BcryptCost,
		Argon2: auth.Argon2Params{
			Memory:      c.Argon2MemoryKiB,
			Iterations:  c.Argon2Iterations,
			Parallelism: c.Argon2Parallelism,
			SaltLength:  defaults.SaltLength,
			KeyLength:   defaults.KeyLength,
		},
		Workers: c.HashWorkers,
	}
}
