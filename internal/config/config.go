// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	JWT         JWTConfig
	HTTP        HTTPConfig
	DB          DBConfig
	Redis       RedisConfig
	UserService UserServiceConfig
	Log         LogConfig

	PasswordHashAlgorithm string `env:"PASSWORD_HASH_ALGORITHM" envDefault:"SHA-256"`
	GRPCAddr              string `env:"GRPC_ADDR" envDefault:":9090"`
}

// JWTConfig holds the signing secret and token lifetimes.
type JWTConfig struct {
	Secret     string        `env:"JWT_SECRET,required,unset"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TOKEN_TTL" envDefault:"168h"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"authservice"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	RateBurst       int           `env:"HTTP_RATE_BURST" envDefault:"20"`
	RatePerSec      float64       `env:"HTTP_RATE_PER_SEC" envDefault:"10"`
	MaxBodyBytes    int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DBConfig selects the credential store. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN          string `env:"DB_DSN"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	AutoMigrate  bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

type RedisConfig struct {
	URL     string        `env:"REDIS_URL"`
	RoleTTL time.Duration `env:"REDIS_ROLE_CACHE_TTL" envDefault:"10m"`
}

// UserServiceConfig points at the downstream profile service and tunes its circuit breaker.
type UserServiceConfig struct {
	URL     string        `env:"USER_SERVICE_URL" envDefault:"http://localhost:8081"`
	Path    string        `env:"USER_SERVICE_PATH" envDefault:"/api/v1/users"`
	Timeout time.Duration `env:"USER_SERVICE_TIMEOUT" envDefault:"5s"`

	BreakerFailureRate   float64       `env:"USER_SERVICE_BREAKER_FAILURE_RATE" envDefault:"0.5"`
	BreakerWindow        int           `env:"USER_SERVICE_BREAKER_WINDOW" envDefault:"10"`
	BreakerMinCalls      int           `env:"USER_SERVICE_BREAKER_MIN_CALLS" envDefault:"5"`
	BreakerOpenTimeout   time.Duration `env:"USER_SERVICE_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerHalfOpenCalls int           `env:"USER_SERVICE_BREAKER_HALF_OPEN_CALLS" envDefault:"3"`
}

type LogConfig struct {
	Level        string        `env:"LOG_LEVEL" envDefault:"info"`
	Development  bool          `env:"LOG_DEV" envDefault:"false"`
	File         string        `env:"LOG_FILE"`
	MaxAge       time.Duration `env:"LOG_MAX_AGE" envDefault:"168h"`
	RotationTime time.Duration `env:"LOG_ROTATION_TIME" envDefault:"24h"`
}

// Load reads .env if present, then the environment, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.JWT.Secret = strings.TrimSpace(c.JWT.Secret)
	c.DB.DSN = strings.TrimSpace(c.DB.DSN)
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.UserService.URL = strings.TrimRight(strings.TrimSpace(c.UserService.URL), "/")
	c.PasswordHashAlgorithm = strings.ToUpper(strings.TrimSpace(c.PasswordHashAlgorithm))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttls must be positive"))
	} else if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TOKEN_TTL must be shorter than JWT_REFRESH_TOKEN_TTL"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.HTTP.RateBurst <= 0 || c.HTTP.RatePerSec <= 0 {
		errs = append(errs, errors.New("HTTP rate limit must be positive"))
	}
	if c.UserService.URL == "" {
		errs = append(errs, errors.New("USER_SERVICE_URL is required"))
	}
	us := c.UserService
	if us.BreakerFailureRate <= 0 || us.BreakerFailureRate > 1 {
		errs = append(errs, errors.New("USER_SERVICE_BREAKER_FAILURE_RATE must be within (0,1]"))
	}
	if us.BreakerWindow <= 0 || us.BreakerMinCalls <= 0 || us.BreakerMinCalls > us.BreakerWindow {
		errs = append(errs, errors.New("USER_SERVICE_BREAKER_MIN_CALLS must be within 1..USER_SERVICE_BREAKER_WINDOW"))
	}
	if us.BreakerOpenTimeout <= 0 || us.BreakerHalfOpenCalls <= 0 {
		errs = append(errs, errors.New("breaker open timeout and half-open calls must be positive"))
	}
	return errors.Join(errs...)
}
