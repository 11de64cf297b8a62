// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the GoChat service.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds every runtime setting, read from the environment.
type Config struct {
	Port           string `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize int64  `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize int    `env:"SEND_BUFFER_SIZE,default=256"`

	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`

	HistoryLimit    int           `env:"HISTORY_LIMIT,default=30"`
	RoomEviction    bool          `env:"ROOM_EVICTION,default=true"`
	DisplayTimezone string        `env:"DISPLAY_TIMEZONE,default=Local"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT,default=5s"`

	StoreBackend string `env:"STORE_BACKEND,default=memory"`
	BadgerPath   string `env:"BADGER_PATH"`
	SQLitePath   string `env:"SQLITE_PATH,default=gochat.db"`
	RedisAddr    string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPrefix  string `env:"REDIS_PREFIX,default=gochat:"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
}

// LoadConfig reads the environment and fills in defaults for missing or
// out-of-range values.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return sanitizeConfig(Config{RoomEviction: true})
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if strings.TrimSpace(cfg.AllowedOrigins) == "" {
		cfg.AllowedOrigins = "http://localhost:8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}

	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}

	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = time.Second
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}

	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	if cfg.StoreBackend == "" {
		cfg.StoreBackend = store.BackendMemory
	}

	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "gochat.db"
	}

	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}

	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = "gochat:"
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	return cfg
}

// RateLimit groups the rate limit settings.
func (c Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{Burst: c.RateLimitBurst, RefillInterval: c.RateLimitRefillInterval}
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

// Location resolves DISPLAY_TIMEZONE. Unknown zones fall back to local time.
func (c Config) Location(log *slog.Logger) *time.Location {
	name := strings.TrimSpace(c.DisplayTimezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("Unknown display timezone, using local time", "timezone", name, "error", err)
		return time.Local
	}
	return loc
}

// StoreConfig selects the message store backend.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Backend:     c.StoreBackend,
		BadgerPath:  c.BadgerPath,
		SQLitePath:  c.SQLitePath,
		RedisAddr:   c.RedisAddr,
		RedisPrefix: c.RedisPrefix,
	}
}

// RegistryConfig configures the room registry.
func (c Config) RegistryConfig(log *slog.Logger) chat.RegistryConfig {
	return chat.RegistryConfig{
		BroadcastBuffer: c.SendBufferSize,
		EvictEmptyRooms: c.RoomEviction,
		Location:        c.Location(log),
	}
}

// SessionConfig configures chat sessions.
func (c Config) SessionConfig() chat.SessionConfig {
	return chat.SessionConfig{
		HistoryLimit: c.HistoryLimit,
		StoreTimeout: c.StoreTimeout,
	}
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
