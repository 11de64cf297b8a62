//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Package store persists chat messages and serves room history pages.
//
// Every backend hands out message ids that grow with creation time across
// all rooms, so an id doubles as the pagination cursor. Fetch results are
// always ordered oldest first.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrStore wraps every failure to reach or write to a backend.
	ErrStore = errors.New("message store error")
	// ErrEmptyContent is returned by Append for blank message content.
	ErrEmptyContent = errors.New("message content is empty")
)

// Message is an immutable chat message as persisted by a Store.
type Message struct {
	ID        uint64    `json:"id"`
	Room      string    `json:"room"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence contract used by chat sessions.
type Store interface {
	// Append persists a new message and returns it with its id and timestamp set.
	Append(ctx context.Context, room, author, content string) (Message, error)
	// FetchLatest returns up to limit of the newest messages of room, oldest first.
	FetchLatest(ctx context.Context, room string, limit int) ([]Message, error)
	// FetchBefore returns up to limit messages of room with an id strictly
	// lower than beforeID, oldest first.
	FetchBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]Message, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	BadgerPath  string
	SQLitePath  string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		log.Info("Using in-memory message store")
		return NewMemoryStore(), nil
	case BackendBadger:
		log.Info("Opening badger message store", "path", cfg.BadgerPath)
		return OpenBadgerStore(cfg.BadgerPath, log)
	case BackendSQLite:
		log.Info("Opening sqlite message store", "path", cfg.SQLitePath)
		return OpenSQLiteStore(cfg.SQLitePath)
	case BackendRedis:
		log.Info("Connecting to redis message store", "addr", cfg.RedisAddr)
		return OpenRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: %w", ErrStore, ErrEmptyContent)
	}
	return nil
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
