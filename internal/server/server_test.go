package server

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/store"
	"github.com/Tyrowin/gochat-rooms/internal/testhelpers"
)

type testEnv struct {
	url      string
	server   *Server
	registry *chat.Registry
	store    store.Store
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = testhelpers.TestOrigin
	cfg.DisplayTimezone = "UTC"
	cfg.RateLimitBurst = 100
	cfg.StoreTimeout = time.Second
	return cfg
}

// newTestEnv runs the full stack on an in-memory store behind httptest.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	log := testLogger()
	messages := store.NewMemoryStore()
	registry := chat.NewRegistry(cfg.RegistryConfig(log), log)
	svc := chat.NewService(registry, messages, cfg.SessionConfig(), log)
	srv := New(cfg, svc, log)

	httpServer := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		httpServer.Close()
		registry.Close()
		_ = messages.Close()
	})

	return &testEnv{url: httpServer.URL, server: srv, registry: registry, store: messages}
}
