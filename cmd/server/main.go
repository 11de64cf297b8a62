package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/server"
	"github.com/Tyrowin/gochat-rooms/internal/store"
)

// Exit codes reported to the service manager.
const (
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GoChat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)
	ctx := context.Background()

	messages, err := store.Open(ctx, cfg.StoreConfig(), log)
	if err != nil {
		return exitConfig, fmt.Errorf("open message store: %w", err)
	}

	registry := chat.NewRegistry(cfg.RegistryConfig(log), log)
	svc := chat.NewService(registry, messages, cfg.SessionConfig(), log)
	srv := server.New(cfg, svc, log)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"gochat": func(ctx context.Context) error {
			return stop(ctx, log, httpServer, registry, srv, messages)
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, log)
	})

	select {
	case code := <-wait:
		if err := g.Wait(); err != nil {
			return exitRuntime, err
		}
		log.Info("GoChat stopped", "exit_code", code)
		return code, nil
	case <-gctx.Done():
		err := g.Wait()
		registry.Close()
		return exitRuntime, errors.Join(err, messages.Close())
	}
}

// stop closes the listener first so no session starts during shutdown, then
// the rooms, which disconnects every client, and finally the store once no
// session can write to it anymore.
func stop(ctx context.Context, log *slog.Logger, httpServer *http.Server, registry *chat.Registry, srv *server.Server, messages store.Store) error {
	log.Info("Graceful shutdown initiated...")
	httpErr := server.ShutdownServer(ctx, httpServer, log)

	registry.Close()
	connErr := srv.Wait(ctx)
	if connErr != nil {
		log.Warn("Some connections did not finish in time", "error", connErr)
	}

	storeErr := messages.Close()
	if storeErr != nil {
		log.Error("Error closing message store", "error", storeErr)
	}
	return errors.Join(httpErr, connErr, storeErr)
}
