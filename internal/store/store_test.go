package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		BackendMemory: func(t *testing.T) Store {
			return NewMemoryStore()
		},
		BackendBadger: func(t *testing.T) Store {
			s, err := OpenBadgerStore(t.TempDir(), slog.Default())
			require.NoError(t, err)
			return s
		},
		BackendSQLite: func(t *testing.T) Store {
			s, err := OpenSQLiteStore(":memory:")
			require.NoError(t, err)
			return s
		},
		BackendRedis: func(t *testing.T) Store {
			addr := os.Getenv("REDIS_ADDR")
			if addr == "" {
				addr = "localhost:6379"
			}
			client := redis.NewClient(&redis.Options{Addr: addr})
			if err := client.Ping(context.Background()).Err(); err != nil {
				_ = client.Close()
				t.Skipf("Redis not available at %s: %v", addr, err)
			}
			prefix := "gochat-test:" + uuid.NewString() + ":"
			t.Cleanup(func() { cleanupKeys(client, prefix+"*") })
			return NewRedisStore(client, prefix)
		},
	}
}

func cleanupKeys(client *redis.Client, pattern string) {
	ctx := context.Background()
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// forEachBackend runs fn against a fresh store of every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer func() { require.NoError(t, s.Close()) }()
			fn(t, s)
		})
	}
}

func appendN(t *testing.T, s Store, room string, n int) []Message {
	t.Helper()
	messages := make([]Message, 0, n)
	for i := 1; i <= n; i++ {
		msg, err := s.Append(context.Background(), room, "alice", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		messages = append(messages, msg)
	}
	return messages
}

func ids(messages []Message) []uint64 {
	out := make([]uint64, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func TestStore_Append_Assigns_Increasing_Ids(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		ctx := context.Background()

		first, err := s.Append(ctx, "r1", "alice", "hi")
		req.NoError(err)
		second, err := s.Append(ctx, "r2", "bob", "hello")
		req.NoError(err)

		req.Positive(first.ID)
		req.Greater(second.ID, first.ID)
		req.Equal("r1", first.Room)
		req.Equal("alice", first.Author)
		req.Equal("hi", first.Content)
		req.False(first.CreatedAt.IsZero())
		req.False(second.CreatedAt.Before(first.CreatedAt))
	})
}

func TestStore_Append_Rejects_Empty_Content(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		ctx := context.Background()

		for _, content := range []string{"", "   ", "\n\t"} {
			_, err := s.Append(ctx, "r1", "alice", content)
			req.ErrorIs(err, ErrEmptyContent)
			req.ErrorIs(err, ErrStore)
		}

		messages, err := s.FetchLatest(ctx, "r1", 30)
		req.NoError(err)
		req.Empty(messages)
	})
}

func TestStore_FetchLatest_Unknown_Room_Is_Empty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)

		messages, err := s.FetchLatest(context.Background(), "nobody-here", 30)
		req.NoError(err)
		req.NotNil(messages)
		req.Empty(messages)
	})
}

func TestStore_FetchLatest_Returns_Newest_Oldest_First(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		stored := appendN(t, s, "r1", 45)
		appendN(t, s, "other", 3)

		messages, err := s.FetchLatest(context.Background(), "r1", 30)
		req.NoError(err)
		req.Len(messages, 30)
		req.Equal(ids(stored[15:]), ids(messages))
		for _, m := range messages {
			req.Equal("r1", m.Room)
		}
	})
}

func TestStore_FetchBefore_Pages_Backwards(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		ctx := context.Background()
		stored := appendN(t, s, "r1", 45)

		latest, err := s.FetchLatest(ctx, "r1", 30)
		req.NoError(err)

		older, err := s.FetchBefore(ctx, "r1", latest[0].ID, 30)
		req.NoError(err)
		req.Len(older, 15)
		req.Equal(ids(stored[:15]), ids(older))

		none, err := s.FetchBefore(ctx, "r1", older[0].ID, 30)
		req.NoError(err)
		req.NotNil(none)
		req.Empty(none)
	})
}

func TestStore_FetchBefore_Never_Returns_Cursor_Or_Newer(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		stored := appendN(t, s, "r1", 40)

		for _, cursor := range []uint64{0, 1, stored[5].ID, stored[35].ID, stored[39].ID + 100} {
			page, err := s.FetchBefore(context.Background(), "r1", cursor, 30)
			req.NoError(err)
			req.LessOrEqual(len(page), 30)
			for i, m := range page {
				req.Less(m.ID, cursor)
				if i > 0 {
					req.Greater(m.ID, page[i-1].ID)
				}
			}
		}
	})
}

func TestStore_Fetch_Non_Positive_Limit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		appendN(t, s, "r1", 3)

		latest, err := s.FetchLatest(context.Background(), "r1", 0)
		req.NoError(err)
		req.Empty(latest)

		before, err := s.FetchBefore(context.Background(), "r1", 100, -1)
		req.NoError(err)
		req.Empty(before)
	})
}

func TestStore_Room_Names_Are_Case_Sensitive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		ctx := context.Background()

		_, err := s.Append(ctx, "Lobby", "alice", "upper")
		req.NoError(err)
		_, err = s.Append(ctx, "lobby", "bob", "lower")
		req.NoError(err)

		upper, err := s.FetchLatest(ctx, "Lobby", 30)
		req.NoError(err)
		req.Len(upper, 1)
		req.Equal("upper", upper[0].Content)
	})
}

func TestStore_Concurrent_Appends_Keep_Unique_Ids(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		req := require.New(t)
		const writers, perWriter = 8, 10

		var wg sync.WaitGroup
		errs := make(chan error, writers*perWriter)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					_, err := s.Append(context.Background(), "busy", fmt.Sprintf("writer-%d", w), "msg")
					errs <- err
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			req.NoError(err)
		}

		messages, err := s.FetchLatest(context.Background(), "busy", writers*perWriter)
		req.NoError(err)
		req.Len(messages, writers*perWriter)
		for i := 1; i < len(messages); i++ {
			req.Greater(messages[i].ID, messages[i-1].ID)
		}
	})
}

func TestOpen_Unknown_Backend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "cassandra"}, slog.Default())
	require.Error(t, err)
}

func TestOpen_Defaults_To_Memory(t *testing.T) {
	s, err := Open(context.Background(), Config{}, slog.Default())
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
}
