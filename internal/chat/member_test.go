package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// fakeMember records delivered frames on a buffered channel.
type fakeMember struct {
	id     string
	name   string
	frames chan []byte
	fail   atomic.Bool

	evictOnce sync.Once
	evicted   chan struct{}
	reason    error
}

func newFakeMember(name string) *fakeMember {
	return newFakeMemberWithBuffer(name, 1024)
}

func newFakeMemberWithBuffer(name string, size int) *fakeMember {
	return &fakeMember{
		id:      uuid.NewString(),
		name:    name,
		frames:  make(chan []byte, size),
		evicted: make(chan struct{}),
	}
}

func (m *fakeMember) ID() string          { return m.id }
func (m *fakeMember) DisplayName() string { return m.name }

func (m *fakeMember) Deliver(payload []byte) error {
	if m.fail.Load() {
		return ErrDelivery
	}
	select {
	case m.frames <- payload:
		return nil
	default:
		return ErrDelivery
	}
}

func (m *fakeMember) Evict(reason error) {
	m.evictOnce.Do(func() {
		m.reason = reason
		close(m.evicted)
	})
}

func (m *fakeMember) isEvicted() bool {
	select {
	case <-m.evicted:
		return true
	default:
		return false
	}
}

func (m *fakeMember) next(t *testing.T) []byte {
	t.Helper()
	select {
	case frame := <-m.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("member %s received nothing", m.name)
		return nil
	}
}

func (m *fakeMember) nextMessage(t *testing.T) MessagePayload {
	t.Helper()
	var payload MessagePayload
	require.NoError(t, json.Unmarshal(m.next(t), &payload))
	return payload
}

func (m *fakeMember) nextHistory(t *testing.T) HistoryPayload {
	t.Helper()
	var payload HistoryPayload
	require.NoError(t, json.Unmarshal(m.next(t), &payload))
	require.Equal(t, TypeHistory, payload.Type)
	return payload
}

func (m *fakeMember) nextError(t *testing.T) ErrorPayload {
	t.Helper()
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(m.next(t), &payload))
	require.Equal(t, TypeError, payload.Type)
	return payload
}

func (m *fakeMember) expectNothing(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-m.frames:
		t.Fatalf("member %s received unexpected frame %s", m.name, frame)
	case <-time.After(wait):
	}
}
