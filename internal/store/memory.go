package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps messages in process memory. Ids are shared by all rooms.
type MemoryStore struct {
	mu     sync.RWMutex
	lastID uint64
	rooms  map[string][]Message
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string][]Message),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Append(_ context.Context, room, author, content string) (Message, error) {
	if err := validateContent(content); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	msg := Message{
		ID:        s.lastID,
		Room:      room,
		Author:    author,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.rooms[room] = append(s.rooms[room], msg)
	return msg, nil
}

func (s *MemoryStore) FetchLatest(_ context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return tail(s.rooms[room], limit), nil
}

func (s *MemoryStore) FetchBefore(_ context.Context, room string, beforeID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.rooms[room]
	// messages are appended in id order
	end := sort.Search(len(messages), func(i int) bool { return messages[i].ID >= beforeID })
	return tail(messages[:end], limit), nil
}

func (s *MemoryStore) Close() error { return nil }

// tail copies the last limit messages so callers never alias the store.
func tail(messages []Message, limit int) []Message {
	start := len(messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(messages)-start)
	copy(out, messages[start:])
	return out
}
