package store

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per room, scored by message id. Ids come
// from a single INCR counter shared by every room.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// OpenRedisStore connects to addr and checks the server answers.
func OpenRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, wrapErr("connect redis", err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client. Every key starts with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) idKey() string {
	return s.prefix + "message:id"
}

func (s *RedisStore) roomKey(room string) string {
	return s.prefix + "room:" + room + ":messages"
}

func (s *RedisStore) Append(ctx context.Context, room, author, content string) (Message, error) {
	if err := validateContent(content); err != nil {
		return Message{}, err
	}

	id, err := s.client.Incr(ctx, s.idKey()).Uint64()
	if err != nil {
		return Message{}, wrapErr("next message id", err)
	}

	msg := Message{
		ID:        id,
		Room:      room,
		Author:    author,
		Content:   content,
		CreatedAt: s.now(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return Message{}, wrapErr("encode message", err)
	}

	err = s.client.ZAdd(ctx, s.roomKey(room), redis.Z{Score: float64(id), Member: value}).Err()
	if err != nil {
		return Message{}, wrapErr("write message", err)
	}
	return msg, nil
}

func (s *RedisStore) FetchLatest(ctx context.Context, room string, limit int) ([]Message, error) {
	return s.fetch(ctx, room, "+inf", limit)
}

func (s *RedisStore) FetchBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]Message, error) {
	if beforeID == 0 {
		return []Message{}, nil
	}
	// "(" makes the bound exclusive.
	return s.fetch(ctx, room, "("+strconv.FormatUint(beforeID, 10), limit)
}

func (s *RedisStore) fetch(ctx context.Context, room, maxScore string, limit int) ([]Message, error) {
	messages := []Message{}
	if limit <= 0 {
		return messages, nil
	}

	values, err := s.client.ZRevRangeByScore(ctx, s.roomKey(room), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, wrapErr("read messages", err)
	}

	for _, value := range values {
		var msg Message
		if err := json.Unmarshal([]byte(value), &msg); err != nil {
			return nil, wrapErr("decode message", err)
		}
		messages = append(messages, msg)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
