package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	badgerSequenceKey       = "seq:message"
	badgerSequenceBandwidth = 128
	// Greater than any zero padded uint64.
	badgerLatestCursor = "99999999999999999999"
)

// BadgerStore persists messages in an embedded BadgerDB.
//
// Keys are "msg:{hex room}:{zero padded id}". Hex keeps room names free of
// the separator and the 20 digit padding makes lexicographical order match
// id order, so a reverse prefix scan walks a room from newest to oldest.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger

	// Serializes id and timestamp assignment so both grow together.
	mu  sync.Mutex
	now func() time.Time
}

// OpenBadgerStore opens (or creates) a BadgerDB at path. An empty path keeps
// the database in memory.
func OpenBadgerStore(path string, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, wrapErr("open badger", err)
	}
	return NewBadgerStore(db, log)
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB, log *slog.Logger) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(badgerSequenceKey), badgerSequenceBandwidth)
	if err != nil {
		return nil, wrapErr("badger sequence", err)
	}
	return &BadgerStore{
		db:  db,
		seq: seq,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func badgerRoomPrefix(room string) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(room)) + ":")
}

func badgerKey(room string, id uint64) []byte {
	return fmt.Appendf(badgerRoomPrefix(room), "%020d", id)
}

func (s *BadgerStore) Append(_ context.Context, room, author, content string) (Message, error) {
	if err := validateContent(content); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	next, err := s.seq.Next()
	at := s.now()
	s.mu.Unlock()
	if err != nil {
		return Message{}, wrapErr("next message id", err)
	}

	// Badger sequences start at zero.
	msg := Message{
		ID:        next + 1,
		Room:      room,
		Author:    author,
		Content:   content,
		CreatedAt: at,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return Message{}, wrapErr("encode message", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(room, msg.ID), value)
	})
	if err != nil {
		return Message{}, wrapErr("write message", err)
	}
	return msg, nil
}

func (s *BadgerStore) FetchLatest(_ context.Context, room string, limit int) ([]Message, error) {
	seek := append(badgerRoomPrefix(room), badgerLatestCursor...)
	return s.scanBackward(room, seek, limit)
}

func (s *BadgerStore) FetchBefore(_ context.Context, room string, beforeID uint64, limit int) ([]Message, error) {
	if beforeID == 0 {
		return []Message{}, nil
	}
	return s.scanBackward(room, badgerKey(room, beforeID-1), limit)
}

// scanBackward collects up to limit messages whose key is <= seek, newest
// first, and returns them oldest first.
func (s *BadgerStore) scanBackward(room string, seek []byte, limit int) ([]Message, error) {
	messages := []Message{}
	if limit <= 0 {
		return messages, nil
	}

	prefix := badgerRoomPrefix(room)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var msg Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("read messages", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *BadgerStore) Close() error {
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, err)
	}
	s.log.Info("Closing BadgerDB...")
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
