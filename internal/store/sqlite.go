package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RoomRecord is a row of the rooms table.
type RoomRecord struct {
	ID        uint64    `gorm:"primarykey"`
	Name      string    `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for RoomRecord.
func (RoomRecord) TableName() string {
	return "rooms"
}

// MessageRecord is a row of the messages table.
type MessageRecord struct {
	ID        uint64     `gorm:"primarykey;autoIncrement"`
	RoomID    uint64     `gorm:"index;not null"`
	Room      RoomRecord `gorm:"constraint:OnDelete:CASCADE"`
	Username  string     `gorm:"size:100;not null"`
	Content   string     `gorm:"type:text;not null"`
	CreatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for MessageRecord.
func (MessageRecord) TableName() string {
	return "messages"
}

// SQLiteStore persists rooms and messages through GORM on SQLite.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLiteStore opens the database at path (":memory:" is accepted) and
// migrates the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, wrapErr("open sqlite", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, wrapErr("sqlite handle", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewSQLiteStore(db)
}

// NewSQLiteStore migrates the schema on db and wraps it.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&RoomRecord{}, &MessageRecord{}); err != nil {
		return nil, wrapErr("migrate", err)
	}
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, room, author, content string) (Message, error) {
	if err := validateContent(content); err != nil {
		return Message{}, err
	}

	var record MessageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roomRecord RoomRecord
		err := tx.Where("name = ?", room).
			Attrs(RoomRecord{Name: room, CreatedAt: s.now()}).
			FirstOrCreate(&roomRecord).Error
		if err != nil {
			return err
		}

		record = MessageRecord{
			RoomID:    roomRecord.ID,
			Username:  author,
			Content:   content,
			CreatedAt: s.now(),
		}
		return tx.Omit("Room").Create(&record).Error
	})
	if err != nil {
		return Message{}, wrapErr("append message", err)
	}
	return toMessage(room)(record, 0), nil
}

func (s *SQLiteStore) FetchLatest(ctx context.Context, room string, limit int) ([]Message, error) {
	return s.fetch(ctx, room, 0, limit)
}

func (s *SQLiteStore) FetchBefore(ctx context.Context, room string, beforeID uint64, limit int) ([]Message, error) {
	if beforeID == 0 {
		return []Message{}, nil
	}
	return s.fetch(ctx, room, beforeID, limit)
}

// fetch reads the newest limit messages of room below beforeID (0 means no
// bound) and returns them oldest first.
func (s *SQLiteStore) fetch(ctx context.Context, room string, beforeID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	var roomRecord RoomRecord
	err := s.db.WithContext(ctx).Where("name = ?", room).First(&roomRecord).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, wrapErr("find room", err)
	}

	query := s.db.WithContext(ctx).Where("room_id = ?", roomRecord.ID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var records []MessageRecord
	if err := query.Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, wrapErr("read messages", err)
	}

	slices.Reverse(records)
	return lo.Map(records, toMessage(room)), nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toMessage(room string) func(MessageRecord, int) Message {
	return func(record MessageRecord, _ int) Message {
		return Message{
			ID:        record.ID,
			Room:      room,
			Author:    record.Username,
			Content:   record.Content,
			CreatedAt: record.CreatedAt.UTC(),
		}
	}
}
