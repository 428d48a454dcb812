package memory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gmsas95/kipbot/internal/metrics"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// entryRecord is the row layout of the sqlite backend
type entryRecord struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	User      string `gorm:"type:text"`
	Assistant string `gorm:"type:text"`
	CreatedAt time.Time
}

func (entryRecord) TableName() string { return "memory_entries" }

// SQLStore keeps entries in a SQLite database through gorm
type SQLStore struct {
	db   *gorm.DB
	raw  *sql.DB
	sink errorSink
}

// NewSQLStore opens <dir>/memory.db
func NewSQLStore(dir string, log *zap.Logger, m *metrics.Metrics) (*SQLStore, error) {
	dbPath := filepath.Join(dir, "memory.db")

	raw, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows one writer at a time
	raw.SetMaxOpenConns(1)
	raw.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: raw}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &SQLStore{db: db, raw: raw, sink: newSink(BackendSQLite, log, m)}, nil
}

func (s *SQLStore) Enabled() bool { return true }

func (s *SQLStore) Save(ctx context.Context, userID, userMessage, assistantMessage string) {
	rec := &entryRecord{UserID: userID, User: userMessage, Assistant: assistantMessage}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.sink.report("save", userID, err)
	}
}

func (s *SQLStore) Load(ctx context.Context, userID string, limit int) []Entry {
	if limit <= 0 {
		return []Entry{}
	}

	var recs []entryRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		s.sink.report("load", userID, err)
		return []Entry{}
	}

	entries := make([]Entry, len(recs))
	for i, r := range recs {
		entries[len(recs)-1-i] = Entry{User: r.User, Assistant: r.Assistant}
	}
	return entries
}

func (s *SQLStore) Close() error {
	return s.raw.Close()
}
