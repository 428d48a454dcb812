// Package memory persists a bounded per-user log of past exchanges used to
// seed fresh conversations.
package memory

import (
	"context"
	"fmt"
	"os"

	"github.com/gmsas95/kipbot/internal/config"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/gmsas95/kipbot/internal/metrics"
	"go.uber.org/zap"
)

// Backend names accepted in memory.backend
const (
	BackendLocal  = "local"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Entry is one persisted exchange
type Entry struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Store persists exchanges per user. Implementations log and swallow I/O
// failures so a broken store never fails a turn.
type Store interface {
	Enabled() bool
	// Save appends one exchange to the user's log
	Save(ctx context.Context, userID, userMessage, assistantMessage string)
	// Load returns at most limit of the user's most recent entries, oldest first
	Load(ctx context.Context, userID string, limit int) []Entry
	Close() error
}

// New opens the backend named by cfg.Backend, or a no-op store when memory
// is disabled.
func New(cfg config.MemoryConfig, logger *zap.Logger, m *metrics.Metrics) (Store, error) {
	if !cfg.Enabled {
		return NopStore{}, nil
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	switch cfg.Backend {
	case BackendLocal, "":
		return NewFileStore(cfg.Path, logger, m), nil
	case BackendSQLite:
		return NewSQLStore(cfg.Path, logger, m)
	case BackendBadger:
		return NewBadgerStore(cfg.Path, logger, m)
	default:
		return nil, apperrors.WithCause(apperrors.ErrMemoryBackendUnknown, fmt.Errorf("backend %q", cfg.Backend))
	}
}

// NopStore is used when memory is disabled
type NopStore struct{}

func (NopStore) Enabled() bool { return false }

func (NopStore) Save(ctx context.Context, userID, userMessage, assistantMessage string) {}

func (NopStore) Load(ctx context.Context, userID string, limit int) []Entry { return []Entry{} }

func (NopStore) Close() error { return nil }

// errorSink logs swallowed failures and counts them
type errorSink struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newSink(backend string, logger *zap.Logger, m *metrics.Metrics) errorSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return errorSink{logger: logger.With(zap.String("backend", backend)), metrics: m}
}

func (s errorSink) report(op, userID string, err error) {
	s.logger.Error("Memory operation failed",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	s.metrics.RecordMemoryError(op)
}

// tail returns the last n entries of entries
func tail(entries []Entry, n int) []Entry {
	if n <= 0 {
		return []Entry{}
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}
