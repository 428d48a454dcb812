package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/gmsas95/kipbot/internal/metrics"
	"go.uber.org/zap"
)

// FileStore keeps one append-only JSONL file per user
type FileStore struct {
	dir  string
	sink errorSink
	mu   sync.Mutex
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string, logger *zap.Logger, m *metrics.Metrics) *FileStore {
	return &FileStore{dir: dir, sink: newSink(BackendLocal, logger, m)}
}

func (s *FileStore) Enabled() bool { return true }

func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, fileName(userID)+".jsonl")
}

func (s *FileStore) Save(ctx context.Context, userID, userMessage, assistantMessage string) {
	line, err := json.Marshal(Entry{User: userMessage, Assistant: assistantMessage})
	if err != nil {
		s.sink.report("save", userID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(userID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		s.sink.report("save", userID, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		s.sink.report("save", userID, err)
	}
}

func (s *FileStore) Load(ctx context.Context, userID string, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(userID))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.sink.report("load", userID, err)
		}
		return []Entry{}
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// One bad line invalidates the whole log
			s.sink.report("load", userID, apperrors.WithCause(apperrors.ErrMemoryCorrupted, fmt.Errorf("line %d: %w", lineNo, err)))
			return []Entry{}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		s.sink.report("load", userID, err)
		return []Entry{}
	}

	return tail(entries, limit)
}

func (s *FileStore) Close() error { return nil }

// fileName keeps user ids from escaping the memory directory
func fileName(userID string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, userID)
	if name == "" || name == "." || name == ".." {
		name = "_" + name
	}
	return name
}
