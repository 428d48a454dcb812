package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/gmsas95/kipbot/internal/metrics"
	"go.uber.org/zap"
)

// BadgerStore keeps entries in a badger key-value log under
// entry/<user>/<seq>, with seq zero-padded so keys sort chronologically.
type BadgerStore struct {
	db   *badger.DB
	seq  *badger.Sequence
	sink errorSink
}

// NewBadgerStore opens <dir>/badger
func NewBadgerStore(dir string, logger *zap.Logger, m *metrics.Metrics) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "badger")).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte("seq/entry"), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open badger sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq, sink: newSink(BackendBadger, logger, m)}, nil
}

func (s *BadgerStore) Enabled() bool { return true }

func userPrefix(userID string) []byte {
	return []byte("entry/" + url.PathEscape(userID) + "/")
}

func (s *BadgerStore) Save(ctx context.Context, userID, userMessage, assistantMessage string) {
	value, err := json.Marshal(Entry{User: userMessage, Assistant: assistantMessage})
	if err != nil {
		s.sink.report("save", userID, err)
		return
	}

	n, err := s.seq.Next()
	if err != nil {
		s.sink.report("save", userID, err)
		return
	}
	key := append(userPrefix(userID), []byte(fmt.Sprintf("%020d", n))...)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		s.sink.report("save", userID, err)
	}
}

func (s *BadgerStore) Load(ctx context.Context, userID string, limit int) []Entry {
	if limit <= 0 {
		return []Entry{}
	}

	prefix := userPrefix(userID)
	var newestFirst []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the greatest key <= seek
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(newestFirst) < limit; it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			newestFirst = append(newestFirst, e)
		}
		return nil
	})
	if err != nil {
		s.sink.report("load", userID, err)
		return []Entry{}
	}

	entries := make([]Entry, len(newestFirst))
	for i, e := range newestFirst {
		entries[len(newestFirst)-1-i] = e
	}
	return entries
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
