// Package journal keeps an audit trail of mutation requests in badger.
//
// Keys are ULIDs under a fixed prefix, so iteration order is arrival order.
package journal

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/KostasZigo/gitree/internal/serializer"
)

const keyPrefix = "op:"

// Entry is a stored record together with its journal id.
type Entry struct {
	ID string `json:"id"`
	serializer.Record
}

type Journal struct {
	db     *badger.DB
	logger *zap.Logger

	mu      sync.Mutex
	entropy io.Reader
}

// Open opens the journal stored at path. An empty path keeps the journal
// in memory.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{logger.Named("badger").Sugar()})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{
		db:      db,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends rec. It implements serializer.Recorder.
func (j *Journal) Record(rec serializer.Record) error {
	j.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(rec.Time), j.entropy)
	j.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to generate journal id: %w", err)
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode journal record: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id.String()), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}
	j.logger.Debug("journal record written", zap.String("id", id.String()), zap.String("request_id", rec.RequestID))
	return nil
}

// Recent returns up to limit entries, newest first. A limit of zero or
// less returns every entry.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the last key not greater than its
		// argument, so seek past every ULID.
		for it.Seek([]byte(keyPrefix + "\xff")); it.Valid(); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			item := it.Item()
			entry := Entry{ID: string(item.Key()[len(keyPrefix):])}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry.Record)
			})
			if err != nil {
				return fmt.Errorf("failed to decode journal record %s: %w", entry.ID, err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// badgerLogger routes badger's logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
