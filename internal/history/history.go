// Package history remembers the last outcome of every test, so a run can start with the
// tests that failed last time.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/toejough/forktest/internal/core"
	"go.uber.org/zap"
)

// Entry is what is remembered about a test's last run.
type Entry struct {
	RunID    string        `json:"run_id"`
	Outcome  core.Outcome  `json:"outcome"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// Store is a persistent map from suite and test name to the test's last Entry.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*options)

// Open opens the store in dir, creating it if needed. An empty dir gives an in-memory store.
func Open(dir string, opts ...Option) (*Store, error) {
	config := options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&config)
	}

	var badgerOpts badger.Options
	if dir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dir).WithSyncWrites(false).WithTruncate(true)
	}

	badgerOpts = badgerOpts.WithLogger(badgerLogger{log: config.log.Sugar()})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("could not open history store: %w", err)
	}

	return &Store{db: db, now: config.now}, nil
}

// WithClock sets the clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger routes the store's internal logging to log.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Last returns the last entry recorded for a test.
func (s *Store) Last(suite, test string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(suite, test))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		found = true

		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &entry)
		})
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading history of %s/%s: %w", suite, test, err)
	}

	return entry, found, nil
}

// Prioritize returns the positions of names, reordered so that tests whose last run did not
// pass come first. Tests keep their relative order within each group.
func (s *Store) Prioritize(suite string, names []string) ([]int, error) {
	failing := make(map[int]bool, len(names))

	for index, name := range names {
		entry, found, err := s.Last(suite, name)
		if err != nil {
			return nil, err
		}

		failing[index] = found && entry.Outcome != core.Pass
	}

	order := make([]int, len(names))
	for index := range order {
		order[index] = index
	}

	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case failing[a] == failing[b]:
			return 0
		case failing[a]:
			return -1
		default:
			return 1
		}
	})

	return order, nil
}

// Record stores record as its test's last entry.
func (s *Store) Record(record core.Record) error {
	value, err := json.Marshal(Entry{
		RunID:    record.RunID,
		Outcome:  record.Outcome,
		Duration: record.Duration,
		At:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(record.Suite, record.Test), value)
	})
	if err != nil {
		return fmt.Errorf("recording history of %s/%s: %w", record.Suite, record.Test, err)
	}

	return nil
}

// badgerLogger adapts zap to badger's logger interface.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debugf(format, args...)
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Errorf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Infof(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warnf(format, args...)
}

type options struct {
	log *zap.Logger
	now func() time.Time
}

func key(suite, test string) []byte {
	return []byte("last/" + suite + "/" + test)
}
