package channel

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Set tracks the channels one process creates under a root directory, so they can all be
// destroyed when the owning scope ends.
type Set struct {
	root string
	log  *zap.Logger

	mu       sync.Mutex
	channels []*Channel
	closed   bool
}

// Option configures a Set.
type Option func(*Set)

// Exported variables.
var (
	ErrClosed = errors.New("channel set closed")
)

// NewSet creates an empty set rooted at root.
func NewSet(root string, opts ...Option) *Set {
	set := &Set{root: root, log: zap.NewNop()}
	for _, opt := range opts {
		opt(set)
	}

	return set
}

// WithLogger sets the logger used to report cleanup failures.
func WithLogger(log *zap.Logger) Option {
	return func(s *Set) {
		if log != nil {
			s.log = log
		}
	}
}

// Close destroys every channel the set created, then removes the root if it is empty.
// Only the first call does anything.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	var errs []error

	for _, channel := range s.channels {
		err := channel.Destroy()
		if err != nil {
			s.log.Warn("failed to destroy result channel", zap.String("channel", string(channel.ID())), zap.Error(err))
			errs = append(errs, err)
		}
	}

	s.channels = nil

	// fails harmlessly when something else still lives there
	_ = os.Remove(s.root)

	return errors.Join(errs...)
}

// Create creates a channel under the set's root and tracks it.
func (s *Set) Create(tag Tag) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: %w", ErrCreate, ErrClosed)
	}

	channel, err := Create(s.root, tag)
	if err != nil {
		return nil, err
	}

	s.channels = append(s.channels, channel)
	s.log.Debug("created result channel", zap.String("channel", string(channel.ID())))

	return channel, nil
}

// Len is the number of live channels in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.channels)
}

// Root is the directory the set creates channels in.
func (s *Set) Root() string {
	return s.root
}
