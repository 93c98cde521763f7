// Package channel implements the one-shot result channel a child test process uses to report
// its outcome to the parent that spawned it.
//
// A channel is a mailbox directory named after its owner's pid and a caller-chosen tag.
// The mailbox holds a write-ahead log with at most two entries: the posted message, then a
// marker recording that the message was consumed. All access is serialised across processes
// with an advisory lock on a file inside the mailbox.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/wal"
)

// Tag is the caller-supplied discriminator of a channel, checked on every poll.
type Tag int

// ID identifies a channel across processes: "<owner pid>-<tag>".
type ID string

// NewID builds the id of the channel owned by pid with the given tag.
func NewID(owner int, tag Tag) ID {
	return ID(fmt.Sprintf("%d-%d", owner, tag))
}

// Parse splits an id into its owner pid and tag.
func (id ID) Parse() (int, Tag, error) {
	ownerText, tagText, ok := strings.Cut(string(id), "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadID, id)
	}

	owner, err := strconv.Atoi(ownerText)
	if err != nil || owner <= 0 {
		return 0, 0, fmt.Errorf("%w: %q: bad owner", ErrBadID, id)
	}

	tag, err := strconv.Atoi(tagText)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: bad tag", ErrBadID, id)
	}

	return owner, Tag(tag), nil
}

// Message is what a child posts: its tag, an integer result code and opaque payload bytes.
type Message struct {
	Tag     Tag    `json:"tag"`
	Result  int    `json:"result"`
	Payload []byte `json:"payload,omitempty"`
}

// Exported variables.
var (
	ErrBadID     = errors.New("malformed channel id")
	ErrCreate    = errors.New("cannot create result channel")
	ErrDestroyed = errors.New("result channel destroyed")
	ErrFull      = errors.New("result channel already holds a message")
	ErrNotOwner  = errors.New("only the owning process may destroy a result channel")
)

// unexported variables.
var (
	errBusy = errors.New("mailbox locked by another holder")
)

// Channel is a handle on one mailbox. Handles are safe for concurrent use.
type Channel struct {
	id    ID
	tag   Tag
	owner int
	dir   string

	mu        sync.Mutex
	destroyed bool
}

// Attach opens a handle on an existing channel, typically from a child that inherited the id.
func Attach(root string, id ID) (*Channel, error) {
	owner, tag, err := id.Parse()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(root, string(id))

	_, err = os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDestroyed, id, err)
	}

	return &Channel{id: id, tag: tag, owner: owner, dir: dir}, nil
}

// Create allocates a new mailbox under root, owned by the current process.
// It fails with ErrCreate if a mailbox with the same id already exists.
func Create(root string, tag Tag) (*Channel, error) {
	owner := os.Getpid()
	id := NewID(owner, tag)
	dir := filepath.Join(root, string(id))

	err := os.MkdirAll(root, dirPerms)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreate, id, err)
	}

	err = os.Mkdir(dir, dirPerms)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreate, id, err)
	}

	channel := &Channel{id: id, tag: tag, owner: owner, dir: dir}

	err = channel.withLog(true, func(*wal.Log) error { return nil })
	if err != nil {
		_ = os.RemoveAll(dir)

		return nil, fmt.Errorf("%w: %s: %w", ErrCreate, id, err)
	}

	return channel, nil
}

// Destroy removes the mailbox. Only the owning process may destroy it; a second
// destroy by the owner does nothing.
func (c *Channel) Destroy() error {
	if c.owner != os.Getpid() {
		return fmt.Errorf("%w: %s", ErrNotOwner, c.id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil
	}

	unlock, err := lockMailbox(c.dir, true)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("destroying %s: %w", c.id, err)
	}

	err = os.RemoveAll(c.dir)

	if unlock != nil {
		unlock()
	}

	if err != nil {
		return fmt.Errorf("destroying %s: %w", c.id, err)
	}

	c.destroyed = true

	return nil
}

// Dir is the mailbox directory.
func (c *Channel) Dir() string {
	return c.dir
}

// ID is the channel's id, for handing to a child process.
func (c *Channel) ID() ID {
	return c.id
}

// Owner is the pid of the process that created the channel.
func (c *Channel) Owner() int {
	return c.owner
}

// Poll returns the posted message, if there is one that has not been consumed yet.
// It never blocks on the poster. A message is returned at most once, across all handles;
// messages carrying a different tag are ignored.
func (c *Channel) Poll() (Message, bool, error) {
	var (
		message Message
		found   bool
	)

	err := c.withLog(false, func(log *wal.Log) error {
		last, err := log.LastIndex()
		if err != nil {
			return err
		}

		if last != messageIndex {
			return nil
		}

		data, err := log.Read(messageIndex)
		if err != nil {
			return err
		}

		err = json.Unmarshal(data, &message)
		if err != nil {
			return fmt.Errorf("decoding message: %w", err)
		}

		if message.Tag != c.tag {
			return nil
		}

		found = true

		return log.Write(consumedIndex, []byte("consumed"))
	})
	if errors.Is(err, errBusy) {
		// a poster or another poller is mid-operation: nothing to take yet
		return Message{}, false, nil
	}

	if err != nil {
		return Message{}, false, fmt.Errorf("polling %s: %w", c.id, err)
	}

	return message, found, nil
}

// Post writes the channel's single message. If a message was already posted the new one is
// dropped and ErrFull is returned.
func (c *Channel) Post(result int, payload []byte) error {
	data, err := json.Marshal(Message{Tag: c.tag, Result: result, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	err = c.withLog(true, func(log *wal.Log) error {
		last, err := log.LastIndex()
		if err != nil {
			return err
		}

		if last != 0 {
			return ErrFull
		}

		return log.Write(messageIndex, data)
	})
	if err != nil {
		return fmt.Errorf("posting to %s: %w", c.id, err)
	}

	return nil
}

// Tag is the channel's tag.
func (c *Channel) Tag() Tag {
	return c.tag
}

const (
	messageIndex  uint64 = 1
	consumedIndex uint64 = 2

	dirPerms  = 0o700
	filePerms = 0o600
)

// withLog runs fn against the mailbox log while holding the mailbox lock. Without wait it
// returns errBusy instead of blocking on another holder.
func (c *Channel) withLog(wait bool, fn func(*wal.Log) error) error {
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()

	if destroyed {
		return ErrDestroyed
	}

	unlock, err := lockMailbox(c.dir, wait)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrDestroyed
		}

		return err
	}
	defer unlock()

	log, err := wal.Open(filepath.Join(c.dir, "log"), &wal.Options{
		SegmentSize: segmentSize,
		LogFormat:   wal.Binary,
		DirPerms:    dirPerms,
		FilePerms:   filePerms,
	})
	if err != nil {
		return fmt.Errorf("opening mailbox log: %w", err)
	}

	err = fn(log)

	return errors.Join(err, log.Close())
}

// segmentSize keeps each mailbox to a single small segment file.
const segmentSize = 1 << 20
