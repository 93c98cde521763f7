//go:build unix

package channel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockMailbox takes an exclusive advisory lock on the mailbox in dir. With wait it blocks until
// the lock is free; without, it fails with errBusy while another holder has it.
func lockMailbox(dir string, wait bool) (func(), error) {
	file, err := os.OpenFile(filepath.Join(dir, "lock"), os.O_CREATE|os.O_RDWR, filePerms)
	if err != nil {
		return nil, err
	}

	fd := int(file.Fd()) //nolint:gosec // fds fit in int

	how := unix.LOCK_EX
	if !wait {
		how |= unix.LOCK_NB
	}

	for {
		err = unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}

	if errors.Is(err, unix.EWOULDBLOCK) {
		_ = file.Close()

		return nil, errBusy
	}

	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("locking mailbox: %w", err)
	}

	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = file.Close()
	}, nil
}

// processAlive reports whether a process with the given pid exists.
func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}

	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}
