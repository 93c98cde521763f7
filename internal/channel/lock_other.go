//go:build !unix

package channel

import (
	"os"
	"path/filepath"
	"sync"
)

// Without flock, mailboxes are only serialised within one process.
//
//nolint:gochecknoglobals // process-wide lock table
var processLocks sync.Map

func lockMailbox(dir string, wait bool) (func(), error) {
	_, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}

	value, _ := processLocks.LoadOrStore(filepath.Clean(dir), &sync.Mutex{})
	mu := value.(*sync.Mutex) //nolint:forcetypeassert // only mutexes are stored

	if !wait {
		if !mu.TryLock() {
			return nil, errBusy
		}

		return mu.Unlock, nil
	}

	mu.Lock()

	return mu.Unlock, nil
}

// processAlive cannot probe other processes here, so every owner is assumed alive.
func processAlive(int) bool {
	return true
}
