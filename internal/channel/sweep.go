package channel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Sweep removes mailboxes under root whose owning process no longer exists, descending one
// level into per-run directories. It returns the number of mailboxes removed.
// A missing root is not an error.
func Sweep(root string, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}

	return sweep(root, log, 1)
}

func sweep(dir string, log *zap.Logger, depth int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("sweeping %s: %w", dir, err)
	}

	var (
		removed int
		errs    []error
	)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		owner, _, parseErr := ID(entry.Name()).Parse()
		if parseErr != nil {
			if depth > 0 {
				count, err := sweep(path, log, depth-1)
				removed += count
				errs = append(errs, err)

				// run directories go once their mailboxes are gone
				_ = os.Remove(path)
			}

			continue
		}

		if processAlive(owner) {
			continue
		}

		err := os.RemoveAll(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("removing orphaned mailbox %s: %w", path, err))

			continue
		}

		log.Info("removed orphaned result channel", zap.String("mailbox", path), zap.Int("owner", owner))

		removed++
	}

	return removed, errors.Join(errs...)
}
