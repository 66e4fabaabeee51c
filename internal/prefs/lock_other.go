//go:build !unix

package prefs

import (
	"fmt"
	"os"
)

// lockFile only creates the lock file; cross-process locking is unix-only.
func lockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f.Close, nil
}
