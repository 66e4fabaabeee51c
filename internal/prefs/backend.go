package prefs

import (
	"fmt"
	"strings"
	"time"
)

// Backend kinds accepted by OpenBackend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// BackendOptions selects and configures a backend.
type BackendOptions struct {
	// Kind is one of BackendSQLite, BackendFile or BackendMemory.
	Kind string

	// Path is the database file (sqlite) or directory (file).
	Path string

	// BusyTimeout applies to sqlite only.
	BusyTimeout time.Duration
}

// OpenBackend opens the backend described by opts.
func OpenBackend(opts BackendOptions) (Backend, error) {
	switch strings.ToLower(opts.Kind) {
	case BackendSQLite, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("prefs: sqlite backend requires a path")
		}
		return OpenSQLite(opts.Path, SQLiteOptions{BusyTimeout: opts.BusyTimeout})
	case BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("prefs: file backend requires a path")
		}
		return NewFileBackend(opts.Path)
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("prefs: unknown backend %q", opts.Kind)
	}
}
