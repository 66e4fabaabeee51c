package prefs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// FileBackend stores each namespace as a TOML document named
// <namespace>.toml inside a directory.
//
// Commits hold an advisory lock on <namespace>.lock, rewrite the whole
// document to a temp file and rename it into place.
type FileBackend struct {
	dir string

	mu     sync.Mutex
	closed bool
}

// NewFileBackend creates the directory if needed and returns a backend for it.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create preferences directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileBackend) Dir() string {
	return f.dir
}

// Path returns the document path for namespace.
func (f *FileBackend) Path(namespace string) string {
	return filepath.Join(f.dir, namespace+".toml")
}

// Load implements Backend.
func (f *FileBackend) Load(_ context.Context, namespace string) (map[string]any, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.read(namespace)
}

func (f *FileBackend) read(namespace string) (map[string]any, error) {
	data, err := os.ReadFile(f.Path(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("read %s: %w", namespace, err)
	}

	raw := make(map[string]any)
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", namespace, err)
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("decode %s: key %q: %w", namespace, k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// Commit implements Backend.
func (f *FileBackend) Commit(ctx context.Context, namespace string, b *Batch) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	unlock, err := lockFile(filepath.Join(f.dir, namespace+".lock"))
	if err != nil {
		return fmt.Errorf("lock %s: %w", namespace, err)
	}
	defer unlock()

	current, err := f.read(namespace)
	if err != nil {
		return err
	}
	b.ApplyTo(current)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(current); err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}

	return writeAtomic(f.Path(namespace), buf.Bytes())
}

// Close implements Backend.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
