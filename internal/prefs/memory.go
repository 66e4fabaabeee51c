package prefs

import (
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps namespaces in process memory. Nothing survives Close.
type MemoryBackend struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]any
	closed     bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{namespaces: make(map[string]map[string]any)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, namespace string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]any, len(m.namespaces[namespace]))
	maps.Copy(out, m.namespaces[namespace])
	return out, nil
}

// Commit implements Backend. The namespace map is replaced as a whole so
// concurrent Load calls see either the old or the new state.
func (m *MemoryBackend) Commit(ctx context.Context, namespace string, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	next := make(map[string]any, len(m.namespaces[namespace])+b.Len())
	maps.Copy(next, m.namespaces[namespace])
	b.ApplyTo(next)
	m.namespaces[namespace] = next
	return nil
}

// Namespaces returns the namespaces that have been committed to.
func (m *MemoryBackend) Namespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.namespaces))
	for ns := range m.namespaces {
		out = append(out, ns)
	}
	return out
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
