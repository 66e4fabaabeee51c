// Package prefs provides namespaced key-value preference storage for vr369ime.
//
// A Preferences handle reads and edits one namespace of a Backend. Edits are
// staged on an Editor and written with a single atomic Commit, so a reader
// never observes half of a batch.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("prefs: backend closed")

	// ErrEmptyNamespace is returned when a namespace identifier is empty.
	ErrEmptyNamespace = errors.New("prefs: empty namespace")

	// ErrInvalidNamespace is returned for namespaces that cannot be stored.
	ErrInvalidNamespace = errors.New("prefs: invalid namespace")

	// ErrTypeMismatch is returned by a typed getter when the stored value has another kind.
	ErrTypeMismatch = errors.New("prefs: type mismatch")

	// ErrUnsupportedValue is returned for values that are not bool, int64, float64 or string.
	ErrUnsupportedValue = errors.New("prefs: unsupported value")
)

// Backend persists namespaces of preference values.
type Backend interface {
	// Load returns a snapshot of every value in the namespace.
	// A namespace that was never written yields an empty map.
	Load(ctx context.Context, namespace string) (map[string]any, error)

	// Commit applies the batch to the namespace atomically.
	Commit(ctx context.Context, namespace string, b *Batch) error

	// Close releases the backend.
	Close() error
}

// change is a staged edit of one key.
type change struct {
	remove bool
	value  any
}

// Batch is a set of staged edits. Clear runs first, then the per-key edits.
// A later edit of the same key replaces an earlier one.
type Batch struct {
	clear   bool
	changes map[string]change
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{changes: make(map[string]change)}
}

// Put stages a value for key. The value must be bool, int64, float64 or string
// (other integer and float kinds are widened).
func (b *Batch) Put(key string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	b.changes[key] = change{value: v}
	return nil
}

// Remove stages removal of key.
func (b *Batch) Remove(key string) {
	b.changes[key] = change{remove: true}
}

// Clear stages removal of every key in the namespace.
func (b *Batch) Clear() {
	b.clear = true
}

// Clears reports whether the batch clears the namespace.
func (b *Batch) Clears() bool {
	return b.clear
}

// Len returns the number of staged per-key edits.
func (b *Batch) Len() int {
	return len(b.changes)
}

// Empty reports whether committing the batch would change nothing.
func (b *Batch) Empty() bool {
	return !b.clear && len(b.changes) == 0
}

// Keys returns the edited keys in sorted order.
func (b *Batch) Keys() []string {
	keys := make([]string, 0, len(b.changes))
	for k := range b.changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Each calls fn for every staged edit in key order.
func (b *Batch) Each(fn func(key string, value any, removed bool) error) error {
	for _, k := range b.Keys() {
		c := b.changes[k]
		if err := fn(k, c.value, c.remove); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTo applies the batch to m in place.
func (b *Batch) ApplyTo(m map[string]any) {
	if b.clear {
		for k := range m {
			delete(m, k)
		}
	}
	for k, c := range b.changes {
		if c.remove {
			delete(m, k)
			continue
		}
		m[k] = c.value
	}
}

// Preferences is a handle on one namespace of a backend.
type Preferences struct {
	backend   Backend
	namespace string

	mu        sync.RWMutex
	listeners []func(key string)
}

// Open returns a handle on namespace. The namespace is created lazily by the
// backend on first commit.
func Open(backend Backend, namespace string) (*Preferences, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	return &Preferences{backend: backend, namespace: namespace}, nil
}

// ValidateNamespace checks that namespace can be used with every backend.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return ErrEmptyNamespace
	}
	if strings.ContainsAny(namespace, `/\`) || strings.Contains(namespace, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	return nil
}

// Namespace returns the namespace identifier.
func (p *Preferences) Namespace() string {
	return p.namespace
}

// All returns a snapshot of the namespace.
func (p *Preferences) All(ctx context.Context) (map[string]any, error) {
	m, err := p.backend.Load(ctx, p.namespace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p.namespace, err)
	}
	return m, nil
}

// Contains reports whether key has a value.
func (p *Preferences) Contains(ctx context.Context, key string) (bool, error) {
	m, err := p.All(ctx)
	if err != nil {
		return false, err
	}
	_, ok := m[key]
	return ok, nil
}

func (p *Preferences) get(ctx context.Context, key string) (any, bool, error) {
	m, err := p.All(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// GetBool returns the bool stored at key, or def when the key is absent.
func (p *Preferences) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := p.get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("%w: %q is %s, not bool", ErrTypeMismatch, key, KindOf(v))
	}
	return b, nil
}

// GetInt returns the int64 stored at key, or def when the key is absent.
func (p *Preferences) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	v, ok, err := p.get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	n, ok := v.(int64)
	if !ok {
		return def, fmt.Errorf("%w: %q is %s, not int", ErrTypeMismatch, key, KindOf(v))
	}
	return n, nil
}

// GetFloat returns the float64 stored at key, or def when the key is absent.
func (p *Preferences) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	v, ok, err := p.get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	f, ok := v.(float64)
	if !ok {
		return def, fmt.Errorf("%w: %q is %s, not float", ErrTypeMismatch, key, KindOf(v))
	}
	return f, nil
}

// GetString returns the string stored at key, or def when the key is absent.
func (p *Preferences) GetString(ctx context.Context, key string, def string) (string, error) {
	v, ok, err := p.get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("%w: %q is %s, not string", ErrTypeMismatch, key, KindOf(v))
	}
	return s, nil
}

// OnChange registers fn to be called with each key changed by a successful
// commit through this handle. A cleared namespace is reported with key "".
func (p *Preferences) OnChange(fn func(key string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Edit starts a new batch of edits.
func (p *Preferences) Edit() *Editor {
	return &Editor{prefs: p, batch: NewBatch()}
}

func (p *Preferences) notify(b *Batch) {
	p.mu.RLock()
	listeners := append([]func(string){}, p.listeners...)
	p.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}
	keys := b.Keys()
	if b.Clears() {
		keys = append([]string{""}, keys...)
	}
	for _, k := range keys {
		for _, fn := range listeners {
			fn(k)
		}
	}
}

// Editor stages edits for a single commit.
type Editor struct {
	prefs *Preferences
	batch *Batch
	err   error
}

// PutBool stages a bool value.
func (e *Editor) PutBool(key string, value bool) *Editor {
	return e.put(key, value)
}

// PutInt stages an integer value.
func (e *Editor) PutInt(key string, value int64) *Editor {
	return e.put(key, value)
}

// PutFloat stages a float value.
func (e *Editor) PutFloat(key string, value float64) *Editor {
	return e.put(key, value)
}

// PutString stages a string value.
func (e *Editor) PutString(key string, value string) *Editor {
	return e.put(key, value)
}

func (e *Editor) put(key string, value any) *Editor {
	if err := e.batch.Put(key, value); err != nil && e.err == nil {
		e.err = err
	}
	return e
}

// Remove stages removal of key.
func (e *Editor) Remove(key string) *Editor {
	e.batch.Remove(key)
	return e
}

// Clear stages removal of every key. It is applied before the other edits.
func (e *Editor) Clear() *Editor {
	e.batch.Clear()
	return e
}

// Keys returns the keys this editor will write or remove.
func (e *Editor) Keys() []string {
	return e.batch.Keys()
}

// Commit writes the staged edits as one atomic backend commit.
func (e *Editor) Commit(ctx context.Context) error {
	if e.err != nil {
		return e.err
	}
	if e.batch.Empty() {
		return nil
	}
	if err := e.prefs.backend.Commit(ctx, e.prefs.namespace, e.batch); err != nil {
		return fmt.Errorf("commit %s: %w", e.prefs.namespace, err)
	}
	e.prefs.notify(e.batch)
	return nil
}

// Kind names the type of a stored value.
type Kind string

const (
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// KindOf returns the kind of a normalized value, or "" if unsupported.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	default:
		return ""
	}
}

// normalize widens integer and float kinds and rejects everything else.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case bool, int64, float64, string:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}
