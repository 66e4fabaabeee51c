package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout is used when SQLiteOptions leaves BusyTimeout unset.
const DefaultBusyTimeout = 5 * time.Second

// SQLiteOptions tunes the SQLite backend.
type SQLiteOptions struct {
	// BusyTimeout is how long a writer waits for a competing lock.
	BusyTimeout time.Duration
}

// SQLiteBackend stores every namespace in one SQLite database.
type SQLiteBackend struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool
}

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", path, timeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load implements Backend.
func (s *SQLiteBackend) Load(ctx context.Context, namespace string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, kind, value FROM preferences WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, kind, raw string
		if err := rows.Scan(&key, &kind, &raw); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		v, err := decodeValue(Kind(kind), raw)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		out[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return out, nil
}

// Commit implements Backend. The batch runs in one transaction.
func (s *SQLiteBackend) Commit(ctx context.Context, namespace string, b *Batch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO namespaces (namespace, created_at) VALUES (?, ?)`,
		namespace, now); err != nil {
		return fmt.Errorf("record namespace: %w", err)
	}

	if b.Clears() {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM preferences WHERE namespace = ?`, namespace); err != nil {
			return fmt.Errorf("clear namespace: %w", err)
		}
	}

	err = b.Each(func(key string, value any, removed bool) error {
		if removed {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM preferences WHERE namespace = ? AND key = ?`, namespace, key)
			if err != nil {
				return fmt.Errorf("remove %q: %w", key, err)
			}
			return nil
		}
		kind, raw := encodeValue(value)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (namespace, key, kind, value, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET
				kind = excluded.kind,
				value = excluded.value,
				updated_at = excluded.updated_at`,
			namespace, key, string(kind), raw, now)
		if err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Namespaces returns every namespace that has been committed to.
func (s *SQLiteBackend) Namespaces(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT namespace FROM namespaces ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeValue(v any) (Kind, string) {
	switch x := v.(type) {
	case bool:
		return KindBool, strconv.FormatBool(x)
	case int64:
		return KindInt, strconv.FormatInt(x, 10)
	case float64:
		return KindFloat, strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return KindString, fmt.Sprint(x)
	}
}

func decodeValue(kind Kind, raw string) (any, error) {
	switch kind {
	case KindBool:
		return strconv.ParseBool(raw)
	case KindInt:
		return strconv.ParseInt(raw, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(raw, 64)
	case KindString:
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedValue, kind)
	}
}
