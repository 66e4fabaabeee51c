package prefs

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")

	b, err := OpenSQLite(path, SQLiteOptions{})
	require.NoError(t, err)
	p, err := Open(b, testNamespace)
	require.NoError(t, err)
	require.NoError(t, p.Edit().PutBool("flag", true).PutFloat("f", 1.5).Commit(ctx))
	require.NoError(t, b.Close())

	b, err = OpenSQLite(path, SQLiteOptions{})
	require.NoError(t, err)
	defer b.Close()

	m, err := b.Load(ctx, testNamespace)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"flag": true, "f": 1.5}, m)

	namespaces, err := b.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testNamespace}, namespaces)
}

func TestSQLite_MigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	b, err := OpenSQLite(path, SQLiteOptions{})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	v, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion(), v)

	// Re-running is a no-op.
	require.NoError(t, MigrateDB(db))
	v, err = SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, LatestSchemaVersion(), v)
}

func TestFile_DocumentIsTOML(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	p, err := Open(b, testNamespace)
	require.NoError(t, err)
	require.NoError(t, p.Edit().PutBool("keyboard_mode_float", true).PutString("layout", "qwerty").Commit(ctx))

	data, err := os.ReadFile(b.Path(testNamespace))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "keyboard_mode_float = true")
	assert.Contains(t, text, `layout = "qwerty"`)

	// No temp files left behind.
	entries, err := os.ReadDir(b.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
	}
}

func TestFile_ReadsHandEditedDocument(t *testing.T) {
	dir := t.TempDir()
	doc := "keyboard_mode_float = false\nvolume = 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, testNamespace+".toml"), []byte(doc), 0600))

	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	m, err := b.Load(context.Background(), testNamespace)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"keyboard_mode_float": false, "volume": int64(7)}, m)
}

func TestFile_RejectsNestedTables(t *testing.T) {
	dir := t.TempDir()
	doc := "[section]\nkey = 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, testNamespace+".toml"), []byte(doc), 0600))

	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	_, err = b.Load(context.Background(), testNamespace)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		opts    BackendOptions
		wantErr bool
	}{
		{"sqlite", BackendOptions{Kind: BackendSQLite, Path: filepath.Join(dir, "p.db")}, false},
		{"file", BackendOptions{Kind: BackendFile, Path: filepath.Join(dir, "shared")}, false},
		{"memory", BackendOptions{Kind: BackendMemory}, false},
		{"sqlite without path", BackendOptions{Kind: BackendSQLite}, true},
		{"unknown", BackendOptions{Kind: "etcd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := OpenBackend(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, b.Close())
		})
	}
}
