package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vr369ime/internal/bootstrap"
	"vr369ime/internal/logging"
	"vr369ime/internal/prefs"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VR369IME_DATA_DIR",
		"VR369IME_PREFS_BACKEND",
		"VR369IME_PREFS_PATH",
		"VR369IME_PREFS_BUSY_TIMEOUT_MS",
		"VR369IME_COMMIT_FAILURE",
		"VR369IME_LOG_LEVEL",
		"VR369IME_LOG_FORMAT",
		"VR369IME_LOG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRunOnceWritesDefaults(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	cfgPath := writeConfig(t, `
[preferences]
backend = "file"

[logging]
level = "error"
`)

	require.NoError(t, run([]string{"--config", cfgPath, "--data-dir", dataDir, "--once"}))

	backend, err := prefs.NewFileBackend(filepath.Join(dataDir, "shared_prefs"))
	require.NoError(t, err)
	values, err := backend.Load(context.Background(), bootstrap.Namespace)
	require.NoError(t, err)

	for _, d := range bootstrap.Defaults() {
		assert.Equal(t, d.Value, values[d.Key], d.Key)
	}
}

func TestRunOnceOverwritesPreviousRun(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	cfgPath := writeConfig(t, "[logging]\nlevel = \"error\"\n")

	db := filepath.Join(dataDir, "shared_prefs.db")
	backend, err := prefs.OpenSQLite(db, prefs.SQLiteOptions{})
	require.NoError(t, err)
	p, err := prefs.Open(backend, bootstrap.Namespace)
	require.NoError(t, err)
	require.NoError(t, p.Edit().
		PutBool(bootstrap.KeyKeyboardModeFloat, false).
		PutString("theme", "dark").
		Commit(context.Background()))
	require.NoError(t, backend.Close())

	require.NoError(t, run([]string{"-c", cfgPath, "--data-dir", dataDir, "--once"}))

	backend, err = prefs.OpenSQLite(db, prefs.SQLiteOptions{})
	require.NoError(t, err)
	defer backend.Close()
	p, err = prefs.Open(backend, bootstrap.Namespace)
	require.NoError(t, err)

	v, err := p.GetBool(context.Background(), bootstrap.KeyKeyboardModeFloat, false)
	require.NoError(t, err)
	assert.True(t, v)

	theme, err := p.GetString(context.Background(), "theme", "")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)
}

func TestRunBackendFailureWritesCrashReport(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	blocker := filepath.Join(dataDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	cfgPath := writeConfig(t, `
[preferences]
backend = "sqlite"
path = "`+filepath.ToSlash(filepath.Join(blocker, "prefs.db"))+`"

[logging]
level = "error"
`)

	err := run([]string{"--config", cfgPath, "--data-dir", dataDir, "--once"})
	require.Error(t, err)

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{CrashDir: filepath.Join(dataDir, "crashes")})
	reports, err := crash.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "open_backend", reports[0].Phase)
	assert.Equal(t, bootstrap.Namespace, reports[0].Context["namespace"])
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, "[bootstrap]\ncommit_failure = \"shrug\"\n")

	err := run([]string{"--config", cfgPath, "--data-dir", t.TempDir(), "--once"})
	assert.Error(t, err)
}

func TestParseFlags(t *testing.T) {
	opts, done, err := parseFlags([]string{"--data-dir", "/tmp/x", "--log-level", "debug", "--once"})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "/tmp/x", opts.dataDir)
	assert.Equal(t, "debug", opts.logLevel)
	assert.True(t, opts.once)

	_, _, err = parseFlags([]string{"extra"})
	assert.Error(t, err)

	_, done, err = parseFlags([]string{"--help"})
	assert.NoError(t, err)
	assert.True(t, done)

	_, _, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}
