package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(lvl))
		if err != nil {
			t.Fatalf("round trip %v: %v", lvl, err)
		}
		if parsed != lvl {
			t.Errorf("expected %v, got %v", lvl, parsed)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("json: got %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("empty: got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if !strings.Contains(cfg.FilePath, "vr369ime") {
		t.Errorf("log path should mention vr369ime: %s", cfg.FilePath)
	}
}

func TestJSONFormatWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelDebug, Format: FormatJSON, Writer: &buf, Component: "vr369ime"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.WithComponent("bootstrap").Info("defaults applied", "keys", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "defaults applied" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["keys"] != float64(3) {
		t.Errorf("unexpected keys attr: %v", entry["keys"])
	}
	if !strings.Contains(buf.String(), `"component":"bootstrap"`) {
		t.Errorf("component attr missing: %s", buf.String())
	}
}

func TestSetLevelAffectsChildren(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: LevelWarn, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	child := l.WithComponent("launcher")

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	l.SetLevel(LevelDebug)
	child.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected child to follow parent level, got %q", buf.String())
	}
	if l.Level() != LevelDebug {
		t.Errorf("expected level debug, got %v", l.Level())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if l.Enabled(context.Background(), LevelError) {
		t.Error("discard logger should not enable error level")
	}
}

func TestFileRotator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}

	if _, err := r.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 5})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 2; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	backups, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 rotated file, got %v", backups)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("expected current log of %d bytes, got %d", len(chunk), info.Size())
	}
}

func TestCrashHandlerReportError(t *testing.T) {
	dir := t.TempDir()
	var seen []CrashReport
	h := NewCrashHandler(CrashHandlerConfig{
		CrashDir: dir,
		Version:  "test",
		OnCrash:  func(r CrashReport) { seen = append(seen, r) },
	})
	h.SetColdStart("cold-1")

	path, err := h.ReportError("launcher", errors.New("engine refused"), map[string]string{"namespace": "ns"})
	if err != nil {
		t.Fatalf("ReportError failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("report written outside crash dir: %s", path)
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Phase != "launcher" || r.Error != "engine refused" || r.ColdStart != "cold-1" {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.Context["namespace"] != "ns" {
		t.Errorf("context not stored: %+v", r.Context)
	}
	if len(seen) != 1 {
		t.Errorf("OnCrash called %d times", len(seen))
	}
}

func TestCrashHandlerRecoverRepanics(t *testing.T) {
	h := NewCrashHandler(CrashHandlerConfig{CrashDir: t.TempDir()})

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate")
		}
		reports, err := h.Reports()
		if err != nil {
			t.Fatalf("Reports failed: %v", err)
		}
		if len(reports) != 1 || reports[0].PanicValue != "boom" {
			t.Fatalf("unexpected reports: %+v", reports)
		}
		if reports[0].StackTrace == "" {
			t.Error("stack trace missing")
		}
	}()

	h.Recover("bootstrap", func() { panic("boom") })
}

func TestCrashHandlerCleanup(t *testing.T) {
	dir := t.TempDir()
	h := NewCrashHandler(CrashHandlerConfig{CrashDir: dir})

	path, err := h.ReportError("base", errors.New("old"), nil)
	if err != nil {
		t.Fatalf("ReportError failed: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if err := h.Cleanup(24 * time.Hour); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("old report should have been removed")
	}
}
