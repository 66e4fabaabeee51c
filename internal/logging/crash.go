package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport describes a fatal failure of the process.
type CrashReport struct {
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	GOOS       string            `json:"goos"`
	GOARCH     string            `json:"goarch"`
	Component  string            `json:"component,omitempty"`
	ColdStart  string            `json:"cold_start,omitempty"`
	Phase      string            `json:"phase,omitempty"`
	Error      string            `json:"error,omitempty"`
	PanicValue string            `json:"panic_value,omitempty"`
	StackTrace string            `json:"stack_trace,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// CrashHandler writes crash reports to a directory.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	coldStart string
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash reports to.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// OnCrash is called after a report is written.
	OnCrash func(CrashReport)
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Component == "" {
		cfg.Component = "vr369ime"
	}
	return &CrashHandler{
		crashDir:  cfg.CrashDir,
		version:   cfg.Version,
		component: cfg.Component,
		onCrash:   cfg.OnCrash,
	}
}

// SetColdStart records the current cold-start ID in later reports.
func (h *CrashHandler) SetColdStart(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.coldStart = id
}

// Dir returns the crash report directory.
func (h *CrashHandler) Dir() string {
	return h.crashDir
}

// ReportError writes a report for a fatal error returned during phase.
func (h *CrashHandler) ReportError(phase string, err error, ctx map[string]string) (string, error) {
	report := h.newReport(phase, ctx)
	report.Error = err.Error()
	return h.write(report)
}

// Recover reports a panic raised by fn during phase and re-panics.
func (h *CrashHandler) Recover(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			report := h.newReport(phase, nil)
			report.PanicValue = fmt.Sprint(r)
			report.StackTrace = string(debug.Stack())
			h.write(report)
			panic(r)
		}
	}()
	fn()
}

func (h *CrashHandler) newReport(phase string, ctx map[string]string) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return CrashReport{
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
		Component: h.component,
		ColdStart: h.coldStart,
		Phase:     phase,
		Context:   ctx,
	}
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}
	return path, nil
}

// Reports returns the stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Cleanup removes crash reports older than maxAge.
func (h *CrashHandler) Cleanup(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
