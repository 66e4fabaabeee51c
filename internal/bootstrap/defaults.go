package bootstrap

import (
	"context"
	"fmt"
	"strings"
)

// Namespace is the preference set shared with the input-method engine.
// It is the durable identity of the stored defaults and must not change.
const Namespace = "com.vr369.imemodule_preferences"

// Keys written on every cold start.
const (
	// KeyKeyboardModeFloat selects the floating keyboard in portrait.
	KeyKeyboardModeFloat = "keyboard_mode_float"

	// KeyKeyboardModeFloatLandscape selects the floating keyboard in landscape.
	KeyKeyboardModeFloatLandscape = "keyboard_mode_float_landscape"

	// KeyIsQuestDevice marks the device as a Quest-class headset.
	KeyIsQuestDevice = "is_quest_device"
)

// Default is one key reset on startup.
type Default struct {
	Key   string
	Value bool
}

// Defaults returns the values written by ApplyDefaults, in write order.
func Defaults() []Default {
	return []Default{
		{Key: KeyKeyboardModeFloat, Value: true},
		{Key: KeyKeyboardModeFloatLandscape, Value: true},
		{Key: KeyIsQuestDevice, Value: true},
	}
}

// CommitPolicy decides what a failed defaults commit does to startup.
type CommitPolicy int

const (
	// CommitLogAndContinue logs the failure and lets startup proceed.
	CommitLogAndContinue CommitPolicy = iota

	// CommitFailFast returns the failure to the caller.
	CommitFailFast
)

func (p CommitPolicy) String() string {
	switch p {
	case CommitLogAndContinue:
		return "log"
	case CommitFailFast:
		return "fail"
	default:
		return fmt.Sprintf("CommitPolicy(%d)", int(p))
	}
}

// ParseCommitPolicy parses "log" or "fail". Empty selects CommitLogAndContinue.
func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch strings.ToLower(s) {
	case "", "log":
		return CommitLogAndContinue, nil
	case "fail":
		return CommitFailFast, nil
	default:
		return 0, fmt.Errorf("unknown commit policy: %q", s)
	}
}

// DefaultsWriter resets the startup keys to their defaults.
type DefaultsWriter struct {
	Policy CommitPolicy
}

// NewDefaultsWriter returns a writer using policy.
func NewDefaultsWriter(policy CommitPolicy) *DefaultsWriter {
	return &DefaultsWriter{Policy: policy}
}

// ApplyDefaults overwrites every key in Defaults with a single commit.
// Prior values are discarded. Keys outside Defaults are neither read nor
// written.
func (w *DefaultsWriter) ApplyDefaults(ctx context.Context, app *AppContext) error {
	p, err := app.Preferences(Namespace)
	if err != nil {
		return w.failed(app, fmt.Errorf("open %s: %w", Namespace, err))
	}

	ed := p.Edit()
	for _, d := range Defaults() {
		ed.PutBool(d.Key, d.Value)
	}

	if err := ed.Commit(ctx); err != nil {
		return w.failed(app, err)
	}

	app.Logger().Debug("defaults applied",
		"namespace", Namespace,
		"keys", len(Defaults()),
	)
	return nil
}

func (w *DefaultsWriter) failed(app *AppContext, err error) error {
	if w.Policy == CommitFailFast {
		return err
	}
	app.Logger().Error("defaults not saved",
		"namespace", Namespace,
		"policy", w.Policy.String(),
		"error", err,
	)
	return nil
}
