// Package launcher is the host-side entry point of the input-method engine.
//
// It reads the keyboard defaults written at cold start and resolves the
// engine's initial operating state. Rendering and input handling live in the
// engine itself.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"vr369ime/internal/bootstrap"
	"vr369ime/internal/logging"
	"vr369ime/internal/prefs"
)

// ErrAlreadyInitialized is returned by a second InitData.
var ErrAlreadyInitialized = errors.New("launcher: already initialized")

// Orientation is the screen orientation.
type Orientation int

const (
	Portrait Orientation = iota
	Landscape
)

func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case Landscape:
		return "landscape"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// KeyboardMode is how the keyboard panel is placed.
type KeyboardMode int

const (
	// Docked pins the keyboard to the screen edge.
	Docked KeyboardMode = iota
	// Floating shows a movable keyboard panel.
	Floating
)

func (m KeyboardMode) String() string {
	switch m {
	case Docked:
		return "docked"
	case Floating:
		return "floating"
	default:
		return fmt.Sprintf("KeyboardMode(%d)", int(m))
	}
}

// DeviceClass identifies the hardware family.
type DeviceClass int

const (
	Generic DeviceClass = iota
	Quest
)

func (d DeviceClass) String() string {
	switch d {
	case Generic:
		return "generic"
	case Quest:
		return "quest"
	default:
		return fmt.Sprintf("DeviceClass(%d)", int(d))
	}
}

// State is the engine's operating state.
type State struct {
	Portrait  KeyboardMode
	Landscape KeyboardMode
	Device    DeviceClass
}

// Mode returns the keyboard mode for orientation o.
func (s State) Mode(o Orientation) KeyboardMode {
	if o == Landscape {
		return s.Landscape
	}
	return s.Portrait
}

func modeOf(floating bool) KeyboardMode {
	if floating {
		return Floating
	}
	return Docked
}

func deviceOf(quest bool) DeviceClass {
	if quest {
		return Quest
	}
	return Generic
}

// Launcher implements bootstrap.Launcher.
type Launcher struct {
	logger *logging.Logger

	mu          sync.RWMutex
	prefs       *prefs.Preferences
	state       State
	initialized bool
}

// New returns a Launcher. A nil logger discards output.
func New(logger *logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Launcher{logger: logger.WithComponent("launcher")}
}

var _ bootstrap.Launcher = (*Launcher)(nil)

// InitData reads the keyboard defaults and starts following changes to them.
func (l *Launcher) InitData(ctx context.Context, app *bootstrap.AppContext) error {
	l.mu.Lock()
	if l.initialized {
		l.mu.Unlock()
		return ErrAlreadyInitialized
	}
	l.mu.Unlock()

	p, err := app.Preferences(bootstrap.Namespace)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}

	state, err := l.read(ctx, p)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.prefs = p
	l.state = state
	l.initialized = true
	l.mu.Unlock()

	p.OnChange(l.onChange)

	l.logger.Info("engine state resolved",
		"cold_start", app.ID(),
		"portrait", state.Portrait.String(),
		"landscape", state.Landscape.String(),
		"device", state.Device.String(),
	)
	return nil
}

// read resolves State from the stored keys. Missing keys and values of the
// wrong kind fall back to the cold-start defaults.
func (l *Launcher) read(ctx context.Context, p *prefs.Preferences) (State, error) {
	values := make(map[string]bool, 3)
	for _, d := range bootstrap.Defaults() {
		v, err := p.GetBool(ctx, d.Key, d.Value)
		if errors.Is(err, prefs.ErrTypeMismatch) {
			l.logger.Warn("ignoring stored value", "key", d.Key, "error", err)
		} else if err != nil {
			return State{}, fmt.Errorf("read %s: %w", d.Key, err)
		}
		values[d.Key] = v
	}

	return State{
		Portrait:  modeOf(values[bootstrap.KeyKeyboardModeFloat]),
		Landscape: modeOf(values[bootstrap.KeyKeyboardModeFloatLandscape]),
		Device:    deviceOf(values[bootstrap.KeyIsQuestDevice]),
	}, nil
}

func (l *Launcher) onChange(key string) {
	switch key {
	case "", bootstrap.KeyKeyboardModeFloat, bootstrap.KeyKeyboardModeFloatLandscape, bootstrap.KeyIsQuestDevice:
	default:
		return
	}

	l.mu.RLock()
	p := l.prefs
	l.mu.RUnlock()

	state, err := l.read(context.Background(), p)
	if err != nil {
		l.logger.Error("refresh engine state", "key", key, "error", err)
		return
	}

	l.mu.Lock()
	changed := state != l.state
	l.state = state
	l.mu.Unlock()

	if changed {
		l.logger.Debug("engine state changed", "key", key)
	}
}

// Initialized reports whether InitData has succeeded.
func (l *Launcher) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// State returns the current engine state. It is the zero State before
// InitData.
func (l *Launcher) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Mode returns the keyboard mode for orientation o.
func (l *Launcher) Mode(o Orientation) KeyboardMode {
	return l.State().Mode(o)
}
