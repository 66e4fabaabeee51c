// Package bootstrap runs the cold-start sequence of the input method process.
//
// On creation the Application runs base initialization, resets the keyboard
// defaults in the shared preference namespace, then hands off to the
// input-method engine through the Launcher interface:
//
//	app, _ := bootstrap.New(bootstrap.Options{Backend: b, Launcher: l})
//	if err := app.OnCreate(ctx); err != nil { ... }
//
// The defaults commit always completes before the Launcher is called.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"vr369ime/internal/logging"
	"vr369ime/internal/prefs"
)

var (
	// ErrAlreadyInitialized is returned by a second OnCreate.
	ErrAlreadyInitialized = errors.New("bootstrap: already initialized")

	// ErrNoBackend is returned by New without a preference backend.
	ErrNoBackend = errors.New("bootstrap: no preference backend")

	// ErrNoLauncher is returned by New without a launcher.
	ErrNoLauncher = errors.New("bootstrap: no launcher")
)

// Startup phases, in execution order.
const (
	PhaseBaseInit      = "base_init"
	PhaseApplyDefaults = "apply_defaults"
	PhaseLauncherInit  = "launcher_init"
)

// PhaseError is a startup failure tagged with the phase that produced it.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Launcher is the input-method engine entry point called after the defaults
// are committed.
type Launcher interface {
	InitData(ctx context.Context, app *AppContext) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, app *AppContext) error

// InitData calls f(ctx, app).
func (f LauncherFunc) InitData(ctx context.Context, app *AppContext) error {
	return f(ctx, app)
}

// AppContext is the application-scoped context handed to the Launcher.
type AppContext struct {
	id        string
	backend   prefs.Backend
	logger    *logging.Logger
	dataDir   string
	startedAt time.Time

	mu    sync.Mutex
	prefs map[string]*prefs.Preferences
}

// NewAppContext returns a context with a fresh cold-start ID.
// A nil logger discards output.
func NewAppContext(backend prefs.Backend, logger *logging.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AppContext{
		id:        uuid.NewString(),
		backend:   backend,
		logger:    logger,
		dataDir:   dataDir,
		startedAt: time.Now(),
		prefs:     make(map[string]*prefs.Preferences),
	}
}

// ID identifies this cold start.
func (a *AppContext) ID() string { return a.id }

// Logger returns the application logger.
func (a *AppContext) Logger() *logging.Logger { return a.logger }

// DataDir returns the application data directory.
func (a *AppContext) DataDir() string { return a.dataDir }

// StartedAt returns when the context was created.
func (a *AppContext) StartedAt() time.Time { return a.startedAt }

// Preferences returns the handle for namespace. Every caller in the process
// shares one handle per namespace, so change listeners see each other's
// commits.
func (a *AppContext) Preferences(namespace string) (*prefs.Preferences, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.prefs[namespace]; ok {
		return p, nil
	}
	p, err := prefs.Open(a.backend, namespace)
	if err != nil {
		return nil, err
	}
	a.prefs[namespace] = p
	return p, nil
}

// State is the lifecycle state of an Application.
type State int

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures an Application.
type Options struct {
	// Backend stores preferences. Required.
	Backend prefs.Backend

	// Launcher is called once the defaults are committed. Required.
	Launcher Launcher

	// Logger defaults to a discarding logger.
	Logger *logging.Logger

	// DataDir is passed to the Launcher through the AppContext.
	DataDir string

	// CommitPolicy applies to the defaults commit.
	CommitPolicy CommitPolicy

	// BaseInit runs before anything else. Defaults to DefaultBaseInit.
	BaseInit func(ctx context.Context, app *AppContext) error
}

// Application owns the cold-start sequence.
type Application struct {
	ctx      *AppContext
	launcher Launcher
	writer   *DefaultsWriter
	baseInit func(ctx context.Context, app *AppContext) error

	mu      sync.Mutex
	created bool
	state   State
}

// New returns an Application in the Uninitialized state.
func New(opts Options) (*Application, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if opts.Launcher == nil {
		return nil, ErrNoLauncher
	}
	baseInit := opts.BaseInit
	if baseInit == nil {
		baseInit = DefaultBaseInit
	}

	logger := opts.Logger
	if logger != nil {
		logger = logger.WithComponent("bootstrap")
	}

	return &Application{
		ctx:      NewAppContext(opts.Backend, logger, opts.DataDir),
		launcher: opts.Launcher,
		writer:   NewDefaultsWriter(opts.CommitPolicy),
		baseInit: baseInit,
	}, nil
}

// DefaultBaseInit creates the data directory.
func DefaultBaseInit(_ context.Context, app *AppContext) error {
	if app.DataDir() == "" {
		return nil
	}
	if err := os.MkdirAll(app.DataDir(), 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// Context returns the application context.
func (a *Application) Context() *AppContext {
	return a.ctx
}

// State returns the current lifecycle state.
func (a *Application) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnCreate runs the cold-start sequence. It may be called once per
// Application; later calls return ErrAlreadyInitialized whatever the outcome
// of the first. The steps run in order and a failure stops the sequence:
//
//  1. base initialization
//  2. reset the keyboard defaults with one commit
//  3. Launcher.InitData
//
// A Launcher failure does not undo the committed defaults.
// Failures are returned as *PhaseError.
func (a *Application) OnCreate(ctx context.Context) error {
	a.mu.Lock()
	if a.created {
		a.mu.Unlock()
		return ErrAlreadyInitialized
	}
	a.created = true
	a.mu.Unlock()

	log := a.ctx.Logger()
	log.Info("cold start", "id", a.ctx.ID(), "data_dir", a.ctx.DataDir())

	if err := a.baseInit(ctx, a.ctx); err != nil {
		return &PhaseError{Phase: PhaseBaseInit, Err: err}
	}

	if err := a.writer.ApplyDefaults(ctx, a.ctx); err != nil {
		return &PhaseError{Phase: PhaseApplyDefaults, Err: err}
	}

	if err := a.launcher.InitData(ctx, a.ctx); err != nil {
		return &PhaseError{Phase: PhaseLauncherInit, Err: err}
	}

	a.mu.Lock()
	a.state = Initialized
	a.mu.Unlock()

	log.Info("initialized",
		"id", a.ctx.ID(),
		"elapsed", time.Since(a.ctx.StartedAt()),
	)
	return nil
}
