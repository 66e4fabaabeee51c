// vr369-ime starts the VR input method process.
//
// On every cold start it resets the keyboard defaults in the shared
// preference namespace (floating keyboard in both orientations, Quest device
// class) and then initializes the input-method engine.
//
// Usage:
//
//	vr369-ime [--config path] [--data-dir dir] [--log-level level] [--once]
//
// Configuration is read from TOML, JSON or YAML. VR369IME_* environment
// variables and a .env file in the working directory override it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"vr369ime/internal/bootstrap"
	"vr369ime/internal/config"
	"vr369ime/internal/launcher"
	"vr369ime/internal/logging"
	"vr369ime/internal/prefs"
)

// version is set by the linker.
var version = "dev"

const crashRetention = 30 * 24 * time.Hour

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "vr369-ime: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	dataDir    string
	logLevel   string
	once       bool
}

func parseFlags(args []string) (*options, bool, error) {
	var opts options
	flags := pflag.NewFlagSet("vr369-ime", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default: search ., config dir, data dir)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.once, "once", false, "exit after the cold-start sequence")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if *showVersion {
		fmt.Println("vr369-ime", version)
		return nil, true, nil
	}
	if flags.NArg() > 0 {
		return nil, false, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}
	return &opts, false, nil
}

func run(args []string) error {
	opts, done, err := parseFlags(args)
	if err != nil || done {
		return err
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	path := opts.configPath
	if path == "" {
		if path = config.FindConfigFile(); path == "" {
			path = config.ConfigPath()
		}
	}

	loader := config.NewLoader(path)
	defer loader.Close()

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		CrashDir:  cfg.CrashDir(),
		Version:   version,
		Component: "vr369-ime",
	})
	if err := crash.Cleanup(crashRetention); err != nil {
		logger.Warn("crash report cleanup failed", "error", err)
	}

	backend, err := prefs.OpenBackend(prefs.BackendOptions{
		Kind:        cfg.Preferences.Backend,
		Path:        cfg.PreferencesPath(),
		BusyTimeout: cfg.BusyTimeout(),
	})
	if err != nil {
		return fatal(crash, logger, "open_backend", err, cfg)
	}
	defer backend.Close()

	policy, err := bootstrap.ParseCommitPolicy(cfg.Bootstrap.CommitFailure)
	if err != nil {
		return err
	}

	engine := launcher.New(logger)
	app, err := bootstrap.New(bootstrap.Options{
		Backend:      backend,
		Launcher:     engine,
		Logger:       logger,
		DataDir:      cfg.BaseDir(),
		CommitPolicy: policy,
	})
	if err != nil {
		return err
	}
	crash.SetColdStart(app.Context().ID())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var createErr error
	crash.Recover("on_create", func() {
		createErr = app.OnCreate(ctx)
	})
	if createErr != nil {
		phase := "on_create"
		var pe *bootstrap.PhaseError
		if errors.As(createErr, &pe) {
			phase = pe.Phase
		}
		return fatal(crash, logger, phase, createErr, cfg)
	}

	state := engine.State()
	logger.Info("ready",
		"portrait", state.Portrait.String(),
		"landscape", state.Landscape.String(),
		"device", state.Device.String(),
	)

	if opts.once {
		return nil
	}

	loader.OnChange(func(c *config.Config) {
		if opts.logLevel != "" {
			return
		}
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return
		}
		if level != logger.Level() {
			logger.SetLevel(level)
			logger.Info("log level changed", "level", logging.LevelString(level))
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch disabled", "path", path, "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case err := <-loader.Errors():
			logger.Warn("config reload failed", "error", err)
		}
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.LogFilePath()
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.MaxAge = cfg.Logging.MaxAgeDays
	lc.Compress = cfg.Logging.Compress

	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// fatal writes a crash report for err and returns it.
func fatal(crash *logging.CrashHandler, logger *logging.Logger, phase string, err error, cfg *config.Config) error {
	report, werr := crash.ReportError(phase, err, map[string]string{
		"backend":   cfg.Preferences.Backend,
		"prefs":     cfg.PreferencesPath(),
		"namespace": bootstrap.Namespace,
	})
	if werr != nil {
		logger.Error("write crash report", "error", werr)
	} else {
		logger.Error("startup failed", "phase", phase, "error", err, "report", report)
	}
	return err
}
