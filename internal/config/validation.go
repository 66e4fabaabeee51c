package config

import (
	"fmt"
	"strings"

	"vr369ime/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether a field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig performs validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validatePreferences(&c.Preferences)...)
	errs = append(errs, validateBootstrap(&c.Bootstrap)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePreferences(p *PreferencesConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Backend {
	case "sqlite", "file", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "preferences.backend",
			Message: fmt.Sprintf("must be sqlite, file or memory (got %q)", p.Backend),
		})
	}

	if p.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "preferences.busy_timeout_ms",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateBootstrap(b *BootstrapConfig) ValidationErrors {
	switch b.CommitFailure {
	case CommitFailureLog, CommitFailureFail:
		return nil
	default:
		return ValidationErrors{{
			Field:   "bootstrap.commit_failure",
			Message: fmt.Sprintf("must be %q or %q (got %q)", CommitFailureLog, CommitFailureFail, b.CommitFailure),
		}}
	}
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{Field: "logging.format", Message: err.Error()})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("must be stdout, stderr, file or both (got %q)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging",
			Message: "rotation limits must not be negative",
		})
	}
	return errs
}
