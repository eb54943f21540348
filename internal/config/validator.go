package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/indragiek/uniprof/internal/constants"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

// Validate validates GlobalConfig.
func (c *GlobalConfig) Validate() error {
	var errors []ValidationError

	if c.Version != "" && c.Version != SchemaVersion {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported config version %q (expected %q)", c.Version, SchemaVersion),
		})
	}

	switch c.Record.Mode {
	case constants.ModeAuto, constants.ModeHost, constants.ModeContainer:
	default:
		errors = append(errors, ValidationError{
			Field:   "record.mode",
			Message: fmt.Sprintf("mode must be one of auto, host, container (got %q)", c.Record.Mode),
		})
	}

	switch engine := strings.TrimSuffix(filepath.Base(c.Container.Engine), ".exe"); {
	case c.Container.Engine == "":
		errors = append(errors, ValidationError{
			Field:   "container.engine",
			Message: "container engine is required",
		})
	case engine != "docker" && engine != "podman":
		errors = append(errors, ValidationError{
			Field:   "container.engine",
			Message: fmt.Sprintf("container engine must be docker or podman (got %q)", c.Container.Engine),
		})
	}

	if c.Container.ImageRegistry == "" {
		errors = append(errors, ValidationError{
			Field:   "container.image_registry",
			Message: "image registry is required",
		})
	}

	if c.Container.ImageTag == "" {
		errors = append(errors, ValidationError{
			Field:   "container.image_tag",
			Message: "image tag is required",
		})
	}

	if c.Container.RemoveTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "container.remove_timeout",
			Message: "remove timeout must be positive",
		})
	}

	switch c.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level %q", c.Log.Level),
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}
