package platform

import (
	uerrors "github.com/indragiek/uniprof/internal/errors"
)

// EnvironmentCheck is the structured result of probing whether a platform can
// run in a given mode. Problems are reported here rather than as errors so the
// caller can print setup guidance before giving up.
type EnvironmentCheck struct {
	Platform          string   `json:"platform"`
	Mode              string   `json:"mode"`
	IsValid           bool     `json:"isValid"`
	Errors            []string `json:"errors,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	SetupInstructions []string `json:"setupInstructions,omitempty"`
}

// NewEnvironmentCheck returns a passing check.
func NewEnvironmentCheck(platform, mode string) *EnvironmentCheck {
	return &EnvironmentCheck{Platform: platform, Mode: mode, IsValid: true}
}

// Fail records a blocking problem.
func (c *EnvironmentCheck) Fail(msg string, instructions ...string) {
	c.IsValid = false
	c.Errors = append(c.Errors, msg)
	c.Instruct(instructions...)
}

// Warn records a non-blocking problem.
func (c *EnvironmentCheck) Warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// Instruct adds setup instructions, skipping duplicates.
func (c *EnvironmentCheck) Instruct(instructions ...string) {
	for _, in := range instructions {
		dup := false
		for _, have := range c.SetupInstructions {
			if have == in {
				dup = true
				break
			}
		}
		if !dup {
			c.SetupInstructions = append(c.SetupInstructions, in)
		}
	}
}

// Err converts a failing check into an EnvironmentError, or nil.
func (c *EnvironmentCheck) Err() error {
	if c.IsValid {
		return nil
	}
	return &uerrors.EnvironmentError{
		Platform:          c.Platform,
		Mode:              c.Mode,
		Errors:            c.Errors,
		SetupInstructions: c.SetupInstructions,
	}
}
