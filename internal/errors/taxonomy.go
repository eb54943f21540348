package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/indragiek/uniprof/internal/constants"
)

// EnvironmentError reports a missing tool or unreachable container engine.
// It blocks the run but carries setup instructions for the user.
type EnvironmentError struct {
	Platform          string
	Mode              string
	Errors            []string
	SetupInstructions []string
}

func (e *EnvironmentError) Error() string {
	msg := fmt.Sprintf("%s environment is not ready for %s mode", e.Platform, e.Mode)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

// ContainerCreateError is returned when a profiling container could not be
// created. No target code has run when this is returned.
type ContainerCreateError struct {
	Image  string
	Stderr string
	Err    error
}

func (e *ContainerCreateError) Error() string {
	msg := fmt.Sprintf("failed to create container from image %s: %v", e.Image, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *ContainerCreateError) Unwrap() error { return e.Err }

// ProfilerExitError reports a nonzero exit that the owning plugin did not
// recognize as expected. Stdout and Stderr hold captured output verbatim when
// output was captured.
type ProfilerExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ProfilerExitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "profiler exited with code %d", e.ExitCode)
	if e.Command != "" {
		fmt.Fprintf(&b, " (%s)", e.Command)
	}
	if s := strings.TrimRight(e.Stdout, "\n"); s != "" {
		b.WriteString("\n--- stdout ---\n")
		b.WriteString(s)
	}
	if s := strings.TrimRight(e.Stderr, "\n"); s != "" {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(s)
	}
	return b.String()
}

// CancellationError marks a user-requested stop. It is not a failure of the
// profiler or the target.
type CancellationError struct {
	Signal    os.Signal
	Escalated bool
}

func (e *CancellationError) Error() string {
	name := "interrupt"
	if e.Signal != nil {
		name = e.Signal.String()
	}
	if e.Escalated {
		return fmt.Sprintf("profiling forcibly stopped (%s received twice)", name)
	}
	return fmt.Sprintf("profiling cancelled (%s)", name)
}

// PathMappingWarning describes an argument that refers to a host path which
// will not be visible inside the profiling container. It never fails a run on
// its own.
type PathMappingWarning struct {
	// Path is the absolute path that resolves outside the mount root.
	Path string
	// Token is the argument the path was found in.
	Token string
	// Source names the scanner that reported it (positional, flag-value,
	// flag-pair).
	Source string
}

func (w PathMappingWarning) String() string {
	if w.Token != "" && w.Token != w.Path {
		return fmt.Sprintf("%s (in %q) is outside the working directory and will not exist inside the container", w.Path, w.Token)
	}
	return fmt.Sprintf("%s is outside the working directory and will not exist inside the container", w.Path)
}

// IsCancellation reports whether err is or wraps a CancellationError.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return stderrors.As(err, &ce)
}

// ExitCode maps an error to a process exit code: 0 for nil, 130 for
// cancellation and 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsCancellation(err):
		return constants.ExitCodeInterrupted
	default:
		return constants.ExitCodeFailure
	}
}
