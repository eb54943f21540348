// Package docker runs one profiler-and-target pair inside an ephemeral
// container and owns the cancellation protocol for that run.
//
// The container is created detached and then started attached, so that
// auxiliary exec calls can be issued into it for process discovery and
// signalling while the attached process streams output.
package docker

import (
	"context"
	"io"
	"os"
)

// Volume binds a host path into the container. The host path is created
// before the container starts.
type Volume struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// CreateSpec describes a container to create.
type CreateSpec struct {
	Name    string
	Image   string
	Argv    []string
	Env     map[string]string
	WorkDir string
	Volumes []Volume
	Labels  map[string]string

	// CapAdd lists Linux capabilities to grant, e.g. SYS_PTRACE.
	CapAdd      []string
	HostNetwork bool

	// TTY allocates a pseudo-terminal; set when stdin is a terminal.
	TTY bool
}

// Streams are the standard streams of the attached process.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ExecResult is the outcome of a command executed in a running container.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Process is the local process attached to a started container.
type Process interface {
	// Wait blocks until the process exits and its output streams are drained.
	// The error is non-nil only when the exit status is unavailable.
	Wait() (exitCode int, err error)
	// Signal delivers sig to the attached process.
	Signal(sig os.Signal) error
	// Kill terminates the attached process.
	Kill() error
}

// Engine is the container runtime used by the Supervisor.
type Engine interface {
	// Ping reports whether the engine is installed and its daemon reachable.
	Ping(ctx context.Context) error
	// Create creates a container without starting it and returns its id.
	Create(ctx context.Context, spec CreateSpec) (string, error)
	// Start starts a created container with its output attached.
	Start(ctx context.Context, id string, streams Streams) (Process, error)
	// Exec runs argv inside a running container and waits for it.
	Exec(ctx context.Context, id string, argv []string) (ExecResult, error)
	// Kill sends signal (e.g. "KILL") to the container's main process.
	Kill(ctx context.Context, id string, signal string) error
	// Remove force-removes a container, stopping it first if needed.
	Remove(ctx context.Context, id string) error
}
