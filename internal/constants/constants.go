// Package constants defines shared configuration constants.
package constants

import "time"

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".uniprof"

	// DefaultCacheDir is the directory (under the user's home) holding
	// persistent package-manager caches mounted into profiling containers.
	DefaultCacheDir = DefaultDir + "/" + "cache"

	// DefaultImageRegistry is the image prefix for per-platform profiler
	// containers. Images are named <registry>-<platform>:<tag>.
	DefaultImageRegistry = "ghcr.io/indragiek/uniprof"

	DefaultImageTag = "latest"

	// DefaultContainerEngine is the CLI used to drive containers.
	DefaultContainerEngine = "docker"

	// ContainerMountRoot is where the host working directory is bound inside
	// a profiling container.
	ContainerMountRoot = "/workspace"

	// ContainerOutputDir is where raw profiler artifacts are written inside a
	// profiling container. It is bound to a per-run host temp directory.
	ContainerOutputDir = "/uniprof/output"

	// ContainerCacheRoot is where plugin cache volumes are mounted.
	ContainerCacheRoot = "/uniprof/cache"
)

// Record modes.
const (
	ModeAuto      = "auto"
	ModeHost      = "host"
	ModeContainer = "container"
)

// Cancellation protocol.
const (
	// EscalationWindow is how close a second interrupt must follow the first
	// to force-terminate the profiling run.
	EscalationWindow = 2000 * time.Millisecond

	// ProcessDiscoveryAttempts bounds how often the container process tree is
	// queried for signal candidates before falling back to PID 1.
	ProcessDiscoveryAttempts = 10

	// ProcessDiscoveryInterval is the spacing between discovery attempts.
	ProcessDiscoveryInterval = 100 * time.Millisecond

	// ArtifactFlushAttempts bounds the wait for a profiler to finish writing
	// its output after the profiled process exits.
	ArtifactFlushAttempts = 5

	// ArtifactFlushInterval is the spacing between artifact checks.
	ArtifactFlushInterval = 200 * time.Millisecond

	// ContainerRemoveTimeout bounds the forced removal of a container.
	ContainerRemoveTimeout = 30 * time.Second

	// EngineProbeTimeout bounds the container engine reachability check.
	EngineProbeTimeout = 10 * time.Second
)

// Process exit codes.
const (
	ExitCodeFailure = 1

	// ExitCodeInterrupted follows the shell convention of 128+SIGINT.
	ExitCodeInterrupted = 130
)
