// Package platform defines the profiler strategies uniprof can drive and the
// registry that picks one for a command.
//
// Each strategy is a Plugin. Most are a Base configured by a Recipe; the
// native platform is a composite that forwards to perf or Instruments.
package platform

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/indragiek/uniprof/internal/constants"
	"github.com/indragiek/uniprof/internal/docker"
	"github.com/indragiek/uniprof/internal/privilege"
	"github.com/indragiek/uniprof/internal/retry"
	hostrt "github.com/indragiek/uniprof/internal/runtime"
)

// Plugin is one profiler strategy.
type Plugin interface {
	// Name is the platform identifier ("python", "native", ...).
	Name() string
	// Profiler names the underlying tool.
	Profiler() string
	// Exporter is recorded in every canonical profile this plugin produces.
	Exporter() string
	Extensions() []string
	Executables() []string

	DetectCommand(argv []string) bool
	DetectExtension(name string) bool

	// DefaultMode is the mode used when the caller asks for auto. It may
	// inspect the target.
	DefaultMode(argv []string) string
	SupportsContainer() bool
	NeedsSudo() bool

	// CheckEnvironment reports whether the platform can run in mode. It never
	// fails; problems are in the result.
	CheckEnvironment(ctx context.Context, mode string) *EnvironmentCheck

	ContainerImage() string
	ContainerCacheVolumes(cacheBaseDir, cwd string) []docker.Volume

	// BuildLocalProfilerCommand returns the host command line. The profiler
	// must write to outputPath or register an alternate artifact in pc.
	BuildLocalProfilerCommand(argv []string, outputPath string, opts RecordOptions, pc *ProfileContext) ([]string, error)

	// SettleHostRun decides the outcome of a host run from runErr and the
	// presence of the raw artifact, and records the artifact in pc.
	SettleHostRun(ctx context.Context, outputPath string, runErr error, pc *ProfileContext) error

	// RunProfilerInContainer runs the full container recipe. argv has
	// already been translated to container paths. On success pc.RawArtifact
	// is set.
	RunProfilerInContainer(ctx context.Context, argv []string, outputPath string, opts RecordOptions, pc *ProfileContext) error

	// PostProcessProfile writes the canonical profile for rawPath to
	// finalPath.
	PostProcessProfile(ctx context.Context, rawPath, finalPath string, pc *ProfileContext) error

	// Cleanup releases plugin resources. It never fails.
	Cleanup(pc *ProfileContext)
}

// ProfilerName returns the tool p uses in mode. Plugins whose tool depends
// on the mode implement ProfilerFor.
func ProfilerName(p Plugin, mode string) string {
	if m, ok := p.(interface{ ProfilerFor(mode string) string }); ok {
		return m.ProfilerFor(mode)
	}
	return p.Profiler()
}

// RecordOptions are the caller's choices for one run.
type RecordOptions struct {
	Mode          string
	Cwd           string
	Verbose       bool
	ProfilerArgs  []string
	HostNetwork   bool
	CaptureOutput bool
	// Output is the final canonical profile path.
	Output string
	// CacheDir is the base directory for container cache volumes.
	CacheDir string
	// TTY allocates a terminal in the container.
	TTY bool
}

// Invocation is what a command builder gets to work with.
type Invocation struct {
	Argv []string
	// Output is the raw output path as the profiler sees it.
	Output string
	// HostOutput is the same file on the host.
	HostOutput string
	Options    RecordOptions
	Context    *ProfileContext
	// InContainer is set when building the container command.
	InContainer bool
}

// Deps are the collaborators plugins share.
type Deps struct {
	Logger     zerolog.Logger
	Engine     docker.Engine
	Supervisor *docker.Supervisor

	// Image resolves the container image for a platform name.
	Image func(platform string) string

	LookPath func(file string) (string, error)
	// Output runs a host command and returns its stdout.
	Output func(ctx context.Context, name string, args ...string) ([]byte, error)
	Host   func(ctx context.Context) (*hostrt.Info, error)
	IsRoot func() bool
	GOOS   string

	// Flush bounds the wait for a profiler to finish writing its artifact.
	Flush retry.Config
}

func (d Deps) withDefaults() Deps {
	if d.Image == nil {
		d.Image = func(name string) string {
			return fmt.Sprintf("%s-%s:%s", constants.DefaultImageRegistry, name, constants.DefaultImageTag)
		}
	}
	if d.LookPath == nil {
		d.LookPath = exec.LookPath
	}
	if d.Output == nil {
		d.Output = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			//nolint:gosec // G204: profiler helper tools with fixed arguments.
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}
	if d.Host == nil {
		detector := hostrt.NewDetector(d.Logger)
		d.Host = detector.Detect
	}
	if d.IsRoot == nil {
		d.IsRoot = privilege.IsRoot
	}
	if d.GOOS == "" {
		d.GOOS = runtime.GOOS
	}
	if d.Flush.MaxRetries == 0 {
		d.Flush = retry.Config{
			MaxRetries:     constants.ArtifactFlushAttempts,
			InitialBackoff: constants.ArtifactFlushInterval,
			Fixed:          true,
		}
	}
	if d.Supervisor == nil && d.Engine != nil {
		d.Supervisor = docker.NewSupervisor(d.Engine, d.Logger)
	}
	return d
}

// probeTimeout bounds helper commands run during environment checks.
const probeTimeout = 10 * time.Second
