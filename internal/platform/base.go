package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/indragiek/uniprof/internal/constants"
	"github.com/indragiek/uniprof/internal/convert"
	"github.com/indragiek/uniprof/internal/docker"
	uerrors "github.com/indragiek/uniprof/internal/errors"
	"github.com/indragiek/uniprof/internal/pathmap"
	"github.com/indragiek/uniprof/internal/retry"
)

// CommandBuilder turns an Invocation into the argv to execute.
type CommandBuilder func(inv Invocation) ([]string, error)

// Cache is a persistent directory mounted into the container.
type Cache struct {
	// Name is the directory under the platform's cache base.
	Name string
	// ContainerPath is where the tool expects it.
	ContainerPath string
}

// Recipe configures a Base. Optional fields left nil get the defaults noted
// on each field when the Base is built.
type Recipe struct {
	Name        string
	Profiler    string
	Exporter    string
	Extensions  []string
	Executables []string
	RawKind     convert.Kind

	// Mode is the default mode. Container when the platform supports
	// containers, host otherwise, when empty.
	Mode string
	// NoContainer disables container mode.
	NoContainer bool
	// HostOS lists the operating systems host mode works on. Any when empty.
	HostOS []string
	// SudoOS lists the operating systems where host mode needs root.
	SudoOS []string

	// Tools must be on PATH for host mode.
	Tools []string
	// Setup are instructions shown when Tools are missing.
	Setup []string

	// Image overrides the platform used to pick the container image.
	Image string
	// Caches are mounted under the cache base directory.
	Caches []Cache
	// Denylist is excluded from the graceful interrupt. Defaults to the
	// profiler name; set an empty non-nil slice to exclude nothing.
	Denylist []string
	CapAdd   []string
	// Env is set in the container.
	Env map[string]string

	// HostCommand builds the host command. Host mode is unsupported when nil.
	HostCommand CommandBuilder
	// ContainerCommand builds the container command. Defaults to HostCommand.
	ContainerCommand CommandBuilder

	// DefaultMode overrides Mode by looking at the target.
	DefaultMode func(argv []string) string
	// Check adds platform checks for host mode.
	Check func(ctx context.Context, deps Deps, c *EnvironmentCheck)
	// Prepare turns the raw artifact into something RawKind can read.
	// Defaults to using the artifact as is.
	Prepare func(ctx context.Context, deps Deps, raw Artifact, pc *ProfileContext) (Artifact, error)
	// Resolve finds the artifact for outputPath, which a tool may have
	// written under a different name. Defaults to outputPath itself.
	Resolve func(outputPath string) (string, bool)
	// OnCleanup releases plugin resources.
	OnCleanup func(pc *ProfileContext)
}

// Base is a Plugin driven by a Recipe.
type Base struct {
	r      Recipe
	deps   Deps
	logger zerolog.Logger
}

// NewBase resolves r's defaults against deps.
func NewBase(r Recipe, deps Deps) *Base {
	deps = deps.withDefaults()

	if r.Exporter == "" {
		r.Exporter = "uniprof-" + r.Name
	}
	if r.Mode == "" {
		r.Mode = constants.ModeContainer
		if r.NoContainer {
			r.Mode = constants.ModeHost
		}
	}
	if r.Denylist == nil {
		r.Denylist = []string{r.Profiler}
	}
	if r.Image == "" {
		r.Image = r.Name
	}
	if r.ContainerCommand == nil {
		r.ContainerCommand = r.HostCommand
	}
	if r.DefaultMode == nil {
		mode := r.Mode
		r.DefaultMode = func([]string) string { return mode }
	}
	if r.Check == nil {
		r.Check = func(context.Context, Deps, *EnvironmentCheck) {}
	}
	if r.Prepare == nil {
		r.Prepare = func(_ context.Context, _ Deps, raw Artifact, _ *ProfileContext) (Artifact, error) {
			return raw, nil
		}
	}
	if r.Resolve == nil {
		r.Resolve = func(outputPath string) (string, bool) {
			return outputPath, exists(outputPath)
		}
	}
	if r.OnCleanup == nil {
		r.OnCleanup = func(*ProfileContext) {}
	}

	return &Base{
		r:      r,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "platform").Str("platform", r.Name).Logger(),
	}
}

func (b *Base) Name() string          { return b.r.Name }
func (b *Base) Profiler() string      { return b.r.Profiler }
func (b *Base) Exporter() string      { return b.r.Exporter }
func (b *Base) Extensions() []string  { return b.r.Extensions }
func (b *Base) Executables() []string { return b.r.Executables }

// RawKind is the format of the raw artifact.
func (b *Base) RawKind() convert.Kind { return b.r.RawKind }

// Denylist is the set of process names spared by the graceful interrupt.
func (b *Base) Denylist() []string { return b.r.Denylist }

// DetectCommand matches the base name of argv[0] against Executables,
// ignoring a version suffix ("python3.12") and ".exe".
func (b *Base) DetectCommand(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	name := commandName(argv[0])
	return slices.Contains(b.r.Executables, name) || slices.Contains(b.r.Executables, trimVersion(name))
}

func (b *Base) DetectExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext != "" && slices.Contains(b.r.Extensions, ext)
}

func (b *Base) DefaultMode(argv []string) string {
	mode := b.r.DefaultMode(argv)
	if mode == constants.ModeContainer && b.r.NoContainer {
		return constants.ModeHost
	}
	return mode
}

func (b *Base) SupportsContainer() bool { return !b.r.NoContainer }

func (b *Base) NeedsSudo() bool {
	return slices.Contains(b.r.SudoOS, b.deps.GOOS) && !b.deps.IsRoot()
}

func (b *Base) ContainerImage() string {
	return b.deps.Image(b.r.Image)
}

// ContainerCacheVolumes returns one volume per cache under
// cacheBaseDir/<platform>. The supervisor creates missing host directories.
func (b *Base) ContainerCacheVolumes(cacheBaseDir, _ string) []docker.Volume {
	if cacheBaseDir == "" {
		return nil
	}
	vols := make([]docker.Volume, 0, len(b.r.Caches))
	for _, c := range b.r.Caches {
		vols = append(vols, docker.Volume{
			HostPath:      filepath.Join(cacheBaseDir, b.r.Image, c.Name),
			ContainerPath: c.ContainerPath,
		})
	}
	return vols
}

func (b *Base) CheckEnvironment(ctx context.Context, mode string) *EnvironmentCheck {
	c := NewEnvironmentCheck(b.r.Name, mode)

	switch mode {
	case constants.ModeContainer:
		b.checkContainer(ctx, c)
	case constants.ModeHost:
		b.checkHost(ctx, c)
	default:
		c.Fail(fmt.Sprintf("unknown mode %q", mode))
	}
	return c
}

func (b *Base) checkContainer(ctx context.Context, c *EnvironmentCheck) {
	if b.r.NoContainer {
		c.Fail(fmt.Sprintf("%s does not support container mode", b.r.Name), "Run with --mode host.")
		return
	}
	if b.deps.Engine == nil {
		c.Fail("no container engine configured", "Install Docker (https://docs.docker.com/get-docker/) or Podman.")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, constants.EngineProbeTimeout)
	defer cancel()
	if err := b.deps.Engine.Ping(ctx); err != nil {
		c.Fail(fmt.Sprintf("container engine is not reachable: %v", err),
			"Install Docker (https://docs.docker.com/get-docker/) or Podman and make sure the daemon is running.",
			fmt.Sprintf("Alternatively install %s locally and run with --mode host.", b.r.Profiler))
	}
}

func (b *Base) checkHost(ctx context.Context, c *EnvironmentCheck) {
	if b.r.HostCommand == nil {
		c.Fail(fmt.Sprintf("%s cannot run on the host", b.r.Name), "Run with --mode container.")
		return
	}
	if len(b.r.HostOS) > 0 && !slices.Contains(b.r.HostOS, b.deps.GOOS) {
		msg := fmt.Sprintf("%s requires %s, this host is %s", b.r.Profiler, strings.Join(b.r.HostOS, " or "), b.deps.GOOS)
		if b.r.NoContainer {
			c.Fail(msg)
		} else {
			c.Fail(msg, "Run with --mode container.")
		}
		return
	}

	for _, tool := range b.r.Tools {
		if _, err := b.deps.LookPath(tool); err != nil {
			c.Fail(fmt.Sprintf("%s not found in PATH", tool), b.r.Setup...)
		}
	}
	if b.NeedsSudo() {
		c.Warn(fmt.Sprintf("%s needs root on %s; uniprof will fail unless run with sudo", b.r.Profiler, b.deps.GOOS))
		c.Instruct("Re-run with sudo, or use --mode container.")
	}

	b.r.Check(ctx, b.deps, c)
}

func (b *Base) BuildLocalProfilerCommand(argv []string, outputPath string, opts RecordOptions, pc *ProfileContext) ([]string, error) {
	if b.r.HostCommand == nil {
		return nil, fmt.Errorf("%s cannot run on the host", b.r.Name)
	}
	if len(argv) == 0 {
		return nil, errors.New("no command to profile")
	}
	return b.r.HostCommand(Invocation{
		Argv:       argv,
		Output:     outputPath,
		HostOutput: outputPath,
		Options:    opts,
		Context:    pc,
	})
}

// settle waits briefly for the raw artifact and decides the run's outcome.
// A present artifact wins over a nonzero exit or a cancellation, since
// several profilers exit nonzero after writing a good profile.
func (b *Base) settle(ctx context.Context, outputPath string, runErr error, pc *ProfileContext) error {
	var found string
	_ = retry.Do(ctx, b.deps.Flush, func() error {
		path, ok := b.r.Resolve(outputPath)
		if !ok {
			return errNotFlushed
		}
		found = path
		return nil
	}, nil)

	if found != "" {
		if runErr != nil {
			b.logger.Debug().Err(runErr).Str("artifact", found).Msg("Profiler exited unsuccessfully but wrote a profile")
		}
		pc.SetRawArtifact(b.r.RawKind, found)
		return nil
	}

	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("%s finished but no profile was written to %s", b.r.Profiler, outputPath)
}

var errNotFlushed = errors.New("profile not written yet")

func (b *Base) SettleHostRun(ctx context.Context, outputPath string, runErr error, pc *ProfileContext) error {
	return b.settle(ctx, outputPath, runErr, pc)
}

// RunProfilerInContainer mounts the working directory at the mount root and
// the raw output's directory at the container output directory, then runs
// the container command under the supervisor.
func (b *Base) RunProfilerInContainer(ctx context.Context, argv []string, outputPath string, opts RecordOptions, pc *ProfileContext) error {
	if b.r.NoContainer {
		return fmt.Errorf("%s does not support container mode", b.r.Name)
	}
	if b.deps.Supervisor == nil {
		return errors.New("no container engine configured")
	}
	if len(argv) == 0 {
		return errors.New("no command to profile")
	}

	outDir := filepath.Dir(outputPath)
	containerOut := filepath.ToSlash(filepath.Join(constants.ContainerOutputDir, filepath.Base(outputPath)))

	cmd, err := b.r.ContainerCommand(Invocation{
		Argv:        argv,
		Output:      containerOut,
		HostOutput:  outputPath,
		Options:     opts,
		Context:     pc,
		InContainer: true,
	})
	if err != nil {
		return err
	}

	volumes := []docker.Volume{
		{HostPath: opts.Cwd, ContainerPath: pathmap.MountRoot},
		{HostPath: outDir, ContainerPath: constants.ContainerOutputDir},
	}
	volumes = append(volumes, b.ContainerCacheVolumes(opts.CacheDir, opts.Cwd)...)

	env := make(map[string]string, len(b.r.Env)+len(pc.RuntimeEnv))
	for k, v := range b.r.Env {
		env[k] = v
	}
	for k, v := range pc.RuntimeEnv {
		env[k] = v
	}

	spec := docker.RunSpec{
		CreateSpec: docker.CreateSpec{
			Image:       b.ContainerImage(),
			Argv:        cmd,
			Env:         env,
			WorkDir:     pathmap.MountRoot,
			Volumes:     volumes,
			CapAdd:      b.r.CapAdd,
			HostNetwork: opts.HostNetwork,
			TTY:         opts.TTY,
		},
		Platform:      b.r.Name,
		Denylist:      b.r.Denylist,
		CaptureOutput: opts.CaptureOutput,
	}

	b.logger.Debug().
		Str("image", spec.Image).
		Strs("argv", cmd).
		Msg("Running profiler in container")

	_, runErr := b.deps.Supervisor.Run(ctx, spec)

	var createErr *uerrors.ContainerCreateError
	if errors.As(runErr, &createErr) {
		return runErr
	}
	return b.settle(ctx, outputPath, runErr, pc)
}

func (b *Base) PostProcessProfile(ctx context.Context, rawPath, finalPath string, pc *ProfileContext) error {
	raw := Artifact{Kind: b.r.RawKind, Path: rawPath}
	if pc.RawArtifact != nil && pc.RawArtifact.Path == rawPath {
		raw = *pc.RawArtifact
	}

	prepared, err := b.r.Prepare(ctx, b.deps, raw, pc)
	if err != nil {
		return fmt.Errorf("failed to prepare %s output: %w", b.r.Profiler, err)
	}

	return convert.ConvertFile(prepared.Kind, prepared.Path, finalPath, convert.Options{
		Name:     pc.Label,
		Exporter: b.r.Exporter,
	})
}

func (b *Base) Cleanup(pc *ProfileContext) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Interface("panic", r).Msg("Plugin cleanup panicked")
		}
	}()
	b.r.OnCleanup(pc)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// commandName is the base name of a command without ".exe".
func commandName(arg0 string) string {
	name := filepath.Base(strings.ReplaceAll(arg0, "\\", "/"))
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// trimVersion strips a trailing version such as "3.12" or "-3.1".
func trimVersion(name string) string {
	trimmed := strings.TrimRight(name, "0123456789.")
	trimmed = strings.TrimSuffix(trimmed, "-")
	if trimmed == "" {
		return name
	}
	return trimmed
}
