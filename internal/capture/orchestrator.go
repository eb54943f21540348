// Package capture drives one profiling run end to end: it picks the platform
// and mode, runs the profiler on the host or in a container, and turns the
// raw output into a canonical profile.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/indragiek/uniprof/internal/constants"
	uerrors "github.com/indragiek/uniprof/internal/errors"
	"github.com/indragiek/uniprof/internal/pathmap"
	"github.com/indragiek/uniprof/internal/platform"
	"github.com/indragiek/uniprof/internal/privilege"
	"github.com/indragiek/uniprof/internal/speedscope"
)

// Request is one record invocation.
type Request struct {
	// Argv is the command to profile.
	Argv []string
	// Platform forces a platform; detected from Argv when empty.
	Platform string
	Options  platform.RecordOptions
}

// Outcome describes a finished capture.
type Outcome struct {
	Platform   string
	Mode       string
	OutputPath string
	Exporter   string
	Profiles   int
	Samples    int
	Warnings   []uerrors.PathMappingWarning
	Check      *platform.EnvironmentCheck
	Duration   time.Duration
}

// Orchestrator runs captures.
type Orchestrator struct {
	registry *platform.Registry
	host     *HostRunner
	logger   zerolog.Logger
	now      func() time.Time
	tempDir  string

	// outputDir receives profiles when the request names no output path.
	outputDir string
	environ   func() []string

	// fixOwnership hands the final profile back to the invoking user when
	// running under sudo.
	fixOwnership func(path string) error
	// fixTreeOwnership does the same for cache directories populated by a
	// container run.
	fixTreeOwnership func(root string) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHostRunner replaces the host runner.
func WithHostRunner(h *HostRunner) Option {
	return func(o *Orchestrator) { o.host = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTempDir sets where raw output and default profiles are written.
func WithTempDir(dir string) Option {
	return func(o *Orchestrator) { o.tempDir = dir }
}

// WithOutputDir sets where profiles go when no output path is requested.
// Defaults to the temp directory.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) { o.outputDir = dir }
}

// WithEnviron replaces os.Environ as the base of the profiler environment.
func WithEnviron(environ func() []string) Option {
	return func(o *Orchestrator) { o.environ = environ }
}

// NewOrchestrator creates an orchestrator over registry.
func NewOrchestrator(registry *platform.Registry, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:         registry,
		logger:           logger.With().Str("component", "capture").Logger(),
		now:              time.Now,
		tempDir:          os.TempDir(),
		environ:          os.Environ,
		fixOwnership:     privilege.FixFileOwnership,
		fixTreeOwnership: privilege.FixTreeOwnership,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.host == nil {
		o.host = NewHostRunner(logger)
	}
	return o
}

// ResolveMode applies an explicit mode or asks the plugin for its default,
// and rejects container mode for plugins that cannot run in one.
func ResolveMode(p platform.Plugin, requested string, argv []string) (string, error) {
	mode := requested
	switch mode {
	case "", constants.ModeAuto:
		mode = p.DefaultMode(argv)
	case constants.ModeHost, constants.ModeContainer:
	default:
		return "", fmt.Errorf("invalid mode %q (expected auto, host or container)", requested)
	}

	if mode == constants.ModeContainer && !p.SupportsContainer() {
		return "", fmt.Errorf("platform %s does not support container mode; use --mode host", p.Name())
	}
	return mode, nil
}

// Record profiles req.Argv and writes the canonical profile. Temporary files
// are removed and the plugin is cleaned up on every path.
func (o *Orchestrator) Record(ctx context.Context, req Request) (*Outcome, error) {
	if len(req.Argv) == 0 {
		return nil, errors.New("no command to profile")
	}
	start := o.now()
	opts := req.Options

	p, err := o.registry.Resolve(req.Platform, req.Argv)
	if err != nil {
		return nil, err
	}

	mode, err := ResolveMode(p, opts.Mode, req.Argv)
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	logger := o.logger.With().Str("platform", p.Name()).Str("mode", mode).Logger()
	logger.Debug().Strs("argv", req.Argv).Msg("Starting capture")

	check := p.CheckEnvironment(ctx, mode)
	for _, w := range check.Warnings {
		logger.Warn().Msg(w)
	}
	if err := check.Err(); err != nil {
		return &Outcome{Platform: p.Name(), Mode: mode, Check: check}, err
	}

	if opts.Cwd == "" {
		if opts.Cwd, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	if opts.Cwd, err = filepath.Abs(opts.Cwd); err != nil {
		return nil, err
	}

	pc := platform.NewProfileContext(strings.Join(req.Argv, " "))
	defer p.Cleanup(pc)
	defer uerrors.DeferClose(logger, pc, "Failed to remove temporary files")

	rawDir, err := os.MkdirTemp(o.tempDir, "uniprof-raw-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	pc.AddTempDir(rawDir)
	rawPath := filepath.Join(rawDir, "raw")

	outcome := &Outcome{Platform: p.Name(), Mode: mode, Exporter: p.Exporter(), Check: check}

	if mode == constants.ModeContainer {
		outcome.Warnings = o.preflight(logger, opts.Cwd, req.Argv, opts.ProfilerArgs)
		argv := pathmap.TranslateArgs(opts.Cwd, req.Argv)
		opts.ProfilerArgs = pathmap.TranslateArgs(opts.Cwd, opts.ProfilerArgs)

		err = p.RunProfilerInContainer(ctx, argv, rawPath, opts, pc)
		if opts.CacheDir != "" {
			if ferr := o.fixTreeOwnership(opts.CacheDir); ferr != nil {
				logger.Warn().Err(ferr).Str("dir", opts.CacheDir).Msg("Failed to fix cache directory ownership")
			}
		}
	} else {
		err = o.runHost(ctx, p, req.Argv, rawPath, opts, pc)
	}
	if err != nil {
		return outcome, err
	}
	if pc.RawArtifact == nil {
		return outcome, fmt.Errorf("%s did not produce a profile", platform.ProfilerName(p, mode))
	}

	final, err := o.finalPath(p.Name(), opts.Output)
	if err != nil {
		return outcome, err
	}
	if err := p.PostProcessProfile(ctx, pc.RawArtifact.Path, final, pc); err != nil {
		return outcome, err
	}
	if err := o.fixOwnership(final); err != nil {
		logger.Warn().Err(err).Str("path", final).Msg("Failed to fix profile ownership")
	}

	f, err := speedscope.Read(final)
	if err != nil {
		return outcome, err
	}
	outcome.OutputPath = final
	outcome.Exporter = f.Exporter
	outcome.Profiles = len(f.Profiles)
	outcome.Samples = f.TotalSamples()
	outcome.Duration = o.now().Sub(start)

	logger.Info().
		Str("output", final).
		Int("samples", outcome.Samples).
		Dur("duration", outcome.Duration).
		Msg("Profile written")
	return outcome, nil
}

func (o *Orchestrator) runHost(ctx context.Context, p platform.Plugin, argv []string, rawPath string, opts platform.RecordOptions, pc *platform.ProfileContext) error {
	if p.NeedsSudo() {
		return fmt.Errorf("%s needs root on this system; re-run with sudo or use --mode container", platform.ProfilerName(p, constants.ModeHost))
	}

	cmd, err := p.BuildLocalProfilerCommand(argv, rawPath, opts, pc)
	if err != nil {
		return err
	}

	_, runErr := o.host.Run(ctx, HostCommand{
		Argv:          cmd,
		Env:           pc.Environ(o.environ()),
		Dir:           opts.Cwd,
		CaptureOutput: opts.CaptureOutput,
	})
	return p.SettleHostRun(ctx, rawPath, runErr, pc)
}

// preflight reports arguments that name host paths the container cannot see.
func (o *Orchestrator) preflight(logger zerolog.Logger, cwd string, argv, profilerArgs []string) []uerrors.PathMappingWarning {
	args := append(append([]string(nil), profilerArgs...), argv...)
	warnings := pathmap.Scan(cwd, args)
	for _, w := range warnings {
		logger.Warn().Str("path", w.Path).Str("source", w.Source).Msg(w.String())
	}
	return warnings
}

func (o *Orchestrator) finalPath(name, requested string) (string, error) {
	path := requested
	if path == "" {
		dir := o.outputDir
		if dir == "" {
			dir = o.tempDir
		}
		path = filepath.Join(dir, fmt.Sprintf("uniprof-%s-%d.json", name, o.now().Unix()))
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return path, nil
}
