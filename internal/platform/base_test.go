package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indragiek/uniprof/internal/constants"
	"github.com/indragiek/uniprof/internal/convert"
	"github.com/indragiek/uniprof/internal/docker"
	uerrors "github.com/indragiek/uniprof/internal/errors"
	hostrt "github.com/indragiek/uniprof/internal/runtime"
	"github.com/indragiek/uniprof/internal/speedscope"
)

func TestSettleHostRun(t *testing.T) {
	deps, _ := testDeps(t)
	p := NewRuby(deps)
	exitErr := &uerrors.ProfilerExitError{ExitCode: 1}
	cancelErr := &uerrors.CancellationError{Signal: os.Interrupt}

	t.Run("artifact wins over nonzero exit", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "raw")
		require.NoError(t, os.WriteFile(out, []byte(speedscopeDoc), 0o644))
		pc := NewProfileContext("x")

		require.NoError(t, p.SettleHostRun(t.Context(), out, exitErr, pc))
		assert.Equal(t, &Artifact{Kind: convert.KindSpeedscope, Path: out}, pc.RawArtifact)
	})

	t.Run("artifact wins over cancellation", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "raw")
		require.NoError(t, os.WriteFile(out, []byte(speedscopeDoc), 0o644))

		assert.NoError(t, p.SettleHostRun(t.Context(), out, cancelErr, NewProfileContext("x")))
	})

	t.Run("missing artifact keeps the run error", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "raw")
		pc := NewProfileContext("x")

		assert.Same(t, exitErr, p.SettleHostRun(t.Context(), out, exitErr, pc))
		assert.True(t, uerrors.IsCancellation(p.SettleHostRun(t.Context(), out, cancelErr, pc)))
		assert.Nil(t, pc.RawArtifact)
	})

	t.Run("clean exit without artifact", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "raw")
		err := p.SettleHostRun(t.Context(), out, nil, NewProfileContext("x"))
		assert.ErrorContains(t, err, "no profile was written")
	})
}

func TestCheckEnvironment(t *testing.T) {
	ctx := context.Background()

	t.Run("missing tool", func(t *testing.T) {
		deps, _ := testDeps(t)
		c := NewPython(deps).CheckEnvironment(ctx, constants.ModeHost)

		assert.False(t, c.IsValid)
		assert.Equal(t, []string{"py-spy not found in PATH"}, c.Errors)
		assert.NotEmpty(t, c.SetupInstructions)
		assert.Error(t, c.Err())
	})

	t.Run("sudo warning on darwin", func(t *testing.T) {
		deps, _ := testDeps(t)
		deps.LookPath = onPath("py-spy")
		deps.GOOS = "darwin"
		p := NewPython(deps)

		c := p.CheckEnvironment(ctx, constants.ModeHost)
		assert.True(t, c.IsValid)
		assert.Len(t, c.Warnings, 1)
		assert.True(t, p.NeedsSudo())

		deps.IsRoot = func() bool { return true }
		assert.False(t, NewPython(deps).NeedsSudo())
	})

	t.Run("engine unreachable", func(t *testing.T) {
		deps, engine := testDeps(t)
		engine.PingErr = errors.New("Cannot connect to the Docker daemon")

		c := NewRuby(deps).CheckEnvironment(ctx, constants.ModeContainer)
		assert.False(t, c.IsValid)
		assert.Contains(t, c.Errors[0], "Cannot connect to the Docker daemon")

		engine.PingErr = nil
		assert.True(t, NewRuby(deps).CheckEnvironment(ctx, constants.ModeContainer).IsValid)
	})

	t.Run("host os", func(t *testing.T) {
		deps, _ := testDeps(t)
		deps.LookPath = onPath("xcrun")

		c := NewInstruments(deps).CheckEnvironment(ctx, constants.ModeHost)
		assert.False(t, c.IsValid)
		assert.Contains(t, c.Errors[0], "requires darwin")

		c = NewInstruments(deps).CheckEnvironment(ctx, constants.ModeContainer)
		assert.False(t, c.IsValid)
	})

	t.Run("unknown mode", func(t *testing.T) {
		deps, _ := testDeps(t)
		assert.False(t, NewRuby(deps).CheckEnvironment(ctx, "vm").IsValid)
	})
}

func TestPerfCheck(t *testing.T) {
	tests := []struct {
		name      string
		paranoid  int
		root      bool
		wantValid bool
		wantWarn  bool
	}{
		{"permissive", 1, false, true, false},
		{"user space only", 2, false, true, true},
		{"locked down", 3, false, false, false},
		{"locked down as root", 3, true, true, false},
		{"unreadable", hostrt.ParanoidUnknown, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := testDeps(t)
			deps.LookPath = onPath("perf")
			deps.IsRoot = func() bool { return tt.root }
			deps.Host = func(context.Context) (*hostrt.Info, error) {
				return &hostrt.Info{OS: "linux", PerfEventParanoid: tt.paranoid}, nil
			}

			c := NewPerf(deps).CheckEnvironment(context.Background(), constants.ModeHost)
			assert.Equal(t, tt.wantValid, c.IsValid, c.Errors)
			assert.Equal(t, tt.wantWarn, len(c.Warnings) > 0, c.Warnings)
		})
	}
}

// volumeHostPath returns the host side of the volume mounted at target.
func volumeHostPath(spec docker.CreateSpec, target string) string {
	for _, v := range spec.Volumes {
		if v.ContainerPath == target {
			return v.HostPath
		}
	}
	return ""
}

func TestRunProfilerInContainer(t *testing.T) {
	deps, engine := testDeps(t)
	engine.Script = func(_ context.Context, spec docker.CreateSpec, _ docker.Streams) int {
		out := volumeHostPath(spec, constants.ContainerOutputDir)
		_ = os.WriteFile(filepath.Join(out, "raw"), []byte(speedscopeDoc), 0o644)
		// py-spy reports the target's failure after writing the profile.
		return 1
	}

	cwd := t.TempDir()
	outDir := t.TempDir()
	cache := filepath.Join(t.TempDir(), "cache")
	pc := NewProfileContext("python3 app.py")

	err := NewPython(deps).RunProfilerInContainer(t.Context(), []string{"python3", "/workspace/app.py"},
		filepath.Join(outDir, "raw"), RecordOptions{Cwd: cwd, CacheDir: cache, HostNetwork: true}, pc)
	require.NoError(t, err)

	require.NotNil(t, pc.RawArtifact)
	assert.Equal(t, filepath.Join(outDir, "raw"), pc.RawArtifact.Path)

	created := engine.Created()
	require.Len(t, created, 1)
	spec := created[0]
	assert.Equal(t, "ghcr.io/indragiek/uniprof-python:latest", spec.Image)
	assert.Equal(t, "/workspace", spec.WorkDir)
	assert.Equal(t, []string{"SYS_PTRACE"}, spec.CapAdd)
	assert.True(t, spec.HostNetwork)
	assert.Equal(t, []string{
		"py-spy", "record", "--format", "speedscope", "--output", "/uniprof/output/raw", "--subprocesses",
		"--", "python3", "/workspace/app.py",
	}, spec.Argv)
	assert.Equal(t, cwd, volumeHostPath(spec, "/workspace"))
	assert.Equal(t, outDir, volumeHostPath(spec, "/uniprof/output"))
	assert.Equal(t, filepath.Join(cache, "python", "uv"), volumeHostPath(spec, "/root/.cache/uv"))
	assert.DirExists(t, filepath.Join(cache, "python", "pip"))

	assert.Len(t, engine.Removes(), 1)
}

func TestRunProfilerInContainer_Failures(t *testing.T) {
	t.Run("nonzero exit without artifact", func(t *testing.T) {
		deps, engine := testDeps(t)
		engine.Script = func(context.Context, docker.CreateSpec, docker.Streams) int { return 2 }

		err := NewRuby(deps).RunProfilerInContainer(t.Context(), []string{"ruby", "x.rb"},
			filepath.Join(t.TempDir(), "raw"), RecordOptions{Cwd: t.TempDir()}, NewProfileContext("x"))

		var exitErr *uerrors.ProfilerExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 2, exitErr.ExitCode)
	})

	t.Run("clean exit without artifact", func(t *testing.T) {
		deps, engine := testDeps(t)
		engine.Script = func(context.Context, docker.CreateSpec, docker.Streams) int { return 0 }

		err := NewRuby(deps).RunProfilerInContainer(t.Context(), []string{"ruby", "x.rb"},
			filepath.Join(t.TempDir(), "raw"), RecordOptions{Cwd: t.TempDir()}, NewProfileContext("x"))
		assert.ErrorContains(t, err, "no profile was written")
	})

	t.Run("create failure", func(t *testing.T) {
		deps, engine := testDeps(t)
		engine.CreateErr = &uerrors.ContainerCreateError{Image: "x", Err: errors.New("no such image")}

		err := NewRuby(deps).RunProfilerInContainer(t.Context(), []string{"ruby", "x.rb"},
			filepath.Join(t.TempDir(), "raw"), RecordOptions{Cwd: t.TempDir()}, NewProfileContext("x"))

		var createErr *uerrors.ContainerCreateError
		assert.True(t, errors.As(err, &createErr))
		require.Len(t, engine.Removes(), 1)
		assert.Regexp(t, `^uniprof-ruby-[0-9a-f]{8}$`, engine.Removes()[0])
	})

	t.Run("unsupported", func(t *testing.T) {
		deps, _ := testDeps(t)
		err := NewInstruments(deps).RunProfilerInContainer(t.Context(), []string{"./app"}, "/tmp/raw", RecordOptions{}, NewProfileContext("x"))
		assert.Error(t, err)
	})
}

func TestPerfContainerCommand(t *testing.T) {
	deps, engine := testDeps(t)
	engine.Script = func(_ context.Context, spec docker.CreateSpec, _ docker.Streams) int {
		out := volumeHostPath(spec, constants.ContainerOutputDir)
		_ = os.WriteFile(filepath.Join(out, "raw"), []byte(perfText), 0o644)
		return 0
	}

	pc := NewProfileContext("x")
	err := NewBEAM(deps).RunProfilerInContainer(t.Context(), []string{"mix", "run"},
		filepath.Join(t.TempDir(), "raw"), RecordOptions{Cwd: t.TempDir()}, pc)
	require.NoError(t, err)

	spec := engine.Created()[0]
	assert.Equal(t, []string{"sh", "-c", perfScriptWrapper, "/uniprof/output/raw", "--", "mix", "run"}, spec.Argv)
	assert.Equal(t, "+JPperf true", spec.Env["ERL_FLAGS"])
	assert.Equal(t, []string{"SYS_ADMIN"}, spec.CapAdd)
	assert.Equal(t, convert.KindPerfScript, pc.RawArtifact.Kind)
}

func TestPostProcessProfile(t *testing.T) {
	deps, _ := testDeps(t)
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	require.NoError(t, os.WriteFile(raw, []byte(speedscopeDoc), 0o644))
	final := filepath.Join(dir, "final.json")

	pc := NewProfileContext("python3 app.py")
	pc.SetRawArtifact(convert.KindSpeedscope, raw)
	require.NoError(t, NewPython(deps).PostProcessProfile(t.Context(), raw, final, pc))

	f, err := speedscope.Read(final)
	require.NoError(t, err)
	assert.Equal(t, "uniprof-python", f.Exporter)
	assert.Equal(t, len(f.Profiles[0].Samples), len(f.Profiles[0].Weights))
}

func TestPerfPrepare_ConvertsBinaryData(t *testing.T) {
	deps, _ := testDeps(t)
	var called []string
	deps.Output = func(_ context.Context, name string, args ...string) ([]byte, error) {
		called = append(append(called, name), args...)
		return []byte(perfText), nil
	}

	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	require.NoError(t, os.WriteFile(raw, []byte("PERFILE2\x00\x00"), 0o600))
	final := filepath.Join(dir, "final.json")

	pc := NewProfileContext("server")
	require.NoError(t, NewPerf(deps).PostProcessProfile(t.Context(), raw, final, pc))

	assert.Equal(t, []string{"perf", "script", "-i", raw}, called)
	assert.Equal(t, []string{raw + ".txt"}, pc.TempFiles)

	f, err := speedscope.Read(final)
	require.NoError(t, err)
	assert.Equal(t, "uniprof-perf", f.Exporter)
}

func TestCleanup_NeverPanics(t *testing.T) {
	deps, _ := testDeps(t)
	p := NewBase(Recipe{
		Name:      "flaky",
		Profiler:  "flaky",
		OnCleanup: func(*ProfileContext) { panic("boom") },
	}, deps)

	assert.NotPanics(t, func() { p.Cleanup(NewProfileContext("x")) })
}
