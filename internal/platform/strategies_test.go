package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indragiek/uniprof/internal/constants"
)

func TestBuildLocalProfilerCommand(t *testing.T) {
	t.Setenv("NODE_OPTIONS", "")
	t.Setenv("JAVA_TOOL_OPTIONS", "")

	deps, _ := testDeps(t)
	out := filepath.Join("/tmp", "run", "raw")

	tests := []struct {
		name    string
		plugin  Plugin
		argv    []string
		args    []string
		want    []string
		wantEnv map[string]string
	}{
		{
			name:   "py-spy with script",
			plugin: NewPython(deps),
			argv:   []string{"app.py", "--n", "3"},
			args:   []string{"--rate", "200"},
			want: []string{"py-spy", "record", "--format", "speedscope", "--output", out, "--subprocesses",
				"--rate", "200", "--", "python3", "app.py", "--n", "3"},
		},
		{
			name:   "rbspy under bundler",
			plugin: NewRuby(deps),
			argv:   []string{"bundle", "exec", "rspec"},
			want:   []string{"rbspy", "record", "--format", "speedscope", "--file", out, "--silent", "--", "bundle", "exec", "rspec"},
		},
		{
			name:   "node flags",
			plugin: NewNodeJS(deps),
			argv:   []string{"node", "server.js"},
			want:   []string{"node", "--cpu-prof", "--cpu-prof-dir", filepath.Dir(out), "--cpu-prof-name", "raw", "server.js"},
		},
		{
			name:    "node launcher uses NODE_OPTIONS",
			plugin:  NewNodeJS(deps),
			argv:    []string{"npm", "test"},
			want:    []string{"npm", "test"},
			wantEnv: map[string]string{"NODE_OPTIONS": `--cpu-prof --cpu-prof-dir="` + filepath.Dir(out) + `"`},
		},
		{
			name:   "dotnet-trace with dll",
			plugin: NewDotNet(deps),
			argv:   []string{"bin/App.dll"},
			want:   []string{"dotnet-trace", "collect", "--format", "Speedscope", "--output", out + ".nettrace", "--", "dotnet", "bin/App.dll"},
		},
		{
			name:   "go test",
			plugin: NewGolang(deps),
			argv:   []string{"go", "test", "-run", "TestParse", "./internal/parser"},
			args:   []string{"-count=1"},
			want: []string{"go", "test", "-cpuprofile", out, "-o", filepath.Join(filepath.Dir(out), "uniprof.test"),
				"-count=1", "-run", "TestParse", "./internal/parser"},
		},
		{
			name:    "beam under perf",
			plugin:  NewBEAM(deps),
			argv:    []string{"mix", "run", "bench.exs"},
			want:    []string{"perf", "record", "-F", "999", "-g", "-o", out, "--", "mix", "run", "bench.exs"},
			wantEnv: map[string]string{"ERL_FLAGS": "+JPperf true"},
		},
		{
			name:   "perf",
			plugin: NewPerf(deps),
			argv:   []string{"./server"},
			args:   []string{"--call-graph", "dwarf"},
			want:   []string{"perf", "record", "-F", "999", "-g", "-o", out, "--call-graph", "dwarf", "--", "./server"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := NewProfileContext("test")
			got, err := tt.plugin.BuildLocalProfilerCommand(tt.argv, out, RecordOptions{ProfilerArgs: tt.args}, pc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			if tt.wantEnv == nil {
				tt.wantEnv = map[string]string{}
			}
			assert.Equal(t, tt.wantEnv, pc.RuntimeEnv)
		})
	}
}

func TestGolang_RejectsNonTestCommands(t *testing.T) {
	deps, _ := testDeps(t)
	p := NewGolang(deps)

	for _, argv := range [][]string{{"go", "run", "."}, {"./bin/server"}} {
		_, err := p.BuildLocalProfilerCommand(argv, "/tmp/raw", RecordOptions{}, NewProfileContext("x"))
		assert.ErrorIs(t, err, errNotGoTest)
	}
	assert.Equal(t, constants.ModeHost, p.DefaultMode([]string{"go", "test"}))
}

func TestPHP_WritesPrependFile(t *testing.T) {
	deps, _ := testDeps(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "raw")
	pc := NewProfileContext("test")

	got, err := NewPHP(deps).BuildLocalProfilerCommand([]string{"index.php", "--quick"}, out, RecordOptions{}, pc)
	require.NoError(t, err)

	prepend := filepath.Join(dir, excimerPrependName)
	assert.Equal(t, []string{"php", "-d", "auto_prepend_file=" + prepend, "index.php", "--quick"}, got)
	assert.FileExists(t, prepend)
	assert.Equal(t, []string{prepend}, pc.TempFiles)
	assert.Equal(t, out, pc.RuntimeEnv["UNIPROF_EXCIMER_OUTPUT"])

	_, err = NewPHP(deps).BuildLocalProfilerCommand([]string{"composer", "install"}, out, RecordOptions{}, pc)
	assert.Error(t, err)
}

func TestJVM_AgentPath(t *testing.T) {
	t.Setenv("JAVA_TOOL_OPTIONS", "")
	lib := filepath.Join(t.TempDir(), "libasyncProfiler.so")
	require.NoError(t, os.WriteFile(lib, nil, 0o644))
	t.Setenv("ASYNC_PROFILER_LIB", lib)

	deps, _ := testDeps(t)
	p := NewJVM(deps)
	out := "/tmp/run/raw"

	got, err := p.BuildLocalProfilerCommand([]string{"app.jar", "serve"}, out, RecordOptions{}, NewProfileContext("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"java", "-agentpath:" + lib + "=start,event=cpu,interval=1000000,file=" + out + ",collapsed",
		"-jar", "app.jar", "serve",
	}, got)

	pc := NewProfileContext("x")
	got, err = p.BuildLocalProfilerCommand([]string{"./gradlew", "test"}, out, RecordOptions{}, pc)
	require.NoError(t, err)
	assert.Equal(t, []string{"./gradlew", "test"}, got)
	assert.Contains(t, pc.RuntimeEnv["JAVA_TOOL_OPTIONS"], "file="+out+"-%p,collapsed")
}

func TestJVM_MissingLibrary(t *testing.T) {
	t.Setenv("ASYNC_PROFILER_LIB", filepath.Join(t.TempDir(), "missing.so"))
	deps, _ := testDeps(t)
	deps.LookPath = onPath("java")

	p := NewJVM(deps)
	_, err := p.BuildLocalProfilerCommand([]string{"java", "Main"}, "/tmp/raw", RecordOptions{}, NewProfileContext("x"))
	assert.Error(t, err)

	c := p.CheckEnvironment(t.Context(), constants.ModeHost)
	assert.False(t, c.IsValid)
	assert.Contains(t, c.Errors, "async-profiler library not found")
}

func TestInstruments_Command(t *testing.T) {
	deps, _ := testDeps(t)
	deps.GOOS = "darwin"
	p := NewInstruments(deps)

	got, err := p.BuildLocalProfilerCommand([]string{"./app"}, "/tmp/raw", RecordOptions{}, NewProfileContext("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"xcrun", "xctrace", "record", "--template", "Time Profiler", "--output", "/tmp/raw.trace", "--launch", "--", "./app"}, got)
	assert.False(t, p.SupportsContainer())
	assert.Equal(t, constants.ModeHost, p.DefaultMode(nil))
}

func TestDotNet_ArtifactResolution(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "raw.json")

	_, ok := dotnetArtifact(out)
	assert.False(t, ok)

	alt := filepath.Join(dir, "raw.speedscope.json")
	require.NoError(t, os.WriteFile(alt, []byte("{}"), 0o644))
	got, ok := dotnetArtifact(out)
	assert.True(t, ok)
	assert.Equal(t, alt, got)
}

func TestNodeJS_PicksLargestProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CPU.1.cpuprofile"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CPU.2.cpuprofile"), []byte(`{"nodes":[]}`), 0o644))

	got, ok := largestMatch(filepath.Join(dir, "raw"), filepath.Join(dir, "*.cpuprofile"))
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "CPU.2.cpuprofile"), got)
}

func TestCacheVolumes(t *testing.T) {
	deps, _ := testDeps(t)

	vols := NewPython(deps).ContainerCacheVolumes("/home/dev/.uniprof/cache", "/src")
	require.Len(t, vols, 2)
	assert.Equal(t, "/home/dev/.uniprof/cache/python/pip", vols[0].HostPath)
	assert.Equal(t, "/root/.cache/pip", vols[0].ContainerPath)

	assert.Nil(t, NewPython(deps).ContainerCacheVolumes("", "/src"))
}

func TestContainerImage(t *testing.T) {
	deps, _ := testDeps(t)
	assert.Equal(t, "ghcr.io/indragiek/uniprof-ruby:latest", NewRuby(deps).ContainerImage())

	deps.Image = func(name string) string { return "registry.local/" + name + ":dev" }
	assert.Equal(t, "registry.local/native:dev", NewNative(deps).ContainerImage())
}
