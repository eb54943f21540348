package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/indragiek/uniprof/internal/convert"
)

// containerAsyncProfiler is where the jvm image installs async-profiler.
const containerAsyncProfiler = "/opt/async-profiler/lib/libasyncProfiler.so"

// NewJVM profiles JVM languages with the async-profiler agent writing
// collapsed stacks. Build tools get the agent through JAVA_TOOL_OPTIONS and
// write one file per JVM.
func NewJVM(deps Deps) *Base {
	deps = deps.withDefaults()

	return NewBase(Recipe{
		Name:        "jvm",
		Profiler:    "async-profiler",
		RawKind:     convert.KindCollapsed,
		Extensions:  []string{".jar", ".class"},
		Executables: []string{"java", "mvn", "mvnw", "gradle", "gradlew", "sbt", "kotlin"},
		Tools:       []string{"java"},
		Setup: []string{
			"Install async-profiler from https://github.com/async-profiler/async-profiler/releases and set ASYNC_PROFILER_LIB to its libasyncProfiler library.",
		},
		Caches: []Cache{
			{Name: "m2", ContainerPath: "/root/.m2"},
			{Name: "gradle", ContainerPath: "/root/.gradle"},
		},
		// The agent runs inside the target JVM.
		Denylist: []string{},
		HostCommand: func(inv Invocation) ([]string, error) {
			lib, ok := asyncProfilerLib(deps)
			if !ok {
				return nil, fmt.Errorf("async-profiler library not found; set ASYNC_PROFILER_LIB")
			}
			event := "cpu"
			if deps.GOOS != "linux" {
				event = "itimer"
			}
			return jvmCommand(inv, lib, event), nil
		},
		ContainerCommand: func(inv Invocation) ([]string, error) {
			return jvmCommand(inv, containerAsyncProfiler, "itimer"), nil
		},
		Resolve: func(outputPath string) (string, bool) {
			return largestMatch(outputPath, outputPath+"-*")
		},
		Check: func(_ context.Context, deps Deps, c *EnvironmentCheck) {
			if _, ok := asyncProfilerLib(deps); !ok {
				c.Fail("async-profiler library not found",
					"Install async-profiler from https://github.com/async-profiler/async-profiler/releases and set ASYNC_PROFILER_LIB to its libasyncProfiler library.")
			}
		},
	}, deps)
}

func jvmCommand(inv Invocation, lib, event string) []string {
	argv := inv.Argv
	switch strings.ToLower(filepath.Ext(argv[0])) {
	case ".jar":
		argv = append([]string{"java", "-jar"}, argv...)
	case ".class":
		dir, file := filepath.Split(argv[0])
		if dir == "" {
			dir = "."
		}
		argv = append([]string{"java", "-cp", dir, strings.TrimSuffix(file, ".class")}, argv[1:]...)
	}

	opts := []string{"start", "event=" + event, "interval=1000000"}
	opts = append(opts, inv.Options.ProfilerArgs...)

	if commandName(argv[0]) == "java" {
		agent := agentPath(lib, opts, inv.Output)
		return append([]string{argv[0], agent}, argv[1:]...)
	}

	// Every JVM the build tool forks loads the agent; %p keeps their output
	// apart.
	agent := agentPath(lib, opts, inv.Output+"-%p")
	javaOpts := agent
	if !inv.InContainer {
		if existing := strings.TrimSpace(os.Getenv("JAVA_TOOL_OPTIONS")); existing != "" {
			javaOpts = existing + " " + agent
		}
	}
	inv.Context.MergeEnv(map[string]string{"JAVA_TOOL_OPTIONS": javaOpts})
	return argv
}

func agentPath(lib string, opts []string, file string) string {
	return "-agentpath:" + lib + "=" + strings.Join(append(opts, "file="+file, "collapsed"), ",")
}

// asyncProfilerLib finds the agent library from ASYNC_PROFILER_LIB, next to
// asprof on PATH, or in the usual install locations.
func asyncProfilerLib(deps Deps) (string, bool) {
	if lib := os.Getenv("ASYNC_PROFILER_LIB"); lib != "" {
		return lib, exists(lib)
	}

	names := []string{"libasyncProfiler.so"}
	if deps.GOOS == "darwin" {
		names = []string{"libasyncProfiler.dylib", "libasyncProfiler.so"}
	}

	var dirs []string
	if asprof, err := deps.LookPath("asprof"); err == nil {
		if resolved, err := filepath.EvalSymlinks(asprof); err == nil {
			asprof = resolved
		}
		dirs = append(dirs, filepath.Join(filepath.Dir(asprof), "..", "lib"))
	}
	dirs = append(dirs, "/opt/async-profiler/lib", "/usr/local/lib", "/opt/homebrew/lib")

	for _, d := range dirs {
		for _, n := range names {
			if p := filepath.Join(d, n); exists(p) {
				return p, true
			}
		}
	}
	return "", false
}
