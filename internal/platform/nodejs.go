package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/indragiek/uniprof/internal/convert"
)

// NewNodeJS profiles Node.js with V8's built-in CPU profiler. Package
// manager launchers start node themselves, so they get the profiler flags
// through NODE_OPTIONS instead.
func NewNodeJS(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "nodejs",
		Profiler:    "node",
		RawKind:     convert.KindCPUProfile,
		Extensions:  []string{".js", ".mjs", ".cjs"},
		Executables: []string{"node", "nodejs", "npm", "npx", "yarn", "pnpm"},
		Tools:       []string{"node"},
		Setup:       []string{"Install Node.js 12 or later from https://nodejs.org/."},
		Caches: []Cache{
			{Name: "npm", ContainerPath: "/root/.npm"},
		},
		// node is the target; nothing to spare.
		Denylist:    []string{},
		HostCommand: nodeCommand,
		Resolve: func(outputPath string) (string, bool) {
			return largestMatch(outputPath, filepath.Join(filepath.Dir(outputPath), "*.cpuprofile"))
		},
	}, deps)
}

func nodeCommand(inv Invocation) ([]string, error) {
	argv := withInterpreter(inv.Argv, []string{"node"}, ".js", ".mjs", ".cjs")
	dir := outputDir(inv)

	if commandName(argv[0]) == "node" || commandName(argv[0]) == "nodejs" {
		cmd := []string{argv[0], "--cpu-prof", "--cpu-prof-dir", dir, "--cpu-prof-name", filepath.Base(inv.Output)}
		cmd = append(cmd, inv.Options.ProfilerArgs...)
		return append(cmd, argv[1:]...), nil
	}

	opts := fmt.Sprintf("--cpu-prof --cpu-prof-dir=%q", dir)
	if len(inv.Options.ProfilerArgs) > 0 {
		opts += " " + strings.Join(inv.Options.ProfilerArgs, " ")
	}
	if !inv.InContainer {
		if existing := strings.TrimSpace(os.Getenv("NODE_OPTIONS")); existing != "" {
			opts = existing + " " + opts
		}
	}
	inv.Context.MergeEnv(map[string]string{"NODE_OPTIONS": opts})
	return argv, nil
}
