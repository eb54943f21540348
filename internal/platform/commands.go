package platform

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// outputDir is the directory of inv.Output in the namespace the profiler
// runs in.
func outputDir(inv Invocation) string {
	if inv.InContainer {
		return path.Dir(inv.Output)
	}
	return filepath.Dir(inv.Output)
}

// outputJoin joins elem onto outputDir.
func outputJoin(inv Invocation, elem string) string {
	if inv.InContainer {
		return path.Join(path.Dir(inv.Output), elem)
	}
	return filepath.Join(filepath.Dir(inv.Output), elem)
}

// withInterpreter prepends interp when argv starts with a script that has
// one of exts rather than an executable.
func withInterpreter(argv []string, interp []string, exts ...string) []string {
	if len(argv) == 0 {
		return argv
	}
	ext := strings.ToLower(filepath.Ext(argv[0]))
	for _, e := range exts {
		if ext == e {
			return append(append([]string(nil), interp...), argv...)
		}
	}
	return argv
}

// record assembles "<prefix...> <profiler args...> -- <argv...>".
func record(prefix []string, inv Invocation) []string {
	cmd := append([]string(nil), prefix...)
	cmd = append(cmd, inv.Options.ProfilerArgs...)
	cmd = append(cmd, "--")
	return append(cmd, inv.Argv...)
}

// largestMatch resolves outputPath, or else the largest file matching
// pattern. Tools that profile every process of a launcher write one file per
// process; the largest is the workload.
func largestMatch(outputPath, pattern string) (string, bool) {
	if exists(outputPath) {
		return outputPath, true
	}

	matches, _ := filepath.Glob(pattern)
	best, bestSize := "", int64(-1)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}
	return best, best != ""
}
