//go:build linux

package runtime

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// perfEventParanoid reads kernel.perf_event_paranoid.
func perfEventParanoid(procRoot string) int {
	data, err := os.ReadFile(filepath.Join(procRoot, "sys", "kernel", "perf_event_paranoid")) // #nosec G304
	if err != nil {
		return ParanoidUnknown
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return ParanoidUnknown
	}
	return v
}

// inContainer checks for the marker files docker and podman leave behind and
// for container cgroups of PID 1.
func inContainer(rootFS, procRoot string) bool {
	for _, marker := range []string{".dockerenv", "run/.containerenv"} {
		if _, err := os.Stat(filepath.Join(rootFS, marker)); err == nil {
			return true
		}
	}

	data, err := os.ReadFile(filepath.Join(procRoot, "1", "cgroup")) // #nosec G304
	if err != nil {
		return false
	}
	cg := string(data)
	return strings.Contains(cg, "docker") || strings.Contains(cg, "libpod") || strings.Contains(cg, "kubepods")
}
