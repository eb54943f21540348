package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/indragiek/uniprof/internal/convert"
	hostrt "github.com/indragiek/uniprof/internal/runtime"
)

// perfScriptWrapper runs perf record and then perf script inside the
// container, so the host never needs perf. $0 is the text output path; the
// binary data goes next to it. The workload's exit status is preserved.
const perfScriptWrapper = `perf record -F 999 -g -o "$0.data" "$@"; rc=$?; ` +
	`if [ -s "$0.data" ]; then perf script -i "$0.data" > "$0.tmp" 2>/dev/null && mv "$0.tmp" "$0"; fi; ` +
	`exit $rc`

var perfMagic = []byte("PERFILE")

// perfRecipe fills the parts shared by every perf-based platform.
func perfRecipe(r Recipe) Recipe {
	r.Profiler = "perf"
	r.RawKind = convert.KindPerfScript
	r.HostOS = []string{"linux"}
	r.Tools = append([]string{"perf"}, r.Tools...)
	r.Setup = append(r.Setup,
		"Install perf: `sudo apt-get install linux-tools-common linux-tools-$(uname -r)` or `sudo dnf install perf`.")
	r.CapAdd = []string{"SYS_ADMIN"}

	if r.HostCommand == nil {
		r.HostCommand = func(inv Invocation) ([]string, error) {
			return perfHostCommand(inv), nil
		}
	}
	if r.ContainerCommand == nil {
		r.ContainerCommand = func(inv Invocation) ([]string, error) {
			return perfContainerCommand(inv), nil
		}
	}
	r.Prepare = perfPrepare
	r.Check = perfCheck
	return r
}

func perfHostCommand(inv Invocation) []string {
	return record([]string{"perf", "record", "-F", "999", "-g", "-o", inv.Output}, inv)
}

func perfContainerCommand(inv Invocation) []string {
	cmd := []string{"sh", "-c", perfScriptWrapper, inv.Output}
	cmd = append(cmd, inv.Options.ProfilerArgs...)
	cmd = append(cmd, "--")
	return append(cmd, inv.Argv...)
}

// perfPrepare converts binary perf.data to perf script text on the host. Text
// produced inside a container passes through.
func perfPrepare(ctx context.Context, deps Deps, raw Artifact, pc *ProfileContext) (Artifact, error) {
	isData, err := hasPrefix(raw.Path, perfMagic)
	if err != nil {
		return raw, err
	}
	if !isData {
		return raw, nil
	}

	out, err := deps.Output(ctx, "perf", "script", "-i", raw.Path)
	if err != nil {
		return raw, fmt.Errorf("perf script failed: %w", err)
	}

	text := raw.Path + ".txt"
	if err := os.WriteFile(text, out, 0o600); err != nil {
		return raw, fmt.Errorf("failed to write perf script output: %w", err)
	}
	pc.AddTempFile(text)
	return Artifact{Kind: convert.KindPerfScript, Path: text}, nil
}

func hasPrefix(path string, prefix []byte) (bool, error) {
	f, err := os.Open(path) // #nosec G304 - raw artifact produced by this run.
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, len(prefix))
	if _, err := io.ReadFull(f, buf); err != nil {
		return false, nil
	}
	return bytes.Equal(buf, prefix), nil
}

func perfCheck(ctx context.Context, deps Deps, c *EnvironmentCheck) {
	info, err := deps.Host(ctx)
	if err != nil {
		c.Warn(fmt.Sprintf("could not inspect host: %v", err))
		return
	}

	switch {
	case deps.IsRoot():
	case info.PerfEventParanoid == hostrt.ParanoidUnknown:
		c.Warn("could not read kernel.perf_event_paranoid")
	case !info.CanUsePerf(false):
		c.Fail(fmt.Sprintf("kernel.perf_event_paranoid is %d, perf cannot record unprivileged", info.PerfEventParanoid),
			"Lower it: `sudo sysctl kernel.perf_event_paranoid=1`, or re-run with sudo.")
	case info.PerfEventParanoid == 2:
		c.Warn("kernel.perf_event_paranoid is 2; kernel frames will be missing")
	}
}

// NewPerf profiles native Linux binaries with perf.
func NewPerf(deps Deps) *Base {
	return NewBase(perfRecipe(Recipe{
		Name:  "perf",
		Image: "native",
	}), deps)
}
