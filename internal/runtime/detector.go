// Package runtime inspects the machine uniprof runs on: OS and kernel,
// whether it is itself inside a container, and what the current process is
// allowed to do with perf events and ptrace.
package runtime

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/host"
)

// ParanoidUnknown is reported when perf_event_paranoid cannot be read.
const ParanoidUnknown = -99

// Info describes the host.
type Info struct {
	OS        string
	Arch      string
	OSVersion string
	Kernel    string

	// InContainer is true when uniprof itself runs inside a container.
	InContainer bool

	// PerfEventParanoid is the value of kernel.perf_event_paranoid on Linux,
	// ParanoidUnknown elsewhere.
	PerfEventParanoid int

	Capabilities Capabilities
}

// CanUsePerf reports whether an unprivileged perf record of a child process
// is expected to work.
func (i *Info) CanUsePerf(isRoot bool) bool {
	if i.OS != "linux" {
		return false
	}
	if isRoot || i.Capabilities.Perfmon || i.Capabilities.SysAdmin {
		return true
	}
	return i.PerfEventParanoid != ParanoidUnknown && i.PerfEventParanoid <= 2
}

// String renders a one-line summary.
func (i *Info) String() string {
	s := fmt.Sprintf("%s (%s) %s, kernel %s", i.OS, i.OSVersion, i.Arch, i.Kernel)
	if i.InContainer {
		s += ", in container"
	}
	return s
}

// Detector detects host information.
type Detector struct {
	logger   zerolog.Logger
	procRoot string
	rootFS   string
}

// NewDetector creates a new runtime detector.
func NewDetector(logger zerolog.Logger) *Detector {
	return &Detector{
		logger:   logger.With().Str("component", "runtime_detector").Logger(),
		procRoot: "/proc",
		rootFS:   "/",
	}
}

// Detect gathers host information. Partial failures are logged and leave the
// corresponding fields at their zero or unknown values.
func (d *Detector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:                runtime.GOOS,
		Arch:              runtime.GOARCH,
		OSVersion:         "unknown",
		Kernel:            "unknown",
		PerfEventParanoid: ParanoidUnknown,
	}

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Host info unavailable")
	} else {
		info.OSVersion = osVersion(hi)
		if hi.KernelVersion != "" {
			info.Kernel = hi.KernelVersion
		}
	}

	info.InContainer = inContainer(d.rootFS, d.procRoot)
	info.PerfEventParanoid = perfEventParanoid(d.procRoot)

	caps, err := DetectCapabilities(d.procRoot)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Capabilities unavailable")
	} else {
		info.Capabilities = caps
	}

	d.logger.Debug().
		Str("os", info.OS).
		Str("os_version", info.OSVersion).
		Str("arch", info.Arch).
		Str("kernel", info.Kernel).
		Bool("in_container", info.InContainer).
		Int("perf_event_paranoid", info.PerfEventParanoid).
		Bool("cap_sys_ptrace", info.Capabilities.SysPtrace).
		Bool("cap_perfmon", info.Capabilities.Perfmon).
		Msg("Host detected")

	return info, nil
}

func osVersion(hi *host.InfoStat) string {
	switch {
	case hi.Platform != "" && hi.PlatformVersion != "":
		return hi.Platform + " " + hi.PlatformVersion
	case hi.Platform != "":
		return hi.Platform
	case hi.PlatformVersion != "":
		return hi.PlatformVersion
	default:
		return "unknown"
	}
}
