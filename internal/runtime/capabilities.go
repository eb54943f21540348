package runtime

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Linux capability bit positions (from include/uapi/linux/capability.h).
const (
	capSysPtrace = 19 // CAP_SYS_PTRACE
	capSysAdmin  = 21 // CAP_SYS_ADMIN
	capPerfmon   = 38 // CAP_PERFMON (kernel 5.8+)
)

// Capabilities are the effective Linux capabilities relevant to attaching a
// profiler.
type Capabilities struct {
	SysPtrace bool
	SysAdmin  bool
	Perfmon   bool
}

// DetectCapabilities reads the effective capability set of the current
// process from procRoot/self/status. It returns the zero value on non-Linux
// platforms.
func DetectCapabilities(procRoot string) (Capabilities, error) {
	if runtime.GOOS != "linux" {
		return Capabilities{}, nil
	}

	capEff, err := readCapabilityBitmask(filepath.Join(procRoot, "self", "status"), "CapEff")
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to read capabilities: %w", err)
	}

	return capabilitiesFromMask(capEff), nil
}

func capabilitiesFromMask(mask uint64) Capabilities {
	return Capabilities{
		SysPtrace: hasCapability(mask, capSysPtrace),
		SysAdmin:  hasCapability(mask, capSysAdmin),
		Perfmon:   hasCapability(mask, capPerfmon),
	}
}

// readCapabilityBitmask reads a capability bitmask from a proc status file.
func readCapabilityBitmask(procStatusPath, capName string) (uint64, error) {
	file, err := os.Open(procStatusPath) // #nosec G304 - fixed proc path.
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", procStatusPath, err)
	}
	defer file.Close() // nolint:errcheck

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, capName+":") {
			continue
		}

		// Format: "CapEff:\t00000000a80435fb"
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return 0, fmt.Errorf("invalid %s format: %s", capName, line)
		}

		bitmask, err := strconv.ParseUint(parts[1], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s bitmask: %w", capName, err)
		}

		return bitmask, nil
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", procStatusPath, err)
	}

	return 0, fmt.Errorf("%s not found in %s", capName, procStatusPath)
}

func hasCapability(bitmask uint64, capBit int) bool {
	return (bitmask & (1 << uint(capBit))) != 0
}
