//go:build !unix

package capture

import "os"

// Windows has no SIGINT for other processes; stop the profiler outright.
func interrupt(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
