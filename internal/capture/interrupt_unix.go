//go:build unix

package capture

import "golang.org/x/sys/unix"

func interrupt(pid int) error {
	return unix.Kill(pid, unix.SIGINT)
}
