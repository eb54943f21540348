// Package proc parses process tables produced by ps(1) and selects which
// processes of a profiling container should receive a cancellation signal.
//
// The tables come from `ps -eo pid,ppid` and `ps -o pid,comm` executed
// inside the container, so nothing here reads the host's /proc.
package proc

import (
	"bufio"
	"path"
	"sort"
	"strconv"
	"strings"
)

// commLen is the kernel's TASK_COMM_LEN minus the terminating NUL; ps
// reports comm truncated to this many bytes.
const commLen = 15

// Entry is one row of a pid/ppid table.
type Entry struct {
	PID  int
	PPID int
}

// ParsePidTable parses the output of `ps -eo pid,ppid`. The header row and
// malformed rows are skipped.
func ParsePidTable(out string) []Entry {
	var entries []Entry

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue // Header.
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}

		entries = append(entries, Entry{PID: pid, PPID: ppid})
	}

	return entries
}

// ParseCommTable parses the output of `ps -o pid,comm` into a pid → command
// name map. The command name is everything after the pid column.
func ParseCommTable(out string) map[int]string {
	names := make(map[int]string)

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		pidField, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidField)
		if err != nil {
			continue
		}

		names[pid] = strings.TrimSpace(rest)
	}

	return names
}

// Descendants returns the transitive children of root, excluding root itself,
// sorted ascending. The result does not depend on the order of entries and
// tolerates duplicate rows and cycles.
func Descendants(entries []Entry, root int) []int {
	children := make(map[int][]int)
	for _, e := range entries {
		if e.PID == e.PPID {
			continue
		}
		children[e.PPID] = append(children[e.PPID], e.PID)
	}

	seen := map[int]bool{root: true}
	var result []int
	queue := []int{root}

	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]

		for _, child := range children[pid] {
			if seen[child] {
				continue
			}
			seen[child] = true
			result = append(result, child)
			queue = append(queue, child)
		}
	}

	sort.Ints(result)
	return result
}

// SelectSignalTargets filters candidates down to the processes that should be
// interrupted. A candidate is dropped when its name matches the denylist, or
// when its name could not be resolved (it has most likely exited already).
func SelectSignalTargets(candidates []int, names map[int]string, denylist []string) []int {
	var targets []int

	for _, pid := range candidates {
		name, ok := names[pid]
		if !ok || name == "" {
			continue
		}
		if IsDenied(name, denylist) {
			continue
		}
		targets = append(targets, pid)
	}

	return targets
}

// IsDenied reports whether a process name matches any denylist entry. Entries
// longer than the kernel comm limit also match their truncated form, and
// path-qualified names are compared by base name.
func IsDenied(name string, denylist []string) bool {
	name = path.Base(name)

	for _, deny := range denylist {
		deny = path.Base(deny)
		if deny == "" {
			continue
		}
		if name == deny {
			return true
		}
		if len(deny) > commLen && name == deny[:commLen] {
			return true
		}
	}

	return false
}

// JoinPids renders pids as a comma-separated list suitable for `ps -p`.
func JoinPids(pids []int) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, ",")
}
