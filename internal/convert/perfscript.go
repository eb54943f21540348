package convert

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/indragiek/uniprof/internal/speedscope"
)

type perfSample struct {
	thread string
	period float64
	event  string
	stack  []speedscope.Frame // leaf first, as printed
}

// fromPerfScript parses `perf script` output into one sampled profile per
// thread. Samples are weighted by their period when perf reports one.
func fromPerfScript(r io.Reader, name string) (*speedscope.File, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		samples []perfSample
		cur     *perfSample
	)
	flush := func() {
		if cur != nil && len(cur.stack) > 0 {
			samples = append(samples, *cur)
		}
		cur = nil
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case line[0] == ' ' || line[0] == '\t':
			if cur == nil {
				continue
			}
			if fr, ok := parsePerfFrame(line); ok {
				cur.stack = append(cur.stack, fr)
			}
		default:
			flush()
			if s, ok := parsePerfHeader(line); ok {
				cur = &s
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples with call stacks found (was perf recorded with -g?)")
	}

	unit := speedscope.UnitNone
	if clockEvent(samples[0].event) {
		unit = speedscope.UnitNanoseconds
	}

	b := speedscope.NewSampledBuilder(unit)
	for _, s := range samples {
		stack := make([]speedscope.Frame, len(s.stack))
		for i, fr := range s.stack {
			stack[len(s.stack)-1-i] = fr
		}
		w := s.period
		if w <= 0 || unit == speedscope.UnitNone {
			w = 1
		}
		b.Add(s.thread, stack, w)
	}

	return b.Build(name, ""), nil
}

// parsePerfHeader parses "comm pid/tid [cpu] time: [period] event:".
func parsePerfHeader(line string) (perfSample, bool) {
	fields := strings.Fields(line)

	ti := -1
	for i, f := range fields {
		if !strings.HasSuffix(f, ":") {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSuffix(f, ":"), 64); err == nil && strings.Contains(f, ".") {
			ti = i
			break
		}
	}
	if ti < 1 {
		return perfSample{}, false
	}

	j := ti - 1
	if strings.HasPrefix(fields[j], "[") && j > 0 {
		j--
	}
	pidTok := fields[j]
	comm := strings.Join(fields[:j], " ")
	if comm == "" {
		comm = "unknown"
	}
	pid, tid, _ := strings.Cut(pidTok, "/")
	if tid == "" {
		tid = pid
	}

	s := perfSample{thread: fmt.Sprintf("%s tid %s", comm, tid)}
	rest := fields[ti+1:]
	if len(rest) > 0 {
		if p, err := strconv.ParseFloat(rest[0], 64); err == nil {
			s.period = p
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		s.event = strings.TrimSuffix(rest[0], ":")
	}
	return s, true
}

// parsePerfFrame parses "addr symbol+0xoff (dso)".
func parsePerfFrame(line string) (speedscope.Frame, bool) {
	line = strings.TrimSpace(line)
	_, rest, ok := strings.Cut(line, " ")
	if !ok {
		return speedscope.Frame{Name: "[unknown]"}, line != ""
	}

	rest = strings.TrimSpace(rest)
	dso := ""
	if strings.HasSuffix(rest, ")") {
		if open := strings.LastIndex(rest, " ("); open >= 0 {
			dso = rest[open+2 : len(rest)-1]
			rest = strings.TrimSpace(rest[:open])
		} else if strings.HasPrefix(rest, "(") {
			dso = rest[1 : len(rest)-1]
			rest = ""
		}
	}

	sym := rest
	if i := strings.LastIndex(sym, "+0x"); i > 0 {
		sym = sym[:i]
	}
	if sym == "" || sym == "[unknown]" {
		if dso != "" && dso != "[unknown]" {
			sym = "[unknown] " + filepath.Base(dso)
		} else {
			sym = "[unknown]"
		}
	}

	return speedscope.Frame{Name: sym, File: dso}, true
}

func clockEvent(ev string) bool {
	switch {
	case strings.HasPrefix(ev, "cpu-clock"), strings.HasPrefix(ev, "task-clock"):
		return true
	}
	return false
}
