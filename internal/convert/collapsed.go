package convert

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indragiek/uniprof/internal/speedscope"
)

// fromCollapsed parses folded stacks ("root;child;leaf 42"). Blank lines
// and lines without a trailing count are skipped.
func fromCollapsed(r io.Reader, name string) (*speedscope.File, error) {
	b := speedscope.NewSampledBuilder(speedscope.UnitNone)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sp := strings.LastIndexByte(line, ' ')
		if sp <= 0 {
			continue
		}
		count, err := strconv.ParseFloat(line[sp+1:], 64)
		if err != nil {
			continue
		}
		if count <= 0 {
			continue
		}

		parts := strings.Split(line[:sp], ";")
		stack := make([]speedscope.Frame, 0, len(parts))
		for _, p := range parts {
			if p == "" {
				continue
			}
			stack = append(stack, speedscope.Frame{Name: p})
		}
		b.Add(name, stack, count)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo, err)
	}

	return b.Build(name, ""), nil
}
