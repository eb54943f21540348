package convert

import (
	"io"

	"github.com/indragiek/uniprof/internal/speedscope"
)

// fromSpeedscope accepts a profiler's own speedscope output. Exporter and
// schema are overwritten by Convert.
func fromSpeedscope(r io.Reader, name string) (*speedscope.File, error) {
	f, err := speedscope.Decode(r)
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		f.Name = name
	}
	if f.Shared.Frames == nil {
		f.Shared.Frames = []speedscope.Frame{}
	}
	return f, nil
}
