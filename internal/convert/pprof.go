package convert

import (
	"io"

	"github.com/google/pprof/profile"

	"github.com/indragiek/uniprof/internal/speedscope"
)

// fromPprof converts a pprof profile. The CPU-time sample value is used when
// present, otherwise the last sample type (the pprof default).
func fromPprof(r io.Reader, name string) (*speedscope.File, error) {
	prof, err := profile.Parse(r)
	if err != nil {
		return nil, err
	}

	idx := len(prof.SampleType) - 1
	for i, st := range prof.SampleType {
		if st.Type == "cpu" {
			idx = i
		}
	}
	unit := speedscope.UnitNone
	if idx >= 0 {
		unit = pprofUnit(prof.SampleType[idx].Unit)
	}

	b := speedscope.NewSampledBuilder(unit)
	for _, s := range prof.Sample {
		if idx < 0 || idx >= len(s.Value) || s.Value[idx] <= 0 {
			continue
		}

		// Locations are leaf first, and so are the inlined lines within
		// each location.
		var stack []speedscope.Frame
		for li := len(s.Location) - 1; li >= 0; li-- {
			loc := s.Location[li]
			if len(loc.Line) == 0 {
				stack = append(stack, speedscope.Frame{Name: unsymbolized(loc)})
				continue
			}
			for k := len(loc.Line) - 1; k >= 0; k-- {
				ln := loc.Line[k]
				if ln.Function == nil {
					continue
				}
				stack = append(stack, speedscope.Frame{
					Name: ln.Function.Name,
					File: ln.Function.Filename,
					Line: int(ln.Line),
				})
			}
		}
		b.Add(name, stack, float64(s.Value[idx]))
	}

	return b.Build(name, ""), nil
}

func unsymbolized(loc *profile.Location) string {
	if loc.Mapping != nil && loc.Mapping.File != "" {
		return "[" + loc.Mapping.File + "]"
	}
	return "[unknown]"
}

func pprofUnit(u string) speedscope.Unit {
	switch u {
	case "nanoseconds":
		return speedscope.UnitNanoseconds
	case "microseconds":
		return speedscope.UnitMicroseconds
	case "milliseconds":
		return speedscope.UnitMilliseconds
	case "seconds":
		return speedscope.UnitSeconds
	case "bytes":
		return speedscope.UnitBytes
	default:
		return speedscope.UnitNone
	}
}
