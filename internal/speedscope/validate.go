package speedscope

import (
	"errors"
	"fmt"
)

// ErrNoProfiles is returned by Validate for a document without profiles.
var ErrNoProfiles = errors.New("profile contains no profiles")

// Validate checks the structural invariants of f: sampled profiles carry as
// many weights as samples (when weights are present), and every frame index
// is within the shared table.
func Validate(f *File) error {
	if f == nil {
		return errors.New("nil profile")
	}
	if len(f.Profiles) == 0 {
		return ErrNoProfiles
	}
	if f.ActiveProfileIndex < 0 || f.ActiveProfileIndex >= len(f.Profiles) {
		return fmt.Errorf("activeProfileIndex %d out of range [0,%d)", f.ActiveProfileIndex, len(f.Profiles))
	}

	nframes := len(f.Shared.Frames)
	for pi, p := range f.Profiles {
		if !p.Unit.Valid() {
			return fmt.Errorf("profile %d (%s): unknown unit %q", pi, p.Name, p.Unit)
		}

		switch p.Type {
		case TypeSampled:
			if p.Weights != nil && len(p.Weights) != len(p.Samples) {
				return fmt.Errorf("profile %d (%s): %d samples but %d weights", pi, p.Name, len(p.Samples), len(p.Weights))
			}
			for si, s := range p.Samples {
				for _, idx := range s {
					if idx < 0 || idx >= nframes {
						return fmt.Errorf("profile %d (%s): sample %d references frame %d, table has %d", pi, p.Name, si, idx, nframes)
					}
				}
			}
		case TypeEvented:
			for ei, ev := range p.Events {
				if ev.Frame < 0 || ev.Frame >= nframes {
					return fmt.Errorf("profile %d (%s): event %d references frame %d, table has %d", pi, p.Name, ei, ev.Frame, nframes)
				}
				if ev.Type != EventOpen && ev.Type != EventClose {
					return fmt.Errorf("profile %d (%s): event %d has type %q", pi, p.Name, ei, ev.Type)
				}
			}
		default:
			return fmt.Errorf("profile %d (%s): unknown type %q", pi, p.Name, p.Type)
		}
	}

	return nil
}
