package platform

import (
	"github.com/indragiek/uniprof/internal/convert"
)

// NewRuby profiles Ruby with rbspy.
func NewRuby(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "ruby",
		Profiler:    "rbspy",
		RawKind:     convert.KindSpeedscope,
		Extensions:  []string{".rb"},
		Executables: []string{"ruby", "bundle", "rails", "rake", "rspec"},
		SudoOS:      []string{"darwin"},
		Tools:       []string{"rbspy"},
		Setup:       []string{"Install rbspy: `cargo install rbspy` or download a release from https://github.com/rbspy/rbspy/releases."},
		Caches: []Cache{
			{Name: "gems", ContainerPath: "/usr/local/bundle"},
		},
		CapAdd: []string{"SYS_PTRACE"},
		HostCommand: func(inv Invocation) ([]string, error) {
			inv.Argv = withInterpreter(inv.Argv, []string{"ruby"}, ".rb")
			return record([]string{
				"rbspy", "record",
				"--format", "speedscope",
				"--file", inv.Output,
				"--silent",
			}, inv), nil
		},
	}, deps)
}
