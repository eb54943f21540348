package platform

import (
	"errors"
	"slices"

	"github.com/indragiek/uniprof/internal/constants"
	"github.com/indragiek/uniprof/internal/convert"
)

// NewGolang profiles Go test runs with the runtime's own CPU profiler. Built
// Go binaries are profiled through the native platform instead.
func NewGolang(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "golang",
		Profiler:    "go",
		RawKind:     convert.KindPprof,
		Mode:        constants.ModeHost,
		Extensions:  []string{".go"},
		Executables: []string{"go"},
		Tools:       []string{"go"},
		Setup:       []string{"Install Go from https://go.dev/dl/."},
		Caches: []Cache{
			{Name: "go-build", ContainerPath: "/root/.cache/go-build"},
			{Name: "gomod", ContainerPath: "/go/pkg/mod"},
		},
		HostCommand: goTestCommand,
	}, deps)
}

var errNotGoTest = errors.New("the golang platform profiles `go test` runs; build the binary and use --platform native for anything else")

func goTestCommand(inv Invocation) ([]string, error) {
	argv := inv.Argv
	if commandName(argv[0]) != "go" {
		return nil, errNotGoTest
	}
	i := slices.Index(argv, "test")
	if i < 1 {
		return nil, errNotGoTest
	}

	cmd := append([]string(nil), argv[:i+1]...)
	cmd = append(cmd,
		"-cpuprofile", inv.Output,
		"-o", outputJoin(inv, "uniprof.test"),
	)
	cmd = append(cmd, inv.Options.ProfilerArgs...)
	return append(cmd, argv[i+1:]...), nil
}
