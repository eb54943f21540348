package platform

import (
	"github.com/indragiek/uniprof/internal/convert"
)

// NewPython profiles Python with py-spy, which writes speedscope directly.
func NewPython(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "python",
		Profiler:    "py-spy",
		RawKind:     convert.KindSpeedscope,
		Extensions:  []string{".py", ".pyw"},
		Executables: []string{"python", "python3", "uv", "uvx", "pipenv", "poetry", "pdm", "pytest"},
		SudoOS:      []string{"darwin"},
		Tools:       []string{"py-spy"},
		Setup:       []string{"Install py-spy: `pip install py-spy` (or `uv tool install py-spy`)."},
		Caches: []Cache{
			{Name: "pip", ContainerPath: "/root/.cache/pip"},
			{Name: "uv", ContainerPath: "/root/.cache/uv"},
		},
		CapAdd: []string{"SYS_PTRACE"},
		HostCommand: func(inv Invocation) ([]string, error) {
			inv.Argv = withInterpreter(inv.Argv, []string{"python3"}, ".py", ".pyw")
			return record([]string{
				"py-spy", "record",
				"--format", "speedscope",
				"--output", inv.Output,
				"--subprocesses",
			}, inv), nil
		},
	}, deps)
}
