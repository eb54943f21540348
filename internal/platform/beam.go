package platform

// NewBEAM profiles Erlang and Elixir with perf. The BEAM JIT emits perf maps
// when started with +JPperf true.
func NewBEAM(deps Deps) *Base {
	prefix := func(inv Invocation) Invocation {
		inv.Argv = withInterpreter(inv.Argv, []string{"elixir"}, ".ex", ".exs")
		inv.Argv = withInterpreter(inv.Argv, []string{"escript"}, ".erl")
		inv.Context.MergeEnv(map[string]string{"ERL_FLAGS": "+JPperf true"})
		return inv
	}

	return NewBase(perfRecipe(Recipe{
		Name:        "beam",
		Exporter:    "uniprof-beam",
		Extensions:  []string{".erl", ".ex", ".exs"},
		Executables: []string{"erl", "elixir", "mix", "iex", "rebar3", "escript"},
		Tools:       []string{"erl"},
		Caches: []Cache{
			{Name: "hex", ContainerPath: "/root/.hex"},
			{Name: "mix", ContainerPath: "/root/.mix"},
		},
		HostCommand: func(inv Invocation) ([]string, error) {
			return perfHostCommand(prefix(inv)), nil
		},
		ContainerCommand: func(inv Invocation) ([]string, error) {
			return perfContainerCommand(prefix(inv)), nil
		},
	}), deps)
}
