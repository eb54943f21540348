package platform

import (
	"path/filepath"
	"strings"

	"github.com/indragiek/uniprof/internal/convert"
)

// NewDotNet profiles .NET with dotnet-trace. dotnet-trace writes a nettrace
// file and converts it next to it as <name>.speedscope.json.
func NewDotNet(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "dotnet",
		Profiler:    "dotnet-trace",
		RawKind:     convert.KindSpeedscope,
		Extensions:  []string{".dll", ".csproj", ".fsproj"},
		Executables: []string{"dotnet"},
		Tools:       []string{"dotnet", "dotnet-trace"},
		Setup:       []string{"Install dotnet-trace: `dotnet tool install --global dotnet-trace`."},
		Caches: []Cache{
			{Name: "nuget", ContainerPath: "/root/.nuget/packages"},
		},
		CapAdd: []string{"SYS_PTRACE"},
		HostCommand: func(inv Invocation) ([]string, error) {
			argv := inv.Argv
			switch strings.ToLower(filepath.Ext(argv[0])) {
			case ".dll":
				argv = append([]string{"dotnet"}, argv...)
			case ".csproj", ".fsproj":
				argv = append([]string{"dotnet", "run", "--project"}, argv...)
			}
			inv.Argv = argv

			return record([]string{
				"dotnet-trace", "collect",
				"--format", "Speedscope",
				"--output", inv.Output + ".nettrace",
			}, inv), nil
		},
		Resolve: dotnetArtifact,
	}, deps)
}

func dotnetArtifact(outputPath string) (string, bool) {
	for _, p := range []string{
		outputPath + ".speedscope.json",
		strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".speedscope.json",
	} {
		if exists(p) {
			return p, true
		}
	}
	return "", false
}
