package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/indragiek/uniprof/internal/constants"
	"github.com/indragiek/uniprof/internal/convert"
	"github.com/indragiek/uniprof/internal/docker"
	"github.com/indragiek/uniprof/internal/speedscope"
)

// NativeExporter tags every native profile regardless of the tool used.
const NativeExporter = "uniprof-native"

// BinaryFormat is the executable format of a file.
type BinaryFormat int

const (
	FormatUnknown BinaryFormat = iota
	FormatELF
	FormatMachO
)

func (f BinaryFormat) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "mach-o"
	default:
		return "unknown"
	}
}

var (
	elfMagic    = []byte{0x7f, 'E', 'L', 'F'}
	machoMagics = [][]byte{
		{0xfe, 0xed, 0xfa, 0xce}, {0xce, 0xfa, 0xed, 0xfe},
		{0xfe, 0xed, 0xfa, 0xcf}, {0xcf, 0xfa, 0xed, 0xfe},
		{0xca, 0xfe, 0xba, 0xbe}, // universal
	}
)

// Native profiles compiled binaries. It forwards to perf on Linux and to
// Instruments on macOS for host runs, always uses perf in containers, and
// tags every profile with NativeExporter.
type Native struct {
	host        Plugin
	perf        *Base
	instruments *Base
	deps        Deps
}

// NewNative builds the native composite for deps.GOOS.
func NewNative(deps Deps) *Native {
	deps = deps.withDefaults()
	n := &Native{
		perf:        NewPerf(deps),
		instruments: NewInstruments(deps),
		deps:        deps,
	}
	n.host = n.perf
	if deps.GOOS == "darwin" {
		n.host = n.instruments
	}
	return n
}

func (n *Native) Name() string          { return "native" }
func (n *Native) Profiler() string      { return n.host.Profiler() }
func (n *Native) Exporter() string      { return NativeExporter }
func (n *Native) Extensions() []string  { return nil }
func (n *Native) Executables() []string { return nil }

// ProfilerFor returns the tool used in mode: perf for containers, the host
// strategy's tool otherwise.
func (n *Native) ProfilerFor(mode string) string {
	if mode == constants.ModeContainer {
		return n.perf.Profiler()
	}
	return n.host.Profiler()
}

// DetectCommand matches when argv[0] is an ELF or Mach-O file.
func (n *Native) DetectCommand(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	return n.format(argv[0]) != FormatUnknown
}

func (n *Native) DetectExtension(string) bool { return false }

// DefaultMode runs Mach-O binaries on the host and ELF binaries in a
// container; anything else follows the host strategy.
func (n *Native) DefaultMode(argv []string) string {
	if len(argv) > 0 {
		switch n.format(argv[0]) {
		case FormatMachO:
			return constants.ModeHost
		case FormatELF:
			return constants.ModeContainer
		}
	}
	return n.host.DefaultMode(argv)
}

func (n *Native) SupportsContainer() bool { return n.perf.SupportsContainer() }
func (n *Native) NeedsSudo() bool         { return n.host.NeedsSudo() }

func (n *Native) CheckEnvironment(ctx context.Context, mode string) *EnvironmentCheck {
	var c *EnvironmentCheck
	if mode == constants.ModeContainer {
		c = n.perf.CheckEnvironment(ctx, mode)
	} else {
		c = n.host.CheckEnvironment(ctx, mode)
	}
	c.Platform = n.Name()
	return c
}

func (n *Native) ContainerImage() string { return n.perf.ContainerImage() }

func (n *Native) ContainerCacheVolumes(cacheBaseDir, cwd string) []docker.Volume {
	return n.perf.ContainerCacheVolumes(cacheBaseDir, cwd)
}

func (n *Native) BuildLocalProfilerCommand(argv []string, outputPath string, opts RecordOptions, pc *ProfileContext) ([]string, error) {
	return n.host.BuildLocalProfilerCommand(argv, outputPath, opts, pc)
}

func (n *Native) SettleHostRun(ctx context.Context, outputPath string, runErr error, pc *ProfileContext) error {
	return n.host.SettleHostRun(ctx, outputPath, runErr, pc)
}

func (n *Native) RunProfilerInContainer(ctx context.Context, argv []string, outputPath string, opts RecordOptions, pc *ProfileContext) error {
	return n.perf.RunProfilerInContainer(ctx, argv, outputPath, opts, pc)
}

// PostProcessProfile converts with whichever strategy produced the raw
// artifact, then retags the result.
func (n *Native) PostProcessProfile(ctx context.Context, rawPath, finalPath string, pc *ProfileContext) error {
	var p Plugin = n.perf
	if pc.RawArtifact != nil && pc.RawArtifact.Kind == convert.KindInstrumentsXML {
		p = n.instruments
	}
	if err := p.PostProcessProfile(ctx, rawPath, finalPath, pc); err != nil {
		return err
	}

	f, err := speedscope.Read(finalPath)
	if err != nil {
		return err
	}
	f.Exporter = n.Exporter()
	return speedscope.Write(finalPath, f)
}

func (n *Native) Cleanup(pc *ProfileContext) {
	n.perf.Cleanup(pc)
	n.instruments.Cleanup(pc)
}

// format resolves arg0 like a shell would and sniffs its magic bytes.
func (n *Native) format(arg0 string) BinaryFormat {
	p := arg0
	if !strings.ContainsAny(arg0, `/\`) {
		found, err := n.deps.LookPath(arg0)
		if err != nil {
			return FormatUnknown
		}
		p = found
	}
	// Java class files share the universal Mach-O magic.
	if strings.EqualFold(filepath.Ext(p), ".class") {
		return FormatUnknown
	}
	return DetectBinaryFormat(p)
}

// DetectBinaryFormat reads the magic bytes of path.
func DetectBinaryFormat(path string) BinaryFormat {
	f, err := os.Open(path) // #nosec G304 - user-supplied command to profile.
	if err != nil {
		return FormatUnknown
	}
	defer func() { _ = f.Close() }()

	var head [4]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return FormatUnknown
	}
	if bytes.Equal(head[:], elfMagic) {
		return FormatELF
	}
	for _, m := range machoMagics {
		if bytes.Equal(head[:], m) {
			return FormatMachO
		}
	}
	return FormatUnknown
}

var _ Plugin = (*Native)(nil)

func (n *Native) String() string {
	return fmt.Sprintf("native(%s)", n.host.Name())
}
