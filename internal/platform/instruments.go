package platform

import (
	"context"
	"fmt"
	"os"

	"github.com/indragiek/uniprof/internal/convert"
)

const timeProfileXPath = `/trace-toc/run[@number="1"]/data/table[@schema="time-profile"]`

// NewInstruments profiles native macOS binaries with xctrace's Time Profiler.
// The trace bundle is exported to XML before conversion.
func NewInstruments(deps Deps) *Base {
	return NewBase(Recipe{
		Name:        "instruments",
		Profiler:    "xctrace",
		RawKind:     convert.KindInstrumentsXML,
		NoContainer: true,
		HostOS:      []string{"darwin"},
		Tools:       []string{"xcrun"},
		Setup:       []string{"Install Xcode from the App Store and run `xcode-select --install`."},
		HostCommand: func(inv Invocation) ([]string, error) {
			return record([]string{
				"xcrun", "xctrace", "record",
				"--template", "Time Profiler",
				"--output", inv.Output + ".trace",
				"--launch",
			}, inv), nil
		},
		Resolve: func(outputPath string) (string, bool) {
			trace := outputPath + ".trace"
			return trace, exists(trace)
		},
		Prepare: exportTrace,
	}, deps)
}

func exportTrace(ctx context.Context, deps Deps, raw Artifact, pc *ProfileContext) (Artifact, error) {
	info, err := os.Stat(raw.Path)
	if err != nil {
		return raw, err
	}
	if !info.IsDir() {
		return raw, nil
	}
	pc.AddTempDir(raw.Path)

	out, err := deps.Output(ctx, "xcrun", "xctrace", "export", "--input", raw.Path, "--xpath", timeProfileXPath)
	if err != nil {
		return raw, fmt.Errorf("xctrace export failed: %w", err)
	}

	xml := raw.Path + ".xml"
	if err := os.WriteFile(xml, out, 0o600); err != nil {
		return raw, fmt.Errorf("failed to write trace export: %w", err)
	}
	pc.AddTempFile(xml)
	return Artifact{Kind: convert.KindInstrumentsXML, Path: xml}, nil
}
