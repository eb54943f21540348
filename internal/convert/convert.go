// Package convert normalizes raw profiler artifacts into canonical profiles.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/indragiek/uniprof/internal/speedscope"
)

// Kind identifies the on-disk format of a raw profiler artifact.
type Kind string

const (
	// KindSpeedscope is already canonical (py-spy, rbspy, dotnet-trace, Excimer).
	KindSpeedscope Kind = "speedscope"
	// KindCollapsed is semicolon-joined stacks followed by a count per line.
	KindCollapsed Kind = "collapsed"
	// KindPerfScript is the text output of `perf script`.
	KindPerfScript Kind = "perf-script"
	// KindPprof is a protobuf profile, optionally gzip-compressed.
	KindPprof Kind = "pprof"
	// KindCPUProfile is a V8/Chrome .cpuprofile document.
	KindCPUProfile Kind = "cpuprofile"
	// KindInstrumentsXML is an `xctrace export` of the time-profile table.
	KindInstrumentsXML Kind = "instruments-xml"
)

// Options control naming of the produced document.
type Options struct {
	// Name is the document name. The raw file's base name when empty.
	Name string
	// Exporter tags the document with the producing plugin.
	Exporter string
}

func (o Options) name(path string) string {
	if o.Name != "" {
		return o.Name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Convert reads the raw artifact at path and returns a validated canonical
// profile.
func Convert(kind Kind, path string, opts Options) (*speedscope.File, error) {
	fh, err := os.Open(path) // #nosec G304 - raw artifact produced by this run.
	if err != nil {
		return nil, fmt.Errorf("failed to open raw profile: %w", err)
	}
	defer func() { _ = fh.Close() }()

	var f *speedscope.File
	switch kind {
	case KindSpeedscope:
		f, err = fromSpeedscope(fh, opts.name(path))
	case KindCollapsed:
		f, err = fromCollapsed(fh, opts.name(path))
	case KindPerfScript:
		f, err = fromPerfScript(fh, opts.name(path))
	case KindPprof:
		f, err = fromPprof(fh, opts.name(path))
	case KindCPUProfile:
		f, err = fromCPUProfile(fh, opts.name(path))
	case KindInstrumentsXML:
		f, err = fromInstrumentsXML(fh, opts.name(path))
	default:
		return nil, fmt.Errorf("unsupported raw profile format %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s profile %s: %w", kind, path, err)
	}

	if f.Name == "" {
		f.Name = opts.name(path)
	}
	f.Exporter = opts.Exporter
	f.Schema = speedscope.SchemaURL

	if err := speedscope.Validate(f); err != nil {
		return nil, fmt.Errorf("converted %s profile is invalid: %w", kind, err)
	}
	return f, nil
}

// ConvertFile converts src and writes the canonical profile to dst.
func ConvertFile(kind Kind, src, dst string, opts Options) error {
	f, err := Convert(kind, src, opts)
	if err != nil {
		return err
	}
	return speedscope.Write(dst, f)
}
