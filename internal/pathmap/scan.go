package pathmap

import (
	"path"
	"strings"

	uerrors "github.com/indragiek/uniprof/internal/errors"
)

// Scanner sources reported in PathMappingWarning.Source.
const (
	SourcePositional = "positional"
	SourceFlagValue  = "flag-value"
	SourceFlagPair   = "flag-pair"
)

// FindUnmappedPaths reports bare positional tokens that are absolute paths
// outside cwd.
func FindUnmappedPaths(cwd string, args []string) []string {
	var found []string

	for _, tok := range args {
		if strings.HasPrefix(tok, "-") {
			continue
		}
		if unmapped(cwd, tok) {
			found = append(found, tok)
		}
	}

	return found
}

// FindUnmappedFlagValues reports the values of `--key=value` tokens that are
// absolute paths outside cwd.
func FindUnmappedFlagValues(cwd string, args []string) []string {
	var found []string

	for _, tok := range args {
		_, value, ok := splitFlagValue(tok)
		if !ok {
			continue
		}
		if unmapped(cwd, value) {
			found = append(found, value)
		}
	}

	return found
}

// FindUnmappedFlagPairs reports the second token of `--key value` pairs when
// it is an absolute path outside cwd.
func FindUnmappedFlagPairs(cwd string, args []string) []string {
	var found []string

	for i := 0; i+1 < len(args); i++ {
		flag := args[i]
		if !strings.HasPrefix(flag, "-") || flag == "-" || flag == "--" || strings.Contains(flag, "=") {
			continue
		}
		value := args[i+1]
		if strings.HasPrefix(value, "-") {
			continue
		}
		if unmapped(cwd, value) {
			found = append(found, value)
		}
	}

	return found
}

// Scan runs the three scanners and merges their findings into warnings,
// one per path, in order of first appearance in args.
func Scan(cwd string, args []string) []uerrors.PathMappingWarning {
	type hit struct {
		token  string
		source string
	}
	hits := make(map[string]hit)

	record := func(paths []string, source string) {
		for _, p := range paths {
			if _, ok := hits[p]; !ok {
				hits[p] = hit{source: source}
			}
		}
	}
	// Most specific scanner first so it wins the source attribution.
	record(FindUnmappedFlagValues(cwd, args), SourceFlagValue)
	record(FindUnmappedFlagPairs(cwd, args), SourceFlagPair)
	record(FindUnmappedPaths(cwd, args), SourcePositional)

	var warnings []uerrors.PathMappingWarning
	emitted := make(map[string]bool)

	for _, tok := range args {
		p := tok
		if _, value, ok := splitFlagValue(tok); ok {
			p = value
		}
		h, ok := hits[p]
		if !ok || emitted[p] {
			continue
		}
		emitted[p] = true
		warnings = append(warnings, uerrors.PathMappingWarning{
			Path:   p,
			Token:  tok,
			Source: h.source,
		})
	}

	return warnings
}

// unmapped reports whether tok is an absolute path that will not resolve
// inside the container: outside cwd and not already under MountRoot.
func unmapped(cwd, tok string) bool {
	if !isAbs(tok) {
		return false
	}
	if IsWindowsAbs(tok) {
		_, ok := windowsRel(cwd, tok)
		return !ok
	}
	if _, ok := relInside(cwd, tok); ok {
		return false
	}
	clean := path.Clean(tok)
	if clean == MountRoot || strings.HasPrefix(clean, MountRoot+"/") {
		return false
	}
	return true
}
