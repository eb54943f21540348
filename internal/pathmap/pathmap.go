// Package pathmap translates host filesystem references in a command line into
// paths that resolve inside a profiling container, where the host working
// directory is bound at MountRoot.
//
// Translation is lexical. Nothing here understands the flag grammar of the
// wrapped tools, so a token is only rewritten when it is clearly a path into
// the working directory.
package pathmap

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/indragiek/uniprof/internal/constants"
)

// MountRoot is the in-container path bound to the host working directory.
var MountRoot = constants.ContainerMountRoot

var windowsAbs = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// ToContainerPath maps a single command-line token to its in-container form.
//
//   - An absolute path inside cwd is rewritten under MountRoot.
//   - An absolute path outside cwd is returned unchanged; it will not resolve
//     inside the container, which the pre-flight scanners report.
//   - A Windows drive path is converted when cwd is a drive path on the same
//     drive, and left unchanged otherwise.
//   - A relative token naming an existing file under cwd is rewritten under
//     MountRoot; anything else (flags, values) passes through verbatim.
func ToContainerPath(cwd, token string) string {
	if token == "" {
		return token
	}

	if IsWindowsAbs(token) {
		if rel, ok := windowsRel(cwd, token); ok {
			return mountJoin(rel)
		}
		return token
	}

	if strings.HasPrefix(token, "/") {
		if rel, ok := relInside(cwd, token); ok {
			return mountJoin(rel)
		}
		return token
	}

	if strings.HasPrefix(token, "-") || strings.HasPrefix(token, "~") {
		return token
	}

	if _, err := os.Stat(filepath.Join(cwd, filepath.FromSlash(token))); err != nil {
		return token
	}
	rel, ok := relInside(cwd, filepath.Join(cwd, filepath.FromSlash(token)))
	if !ok {
		// "../x" escapes the working directory.
		return token
	}

	return mountJoin(rel)
}

// TranslateArgs rewrites every token of argv with ToContainerPath. For
// `--key=value` tokens only the value is translated; other flag tokens are
// left alone.
func TranslateArgs(cwd string, argv []string) []string {
	out := make([]string, len(argv))

	for i, tok := range argv {
		if key, value, ok := splitFlagValue(tok); ok {
			out[i] = key + "=" + ToContainerPath(cwd, value)
			continue
		}
		if strings.HasPrefix(tok, "-") {
			out[i] = tok
			continue
		}
		out[i] = ToContainerPath(cwd, tok)
	}

	return out
}

// IsWindowsAbs reports whether p looks like a Windows drive-letter path.
func IsWindowsAbs(p string) bool {
	return windowsAbs.MatchString(p)
}

// isAbs reports whether a token is an absolute path in either style.
func isAbs(p string) bool {
	return strings.HasPrefix(p, "/") || IsWindowsAbs(p)
}

// relInside returns p relative to cwd when p is cwd or lies beneath it.
func relInside(cwd, p string) (string, bool) {
	cwd = filepath.Clean(cwd)
	p = filepath.Clean(p)

	rel, err := filepath.Rel(cwd, p)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return filepath.ToSlash(rel), true
}

// windowsRel is relInside for drive-letter paths, compared case-insensitively
// with either separator.
func windowsRel(cwd, p string) (string, bool) {
	if !IsWindowsAbs(cwd) {
		return "", false
	}

	norm := func(s string) string {
		s = strings.ReplaceAll(s, `\`, "/")
		s = path.Clean("/" + s)[1:]
		return s
	}
	c := norm(cwd)
	t := norm(p)

	if strings.EqualFold(c, t) {
		return ".", true
	}
	prefix := strings.TrimSuffix(c, "/") + "/"
	if len(t) <= len(prefix) || !strings.EqualFold(t[:len(prefix)], prefix) {
		return "", false
	}

	return t[len(prefix):], true
}

func mountJoin(rel string) string {
	if rel == "." || rel == "" {
		return MountRoot
	}
	return path.Join(MountRoot, rel)
}

// splitFlagValue splits `--key=value` (or `-k=value`) tokens.
func splitFlagValue(tok string) (key, value string, ok bool) {
	if !strings.HasPrefix(tok, "-") {
		return "", "", false
	}
	key, value, ok = strings.Cut(tok, "=")
	if !ok || key == "-" || key == "--" {
		return "", "", false
	}
	return key, value, true
}
