package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/indragiek/uniprof/internal/convert"
)

// Artifact references the raw output of a profiler.
type Artifact struct {
	Kind convert.Kind
	Path string
}

// ProfileContext is the mutable state of one capture run. It is owned by the
// run and is only touched by the orchestrator and the active plugin.
type ProfileContext struct {
	// RawArtifact is set once the profiler output has been located.
	RawArtifact *Artifact

	// TempFiles and TempDirs are deleted by Close, in order.
	TempFiles []string
	TempDirs  []string

	// RuntimeEnv is overlaid on the environment of the profiled process.
	RuntimeEnv map[string]string

	// Label names the produced profile; usually the profiled command line.
	Label string
}

// NewProfileContext returns an empty context.
func NewProfileContext(label string) *ProfileContext {
	return &ProfileContext{
		RuntimeEnv: make(map[string]string),
		Label:      label,
	}
}

// SetRawArtifact records the raw profiler output, replacing any earlier one.
func (c *ProfileContext) SetRawArtifact(kind convert.Kind, path string) {
	c.RawArtifact = &Artifact{Kind: kind, Path: path}
}

// AddTempFile schedules path for deletion.
func (c *ProfileContext) AddTempFile(path string) {
	c.TempFiles = append(c.TempFiles, path)
}

// AddTempDir schedules a directory tree for deletion.
func (c *ProfileContext) AddTempDir(path string) {
	c.TempDirs = append(c.TempDirs, path)
}

// MergeEnv overlays env on RuntimeEnv. Later merges win.
func (c *ProfileContext) MergeEnv(env map[string]string) {
	if c.RuntimeEnv == nil {
		c.RuntimeEnv = make(map[string]string, len(env))
	}
	maps.Copy(c.RuntimeEnv, env)
}

// Environ returns base (KEY=VALUE entries) with RuntimeEnv applied. Existing
// keys are replaced in place; new keys are appended in sorted order.
func (c *ProfileContext) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(c.RuntimeEnv))
	seen := make(map[string]bool, len(c.RuntimeEnv))

	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if v, ok := c.RuntimeEnv[k]; ok {
			if !seen[k] {
				out = append(out, k+"="+v)
				seen[k] = true
			}
			continue
		}
		out = append(out, kv)
	}

	for _, k := range slices.Sorted(maps.Keys(c.RuntimeEnv)) {
		if !seen[k] {
			out = append(out, k+"="+c.RuntimeEnv[k])
		}
	}
	return out
}

// Close deletes every temporary file and directory. Missing paths are not
// errors; other failures are collected and returned together.
func (c *ProfileContext) Close() error {
	var errs []error

	for _, f := range c.TempFiles {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", f, err))
		}
	}
	for _, d := range c.TempDirs {
		if err := os.RemoveAll(d); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", d, err))
		}
	}

	c.TempFiles = nil
	c.TempDirs = nil
	return errors.Join(errs...)
}
