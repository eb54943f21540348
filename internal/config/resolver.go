package config

import (
	"os"
	"strings"
)

// Resolver picks per-run values with priority order:
//  1. Command-line flags (highest)
//  2. Environment variables
//  3. Project-local config
//  4. Global config
//  5. Defaults (lowest)
//
// Layers 2-5 are already folded into cfg by the loader.
type Resolver struct {
	cfg     *GlobalConfig
	project *ProjectConfig
}

// NewResolver creates a resolver over loaded configuration.
func NewResolver(cfg *GlobalConfig, project *ProjectConfig) *Resolver {
	return &Resolver{cfg: cfg, project: project}
}

// Mode returns the execution mode for a run.
func (r *Resolver) Mode(flag string) string {
	if flag != "" {
		return flag
	}
	return r.cfg.Record.Mode
}

// Platform returns an explicitly chosen platform, or "" to detect one from
// the command.
func (r *Resolver) Platform(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("UNIPROF_PLATFORM"); v != "" {
		return v
	}
	if r.project != nil {
		return r.project.Platform
	}
	return ""
}

// ProfilerArgs returns configured profiler arguments followed by those given
// on the command line.
func (r *Resolver) ProfilerArgs(flag []string) []string {
	out := append([]string(nil), r.cfg.Record.ProfilerArgs...)
	return append(out, flag...)
}

// Image returns the container image for platform.
func (r *Resolver) Image(platform string) string {
	return r.cfg.Container.Image(strings.ToLower(platform))
}
