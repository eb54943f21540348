package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from the global file.
	LayerFile Layer = "file"

	// LayerProject represents a project-local .uniprof.yaml.
	LayerProject Layer = "project"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"
)

// LayeredLoader provides layered configuration loading.
// Configuration is loaded in the following order:
// 1. Defaults - hardcoded default values
// 2. File - global configuration file (YAML)
// 3. Project - .uniprof.yaml in the working directory
// 4. Environment - environment variables
//
// Each layer overrides values from previous layers. Command-line flags are
// applied on top by the CLI.
type LayeredLoader struct {
	enabledLayers map[Layer]bool
}

// NewLayeredLoader creates a new layered configuration loader with all
// layers enabled.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerProject:  true,
			LayerEnv:      true,
		},
	}
}

// EnableLayer enables a specific configuration layer.
func (l *LayeredLoader) EnableLayer(layer Layer) {
	l.enabledLayers[layer] = true
}

// DisableLayer disables a specific configuration layer.
func (l *LayeredLoader) DisableLayer(layer Layer) {
	l.enabledLayers[layer] = false
}

// Load builds the effective configuration. Missing files are skipped.
func (l *LayeredLoader) Load(configPath, projectDir string) (*GlobalConfig, *ProjectConfig, error) {
	var cfg *GlobalConfig
	if l.enabledLayers[LayerDefaults] {
		cfg = DefaultGlobalConfig()
	} else {
		cfg = &GlobalConfig{}
	}

	if l.enabledLayers[LayerFile] && configPath != "" {
		if err := mergeFromFile(cfg, configPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	var project *ProjectConfig
	if l.enabledLayers[LayerProject] && projectDir != "" {
		p, err := LoadProjectConfig(projectDir)
		if err != nil {
			return nil, nil, err
		}
		if p != nil {
			p.apply(cfg)
			project = p
		}
	}

	if l.enabledLayers[LayerEnv] {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	return cfg, project, nil
}

// apply overlays the set fields of a project config.
func (p *ProjectConfig) apply(cfg *GlobalConfig) {
	if p.Mode != "" {
		cfg.Record.Mode = p.Mode
	}
	if len(p.ProfilerArgs) > 0 {
		cfg.Record.ProfilerArgs = append([]string(nil), p.ProfilerArgs...)
	}
	if len(p.Images) > 0 {
		merged := make(map[string]string, len(cfg.Container.Images)+len(p.Images))
		for k, v := range cfg.Container.Images {
			merged[k] = v
		}
		for k, v := range p.Images {
			merged[k] = v
		}
		cfg.Container.Images = merged
	}
}

// mergeFromFile loads configuration from a YAML file and merges it into cfg.
func mergeFromFile(cfg interface{}, filePath string) error {
	// #nosec G304 -- filePath is provided by the application configuration system, not user input.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}
