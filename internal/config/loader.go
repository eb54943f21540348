// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/indragiek/uniprof/internal/constants"
	"github.com/indragiek/uniprof/internal/privilege"
)

// ProjectConfigFile is the name of the project-local config file.
const ProjectConfigFile = ".uniprof.yaml"

// Loader handles loading and saving configuration files.
type Loader struct {
	baseDir string
	logger  zerolog.Logger
}

// NewLoader creates a new config loader.
// The base directory is resolved in this order:
//  1. UNIPROF_CONFIG environment variable.
//  2. The invoking user's ~/.uniprof (the original user under sudo).
//  3. A uniprof directory under the system temp dir.
func NewLoader(logger zerolog.Logger) *Loader {
	l := &Loader{logger: logger.With().Str("component", "config").Logger()}

	if dir := os.Getenv("UNIPROF_CONFIG"); dir != "" {
		l.baseDir = dir
		return l
	}

	if home, err := privilege.HomeDir(); err == nil && home != "" {
		l.baseDir = filepath.Join(home, constants.DefaultDir)
		return l
	}

	// Minimal containers may have no home directory; defaults and env
	// overrides still apply.
	l.baseDir = filepath.Join(os.TempDir(), "uniprof")
	return l
}

// BaseDir returns the configuration directory.
func (l *Loader) BaseDir() string {
	return l.baseDir
}

// GlobalConfigPath returns the path to the global config file.
func (l *Loader) GlobalConfigPath() string {
	return filepath.Join(l.baseDir, constants.ConfigFile)
}

// DefaultCacheDir returns the directory for container cache volumes when the
// configuration does not name one.
func (l *Loader) DefaultCacheDir() string {
	return filepath.Join(l.baseDir, "cache")
}

// Load returns the effective configuration for runs started in projectDir,
// validated.
func (l *Loader) Load(projectDir string) (*GlobalConfig, *ProjectConfig, error) {
	cfg, project, err := NewLayeredLoader().Load(l.GlobalConfigPath(), projectDir)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Container.CacheDir == "" {
		cfg.Container.CacheDir = l.DefaultCacheDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	l.logger.Debug().
		Str("path", l.GlobalConfigPath()).
		Bool("project", project != nil).
		Str("mode", cfg.Record.Mode).
		Str("engine", cfg.Container.Engine).
		Msg("Configuration loaded")

	return cfg, project, nil
}

// SaveGlobalConfig writes cfg to the global config file.
func (l *Loader) SaveGlobalConfig(cfg *GlobalConfig) error {
	path := l.GlobalConfigPath()

	dir := filepath.Dir(path)
	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := privilege.FixFileOwnership(dir); err != nil {
		l.logger.Warn().Err(err).Str("path", dir).Msg("Failed to fix directory ownership")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal global config: %w", err)
	}

	//nolint:gosec // G306: Global config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write global config: %w", err)
	}
	if err := privilege.FixFileOwnership(path); err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("Failed to fix file ownership")
	}

	return nil
}

// LoadProjectConfig reads projectDir/.uniprof.yaml. It returns nil without
// error when the file does not exist.
func LoadProjectConfig(projectDir string) (*ProjectConfig, error) {
	path := filepath.Join(projectDir, ProjectConfigFile)

	//nolint:gosec // G304: Path is built from the working directory.
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config %s: %w", path, err)
	}

	return &cfg, nil
}
