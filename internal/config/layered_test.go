package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indragiek/uniprof/internal/constants"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLayeredLoader_DefaultsOnly(t *testing.T) {
	loader := NewLayeredLoader()
	loader.DisableLayer(LayerFile)
	loader.DisableLayer(LayerProject)
	loader.DisableLayer(LayerEnv)

	cfg, project, err := loader.Load("", "")
	require.NoError(t, err)

	assert.Nil(t, project)
	assert.Equal(t, constants.ModeAuto, cfg.Record.Mode)
	assert.Equal(t, "docker", cfg.Container.Engine)
	assert.Equal(t, constants.ContainerRemoveTimeout, cfg.Container.RemoveTimeout)
}

func TestLayeredLoader_Precedence(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "home", "config.yaml")
	projectDir := filepath.Join(dir, "proj")

	writeFile(t, globalPath, `
version: "1"
record:
  mode: host
  profiler_args: ["--global"]
container:
  engine: podman
  images:
    python: registry.local/python:1
    ruby: registry.local/ruby:1
`)
	writeFile(t, filepath.Join(projectDir, ProjectConfigFile), `
platform: python
mode: container
images:
  python: registry.local/python:2
`)
	t.Setenv("UNIPROF_CONTAINER_ENGINE", "docker")

	cfg, project, err := NewLayeredLoader().Load(globalPath, projectDir)
	require.NoError(t, err)
	require.NotNil(t, project)

	// Project overrides file.
	assert.Equal(t, "container", cfg.Record.Mode)
	assert.Equal(t, "registry.local/python:2", cfg.Container.Images["python"])
	assert.Equal(t, "registry.local/ruby:1", cfg.Container.Images["ruby"])
	// File kept where project is silent.
	assert.Equal(t, []string{"--global"}, cfg.Record.ProfilerArgs)
	// Env overrides file.
	assert.Equal(t, "docker", cfg.Container.Engine)
	// Defaults fill the rest.
	assert.Equal(t, constants.DefaultImageTag, cfg.Container.ImageTag)
	assert.Equal(t, "python", project.Platform)
}

func TestLayeredLoader_MissingFilesSkipped(t *testing.T) {
	dir := t.TempDir()

	cfg, project, err := NewLayeredLoader().Load(filepath.Join(dir, "nope.yaml"), dir)
	require.NoError(t, err)
	assert.Nil(t, project)
	assert.Equal(t, constants.ModeAuto, cfg.Record.Mode)
}

func TestLayeredLoader_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "record: [unterminated")

	_, _, err := NewLayeredLoader().Load(path, "")
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestContainerConfig_Image(t *testing.T) {
	c := DefaultGlobalConfig().Container
	assert.Equal(t, "ghcr.io/indragiek/uniprof-python:latest", c.Image("python"))

	c.Images = map[string]string{"jvm": "my/jvm:17"}
	assert.Equal(t, "my/jvm:17", c.Image("jvm"))
	assert.Equal(t, "ghcr.io/indragiek/uniprof-ruby:latest", c.Image("ruby"))
}
