package config

import "time"

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// GlobalConfig represents the ~/.uniprof/config.yaml config file.
type GlobalConfig struct {
	Version   string          `yaml:"version"`
	Record    RecordConfig    `yaml:"record"`
	Container ContainerConfig `yaml:"container"`
	Log       LogConfig       `yaml:"log"`
}

// RecordConfig holds defaults for `uniprof record`.
type RecordConfig struct {
	// Mode is auto, host or container.
	Mode string `yaml:"mode" env:"UNIPROF_MODE"`
	// OutputDir receives profiles when no explicit output path is given.
	// The system temp directory when empty.
	OutputDir string `yaml:"output_dir,omitempty" env:"UNIPROF_OUTPUT_DIR"`
	// CaptureOutput buffers profiler output and shows it only on failure.
	CaptureOutput bool `yaml:"capture_output" env:"UNIPROF_CAPTURE_OUTPUT"`
	// ProfilerArgs are passed to every profiler invocation.
	ProfilerArgs []string `yaml:"profiler_args,omitempty" env:"UNIPROF_PROFILER_ARGS"`
}

// ContainerConfig controls container-mode runs.
type ContainerConfig struct {
	// Engine is the container CLI (docker or podman).
	Engine        string `yaml:"engine" env:"UNIPROF_CONTAINER_ENGINE"`
	ImageRegistry string `yaml:"image_registry" env:"UNIPROF_IMAGE_REGISTRY"`
	ImageTag      string `yaml:"image_tag" env:"UNIPROF_IMAGE_TAG"`
	// Images overrides the image for individual platforms.
	Images map[string]string `yaml:"images,omitempty"`
	// CacheDir holds persistent package-manager caches. Defaults to
	// ~/.uniprof/cache of the invoking user.
	CacheDir      string        `yaml:"cache_dir,omitempty" env:"UNIPROF_CACHE_DIR"`
	HostNetwork   bool          `yaml:"host_network" env:"UNIPROF_HOST_NETWORK"`
	RemoveTimeout time.Duration `yaml:"remove_timeout" env:"UNIPROF_REMOVE_TIMEOUT"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"UNIPROF_LOG_LEVEL"`
	Pretty *bool  `yaml:"pretty,omitempty"`
}

// ProjectConfig represents a project-local .uniprof.yaml. Set fields override
// the global configuration for runs started in that directory.
type ProjectConfig struct {
	Version      string            `yaml:"version"`
	Platform     string            `yaml:"platform,omitempty"`
	Mode         string            `yaml:"mode,omitempty"`
	ProfilerArgs []string          `yaml:"profiler_args,omitempty"`
	Images       map[string]string `yaml:"images,omitempty"`
}
