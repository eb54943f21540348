package config

import "github.com/indragiek/uniprof/internal/constants"

// DefaultGlobalConfig returns the built-in configuration.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version: SchemaVersion,
		Record: RecordConfig{
			Mode: constants.ModeAuto,
		},
		Container: ContainerConfig{
			Engine:        constants.DefaultContainerEngine,
			ImageRegistry: constants.DefaultImageRegistry,
			ImageTag:      constants.DefaultImageTag,
			RemoveTimeout: constants.ContainerRemoveTimeout,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Image returns the container image for a platform: an explicit per-platform
// override, otherwise <registry>-<platform>:<tag>.
func (c *ContainerConfig) Image(platform string) string {
	if img, ok := c.Images[platform]; ok && img != "" {
		return img
	}
	return c.ImageRegistry + "-" + platform + ":" + c.ImageTag
}
