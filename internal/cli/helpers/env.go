// Package helpers holds what the uniprof commands share: configuration and
// logger setup, output formatting and the environment check report.
package helpers

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/indragiek/uniprof/internal/config"
	"github.com/indragiek/uniprof/internal/docker"
	"github.com/indragiek/uniprof/internal/logging"
	"github.com/indragiek/uniprof/internal/platform"
)

// Env is the loaded configuration for one command invocation together with
// the logger built from it.
type Env struct {
	Logger   zerolog.Logger
	Config   *config.GlobalConfig
	Project  *config.ProjectConfig
	Resolver *config.Resolver
	Verbose  bool
	Cwd      string
}

// LoadEnv loads the configuration for the current directory and builds the
// logger from the --verbose and --log-level flags.
func LoadEnv(cmd *cobra.Command) (*Env, error) {
	flags := logging.FlagsFrom(cmd.Flags())

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	boot := logging.New(logging.Config{
		Level:  flags.EffectiveLevel("warn"),
		Pretty: logging.IsTerminal(os.Stderr),
		Output: cmd.ErrOrStderr(),
	})

	cfg, project, err := config.NewLoader(boot).Load(cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	pretty := logging.IsTerminal(os.Stderr)
	if cfg.Log.Pretty != nil {
		pretty = *cfg.Log.Pretty
	}

	return &Env{
		Logger: logging.New(logging.Config{
			Level:  flags.EffectiveLevel(cfg.Log.Level),
			Pretty: pretty,
			Output: cmd.ErrOrStderr(),
		}),
		Config:   cfg,
		Project:  project,
		Resolver: config.NewResolver(cfg, project),
		Verbose:  flags.Verbose,
		Cwd:      cwd,
	}, nil
}

// Engine returns a client for the configured container CLI.
func (e *Env) Engine() *docker.CLIEngine {
	return docker.NewCLIEngine(e.Config.Container.Engine, e.Logger)
}

// Registry returns every platform wired to the configured container engine
// and images.
func (e *Env) Registry() *platform.Registry {
	engine := e.Engine()
	return platform.DefaultRegistry(platform.Deps{
		Logger: e.Logger,
		Engine: engine,
		Supervisor: docker.NewSupervisor(engine, e.Logger,
			docker.WithRemoveTimeout(e.Config.Container.RemoveTimeout),
		),
		Image: e.Resolver.Image,
	})
}
