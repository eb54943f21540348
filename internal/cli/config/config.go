// Package config implements the 'uniprof config' command family.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/indragiek/uniprof/internal/cli/helpers"
	"github.com/indragiek/uniprof/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage uniprof configuration",
		Long: `Manage uniprof configuration.

Configuration Priority:
  1. Command-line flags (highest)
  2. Environment variables (UNIPROF_MODE, UNIPROF_CONTAINER_ENGINE, ...)
  3. Project config (.uniprof.yaml in the current directory)
  4. Global config (~/.uniprof/config.yaml)

Environment Variables:
  UNIPROF_CONFIG  Override config directory (default: ~/.uniprof)`,
	}

	cmd.AddCommand(newViewCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

func newViewCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show merged configuration",
		Long: `Display the effective configuration after defaults, the global file, the
project file and environment variables are merged.

Use --raw to output the merged config without annotations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}
			loader := config.NewLoader(env.Logger)
			return writeView(cmd.OutOrStdout(), env, loader.GlobalConfigPath(), raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Output raw YAML without annotations")
	return cmd
}

func writeView(w io.Writer, env *helpers.Env, globalPath string, raw bool) error {
	data, err := yaml.Marshal(env.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if !raw {
		project := "not present"
		if env.Project != nil {
			project = "present"
		}
		global := "not present"
		if _, err := os.Stat(globalPath); err == nil {
			global = "present"
		}

		header := fmt.Sprintf(`# Config sources (priority order):
#   1. Environment variables (highest)
#   2. Project config (%s) - %s
#   3. Global config (%s) - %s
#   4. Defaults
`, config.ProjectConfigFile, project, globalPath, global)
		if _, err := io.WriteString(w, header+"\n"); err != nil {
			return err
		}
	}

	_, err = w.Write(data)
	return err
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the global config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}
			cmd.Println(config.NewLoader(env.Logger).GlobalConfigPath())
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default global config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}
			loader := config.NewLoader(env.Logger)
			path, err := initGlobalConfig(loader, force)
			if err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

var errConfigExists = errors.New("config file already exists (use --force to overwrite)")

func initGlobalConfig(loader *config.Loader, force bool) (string, error) {
	path := loader.GlobalConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s: %w", path, errConfigExists)
	}
	if err := loader.SaveGlobalConfig(config.DefaultGlobalConfig()); err != nil {
		return path, err
	}
	return path, nil
}
