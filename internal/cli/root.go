// Package cli wires the uniprof commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	configcmd "github.com/indragiek/uniprof/internal/cli/config"
	"github.com/indragiek/uniprof/internal/cli/helpers"
	"github.com/indragiek/uniprof/internal/cli/record"
	"github.com/indragiek/uniprof/internal/logging"
	"github.com/indragiek/uniprof/pkg/version"
)

// NewRootCmd builds the uniprof command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uniprof",
		Short: "uniprof - one profiler front end for every runtime",
		Long: `Profile programs written in Python, Node.js, Ruby, PHP, JVM languages, .NET,
Erlang/Elixir, Go and native code with one command, and get a speedscope
profile back.

Profilers run either on the host or inside a per-platform container image
with the working directory mounted, so nothing has to be installed locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	logFlags := &logging.FlagConfig{}
	logFlags.RegisterFlags(rootCmd.PersistentFlags())
	_ = logFlags.RegisterCompletions(rootCmd)

	rootCmd.AddCommand(record.NewRecordCmd())
	rootCmd.AddCommand(newPlatformsCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(configcmd.NewConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := helpers.ValidateFormat(format, helpers.FormatText, helpers.FormatJSON)
			if err != nil {
				return err
			}
			info := version.Get()
			if f == helpers.FormatJSON {
				return helpers.WriteJSON(cmd.OutOrStdout(), info)
			}
			cmd.Printf("uniprof version %s\n", info.Version)
			cmd.Printf("Git commit: %s\n", info.GitCommit)
			cmd.Printf("Build date: %s\n", info.BuildDate)
			cmd.Printf("Go version: %s\n", info.GoVersion)
			cmd.Printf("Platform: %s\n", info.Platform)
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.FormatText, helpers.FormatJSON)
	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
