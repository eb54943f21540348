package logging

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	verboseFlag  = "verbose"
	logLevelFlag = "log-level"
)

// Levels lists the accepted --log-level values.
var Levels = []string{"trace", "debug", "info", "warn", "error"}

// FlagConfig holds the logging flag values of one invocation.
type FlagConfig struct {
	Verbose bool
	Level   string
}

// RegisterFlags adds --verbose and --log-level to flags.
func (c *FlagConfig) RegisterFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&c.Verbose, verboseFlag, "v", false, "Enable debug logging (same as --log-level=debug)")
	flags.StringVar(&c.Level, logLevelFlag, "", "Log level, one of: trace, debug, info, warn, error (default from config)")
}

// RegisterCompletions registers shell completions for --log-level on cmd.
func (c *FlagConfig) RegisterCompletions(cmd *cobra.Command) error {
	return cmd.RegisterFlagCompletionFunc(logLevelFlag,
		cobra.FixedCompletions(Levels, cobra.ShellCompDirectiveNoFileComp))
}

// FlagsFrom reads the logging flags from a parsed flag set. Missing flags
// read as their zero values.
func FlagsFrom(flags *pflag.FlagSet) FlagConfig {
	var c FlagConfig
	c.Verbose, _ = flags.GetBool(verboseFlag)
	c.Level, _ = flags.GetString(logLevelFlag)
	return c
}

// EffectiveLevel picks the level: --verbose, then --log-level, then the
// configured level.
func (c FlagConfig) EffectiveLevel(configured string) string {
	switch {
	case c.Verbose:
		return "debug"
	case c.Level != "":
		return c.Level
	default:
		return configured
	}
}
