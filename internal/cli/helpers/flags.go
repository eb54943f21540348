package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AddFormatFlag adds a standard --format flag to a command.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats ...OutputFormat) {
	names := formatNames(supportedFormats)

	description := fmt.Sprintf("Output format (%s)", strings.Join(names, ", "))
	cmd.Flags().StringVar(formatVar, "format", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported ...OutputFormat) (OutputFormat, error) {
	for _, s := range supported {
		if format == string(s) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(formatNames(supported), ", "))
}

func formatNames(formats []OutputFormat) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}
