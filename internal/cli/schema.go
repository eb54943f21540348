package cli

import (
	"github.com/spf13/cobra"

	"github.com/indragiek/uniprof/internal/cli/helpers"
	"github.com/indragiek/uniprof/internal/speedscope"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the profiles uniprof writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return helpers.WriteJSON(cmd.OutOrStdout(), speedscope.JSONSchema())
		},
	}
}
