package cli

import (
	"github.com/spf13/cobra"

	"github.com/indragiek/uniprof/internal/cli/helpers"
	"github.com/indragiek/uniprof/internal/platform"
)

// platformRow is one line of `uniprof platforms`.
type platformRow struct {
	Name        string   `header:"PLATFORM" json:"name"`
	Profiler    string   `header:"PROFILER" json:"profiler"`
	DefaultMode string   `header:"DEFAULT MODE" json:"defaultMode"`
	Container   bool     `header:"CONTAINER" json:"container"`
	Image       string   `json:"image,omitempty"`
	Extensions  []string `header:"EXTENSIONS" json:"extensions"`
	Executables []string `header:"EXECUTABLES" json:"executables"`
}

func platformRows(registry *platform.Registry) []platformRow {
	plugins := registry.Plugins()
	rows := make([]platformRow, 0, len(plugins))
	for _, p := range plugins {
		row := platformRow{
			Name:        p.Name(),
			Profiler:    p.Profiler(),
			DefaultMode: p.DefaultMode(nil),
			Container:   p.SupportsContainer(),
			Extensions:  p.Extensions(),
			Executables: p.Executables(),
		}
		if row.Container {
			row.Image = p.ContainerImage()
		}
		rows = append(rows, row)
	}
	return rows
}

func newPlatformsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "List supported platforms and how they are detected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := helpers.ValidateFormat(format, helpers.FormatText, helpers.FormatJSON)
			if err != nil {
				return err
			}
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}

			rows := platformRows(env.Registry())
			if f == helpers.FormatJSON {
				return helpers.WriteJSON(cmd.OutOrStdout(), rows)
			}
			return helpers.WriteTable(cmd.OutOrStdout(), rows)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.FormatText, helpers.FormatJSON)
	return cmd
}
