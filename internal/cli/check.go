package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/indragiek/uniprof/internal/capture"
	"github.com/indragiek/uniprof/internal/cli/helpers"
	"github.com/indragiek/uniprof/internal/platform"
)

// runChecks checks each selected plugin in its resolved mode. With no
// selection every registered platform is checked in its default mode.
func runChecks(ctx context.Context, registry *platform.Registry, target []string, mode string) ([]*platform.EnvironmentCheck, error) {
	var plugins []platform.Plugin
	switch {
	case len(target) == 0:
		plugins = registry.Plugins()
	case len(target) == 1:
		if p, ok := registry.Get(target[0]); ok {
			plugins = []platform.Plugin{p}
			target = nil
			break
		}
		fallthrough
	default:
		p, err := registry.Resolve("", target)
		if err != nil {
			return nil, err
		}
		plugins = []platform.Plugin{p}
	}

	checks := make([]*platform.EnvironmentCheck, 0, len(plugins))
	for _, p := range plugins {
		resolved, err := capture.ResolveMode(p, mode, target)
		if err != nil {
			// Platforms that cannot run in the requested mode are skipped
			// when checking everything.
			if len(plugins) > 1 {
				continue
			}
			return nil, err
		}
		checks = append(checks, p.CheckEnvironment(ctx, resolved))
	}
	return checks, nil
}

func newCheckCmd() *cobra.Command {
	var (
		mode   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "check [platform | command...]",
		Short: "Check that profiling prerequisites are installed",
		Long: `Check whether a platform can be profiled in the requested mode and print
setup instructions for anything missing.

The argument is either a platform name or the command you intend to record,
in which case the platform is detected the same way record does. Without an
argument every platform is checked and the command always succeeds.`,
		Example: `  uniprof check python
  uniprof check --mode host -- node server.js
  uniprof check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := helpers.ValidateFormat(format, helpers.FormatText, helpers.FormatJSON)
			if err != nil {
				return err
			}
			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}

			checks, err := runChecks(cmd.Context(), env.Registry(), args, env.Resolver.Mode(mode))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if f == helpers.FormatJSON {
				if err := helpers.WriteJSON(out, checks); err != nil {
					return err
				}
			} else {
				report := helpers.NewCheckReport(out)
				if len(checks) == 1 {
					err = report.Render(out, checks[0])
				} else {
					err = report.RenderAll(out, checks)
				}
				if err != nil {
					return err
				}
			}

			if len(args) > 0 && len(checks) == 1 {
				if err := checks[0].Err(); err != nil {
					return fmt.Errorf("%s: environment check failed", checks[0].Platform)
				}
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Mode to check (auto, host, container)")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.FormatText, helpers.FormatJSON)
	return cmd
}
