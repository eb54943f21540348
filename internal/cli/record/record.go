// Package record implements `uniprof record`.
package record

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/indragiek/uniprof/internal/capture"
	"github.com/indragiek/uniprof/internal/cli/helpers"
	"github.com/indragiek/uniprof/internal/constants"
	uerrors "github.com/indragiek/uniprof/internal/errors"
	"github.com/indragiek/uniprof/internal/platform"
)

type flags struct {
	platform      string
	mode          string
	output        string
	format        string
	captureOutput bool
	hostNetwork   bool
	profilerArgs  []string
}

// NewRecordCmd creates the record command.
func NewRecordCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "record [flags] -- <command> [args...]",
		Short: "Profile a command and write a speedscope profile",
		Long: `Run a command under the profiler for its platform and write the result as a
speedscope JSON profile.

The platform is detected from the command (python, node, ruby, php, java,
dotnet, elixir, go test, native binaries) unless --platform is given.
In container mode the working directory is mounted at /workspace and
absolute paths inside it are rewritten; paths outside it are reported.

Press Ctrl-C once to stop profiling and keep the profile, twice to abort.`,
		Example: `  uniprof record -o profile.json -- python app.py --port 8080
  uniprof record --mode host --profiler-arg=--rate=200 -- ruby script.rb
  uniprof record --platform native -- ./build/server`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := helpers.ValidateFormat(f.format, helpers.FormatText, helpers.FormatJSON)
			if err != nil {
				return err
			}
			switch f.mode {
			case "", constants.ModeAuto, constants.ModeHost, constants.ModeContainer:
			default:
				return fmt.Errorf("invalid --mode %q (expected auto, host or container)", f.mode)
			}

			env, err := helpers.LoadEnv(cmd)
			if err != nil {
				return err
			}

			var opts []capture.Option
			if dir := env.Config.Record.OutputDir; dir != "" {
				opts = append(opts, capture.WithOutputDir(dir))
			}
			orch := capture.NewOrchestrator(env.Registry(), env.Logger, opts...)

			output := f.output
			if output != "" && !filepath.IsAbs(output) {
				output = filepath.Join(env.Cwd, output)
			}

			outcome, err := orch.Record(cmd.Context(), capture.Request{
				Argv:     args,
				Platform: env.Resolver.Platform(f.platform),
				Options: platform.RecordOptions{
					Mode:          env.Resolver.Mode(f.mode),
					Cwd:           env.Cwd,
					Verbose:       env.Verbose,
					ProfilerArgs:  env.Resolver.ProfilerArgs(f.profilerArgs),
					HostNetwork:   f.hostNetwork || env.Config.Container.HostNetwork,
					CaptureOutput: f.captureOutput || env.Config.Record.CaptureOutput,
					Output:        output,
					CacheDir:      env.Config.Container.CacheDir,
					TTY:           helpers.Interactive(),
				},
			})

			var envErr *uerrors.EnvironmentError
			if errors.As(err, &envErr) && outcome != nil && outcome.Check != nil {
				errOut := cmd.ErrOrStderr()
				if rerr := helpers.NewCheckReport(errOut).Render(errOut, outcome.Check); rerr != nil {
					env.Logger.Debug().Err(rerr).Msg("Failed to render environment check")
				}
			}
			if err != nil {
				return err
			}

			if format == helpers.FormatJSON {
				return helpers.WriteJSON(cmd.OutOrStdout(), summarize(outcome))
			}
			return printSummary(cmd.OutOrStdout(), outcome)
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&f.platform, "platform", "p", "", "Platform to use instead of detecting it from the command")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "Where to run the profiler (auto, host, container)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Path of the speedscope profile (default: a file in the temp directory)")
	cmd.Flags().BoolVar(&f.captureOutput, "capture-output", false, "Hide profiler output unless the run fails")
	cmd.Flags().BoolVar(&f.hostNetwork, "host-network", false, "Use host networking for the profiling container")
	cmd.Flags().StringArrayVar(&f.profilerArgs, "profiler-arg", nil, "Extra argument for the profiler (repeatable)")
	helpers.AddFormatFlag(cmd, &f.format, helpers.FormatText, helpers.FormatText, helpers.FormatJSON)

	_ = cmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{constants.ModeAuto, constants.ModeHost, constants.ModeContainer}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// Summary is the machine-readable result of a capture.
type Summary struct {
	Platform   string   `json:"platform"`
	Mode       string   `json:"mode"`
	Output     string   `json:"output"`
	Exporter   string   `json:"exporter"`
	Profiles   int      `json:"profiles"`
	Samples    int      `json:"samples"`
	DurationMs int64    `json:"durationMs"`
	Warnings   []string `json:"warnings,omitempty"`
}

func summarize(o *capture.Outcome) Summary {
	s := Summary{
		Platform:   o.Platform,
		Mode:       o.Mode,
		Output:     o.OutputPath,
		Exporter:   o.Exporter,
		Profiles:   o.Profiles,
		Samples:    o.Samples,
		DurationMs: o.Duration.Milliseconds(),
	}
	for _, w := range o.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}

func printSummary(w io.Writer, o *capture.Outcome) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile written to %s\n", o.OutputPath)
	fmt.Fprintf(&b, "  platform: %s (%s mode)\n", o.Platform, o.Mode)
	fmt.Fprintf(&b, "  samples:  %d in %d profile(s)\n", o.Samples, o.Profiles)
	fmt.Fprintf(&b, "  duration: %s\n", o.Duration.Round(time.Millisecond))
	if len(o.Warnings) > 0 {
		fmt.Fprintf(&b, "  warnings: %d path(s) outside the working directory are not visible in the container\n", len(o.Warnings))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
