package helpers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/indragiek/uniprof/internal/logging"
	"github.com/indragiek/uniprof/internal/platform"
)

var (
	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// CheckReport renders environment check results. Styled output uses colors
// and renders setup instructions as markdown; plain output is for pipes and
// NO_COLOR.
type CheckReport struct {
	Styled bool
}

// NewCheckReport returns a report styled when w is a terminal.
func NewCheckReport(w io.Writer) *CheckReport {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = logging.IsTerminal(f) && os.Getenv("NO_COLOR") == ""
	}
	return &CheckReport{Styled: styled}
}

// Render writes one check.
func (r *CheckReport) Render(w io.Writer, c *platform.EnvironmentCheck) error {
	var b strings.Builder

	if c.IsValid {
		fmt.Fprintf(&b, "%s %s (%s mode) is ready\n", r.paint(okStyle, "✓"), c.Platform, c.Mode)
	} else {
		fmt.Fprintf(&b, "%s %s (%s mode) is not ready\n", r.paint(failStyle, "✗"), c.Platform, c.Mode)
	}
	for _, e := range c.Errors {
		fmt.Fprintf(&b, "  %s %s\n", r.paint(failStyle, "error:"), e)
	}
	for _, w := range c.Warnings {
		fmt.Fprintf(&b, "  %s %s\n", r.paint(warnStyle, "warning:"), w)
	}

	if len(c.SetupInstructions) > 0 {
		setup, err := r.instructions(c.SetupInstructions)
		if err != nil {
			return err
		}
		b.WriteString(setup)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderAll writes several checks followed by a one-line summary.
func (r *CheckReport) RenderAll(w io.Writer, checks []*platform.EnvironmentCheck) error {
	ready := 0
	for i, c := range checks {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Render(w, c); err != nil {
			return err
		}
		if c.IsValid {
			ready++
		}
	}
	_, err := fmt.Fprintf(w, "\n%s\n", r.paint(hintStyle, fmt.Sprintf("%d of %d platforms ready", ready, len(checks))))
	return err
}

func (r *CheckReport) instructions(steps []string) (string, error) {
	if !r.Styled {
		var b strings.Builder
		b.WriteString("\n  To fix:\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "    - %s\n", s)
		}
		return b.String(), nil
	}

	var md strings.Builder
	md.WriteString("**To fix:**\n\n")
	for _, s := range steps {
		fmt.Fprintf(&md, "- %s\n", s)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md.String())
	if err != nil {
		return "", fmt.Errorf("failed to render setup instructions: %w", err)
	}
	return out, nil
}

func (r *CheckReport) paint(style lipgloss.Style, s string) string {
	if !r.Styled {
		return s
	}
	return style.Render(s)
}
