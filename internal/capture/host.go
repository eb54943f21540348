package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/indragiek/uniprof/internal/constants"
	uerrors "github.com/indragiek/uniprof/internal/errors"
	"github.com/indragiek/uniprof/internal/sys/signals"
)

// HostCommand is a profiler command line to run on the host.
type HostCommand struct {
	Argv []string
	// Env is the complete child environment. The parent's when nil.
	Env []string
	Dir string

	// CaptureOutput buffers stdout and stderr; they are reported only in a
	// ProfilerExitError. Stdin is inherited either way.
	CaptureOutput bool
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

// HostRunner runs a profiler directly on the host under the same two-signal
// protocol as container runs: the first interrupt is forwarded to the
// profiler, a second one within the escalation window kills its process
// tree.
type HostRunner struct {
	logger  zerolog.Logger
	signals signals.Source
	now     func() time.Time
	window  time.Duration
}

// HostOption configures a HostRunner.
type HostOption func(*HostRunner)

// WithHostSignals replaces the process signal source.
func WithHostSignals(src signals.Source) HostOption {
	return func(h *HostRunner) { h.signals = src }
}

// WithHostClock replaces time.Now for the escalation window.
func WithHostClock(now func() time.Time) HostOption {
	return func(h *HostRunner) { h.now = now }
}

// NewHostRunner creates a HostRunner.
func NewHostRunner(logger zerolog.Logger, opts ...HostOption) *HostRunner {
	h := &HostRunner{
		logger:  logger.With().Str("component", "host_runner").Logger(),
		signals: signals.OSSource{},
		now:     time.Now,
		window:  constants.EscalationWindow,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes cmd and waits for it. It returns the exit code together with
// nil, a *errors.CancellationError when the run was interrupted, or a
// *errors.ProfilerExitError for a nonzero exit.
func (h *HostRunner) Run(ctx context.Context, cmd HostCommand) (int, error) {
	if len(cmd.Argv) == 0 {
		return -1, errors.New("empty command")
	}

	//nolint:gosec // G204: the profiler command line is what the user asked to run.
	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdin = orReader(cmd.Stdin, os.Stdin)

	var stdout, stderr bytes.Buffer
	if cmd.CaptureOutput {
		c.Stdout = &stdout
		c.Stderr = &stderr
	} else {
		c.Stdout = orWriter(cmd.Stdout, os.Stdout)
		c.Stderr = orWriter(cmd.Stderr, os.Stderr)
	}

	scope := signals.Install(h.signals)
	defer scope.Close()

	if err := c.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", cmd.Argv[0], err)
	}
	pid := c.Process.Pid
	h.logger.Debug().Int("pid", pid).Strs("argv", cmd.Argv).Msg("Profiler started")

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	var (
		window    = signals.NewWindow(h.window, h.now)
		firstSig  os.Signal
		escalated bool
		once      sync.Once
		ctxDone   = ctx.Done()
	)
	kill := func() {
		once.Do(func() {
			killTree(context.Background(), int32(pid), h.logger)
		})
	}

	for {
		select {
		case waitErr := <-done:
			code := 0
			if waitErr != nil {
				var exitErr *exec.ExitError
				if !errors.As(waitErr, &exitErr) {
					return -1, fmt.Errorf("failed waiting for %s: %w", cmd.Argv[0], waitErr)
				}
				code = exitErr.ExitCode()
			}

			switch {
			case firstSig != nil:
				return code, &uerrors.CancellationError{Signal: firstSig, Escalated: escalated}
			case escalated:
				return code, ctx.Err()
			case code != 0:
				return code, &uerrors.ProfilerExitError{
					Command:  strings.Join(cmd.Argv, " "),
					ExitCode: code,
					Stdout:   stdout.String(),
					Stderr:   stderr.String(),
				}
			}
			return 0, nil

		case sig := <-scope.C():
			if escalated {
				continue
			}
			if window.Observe() == signals.Escalate {
				escalated = true
				h.logger.Warn().Int("pid", pid).Msg("Second interrupt, killing profiler")
				kill()
				continue
			}
			if firstSig == nil {
				firstSig = sig
			}
			h.logger.Info().Stringer("signal", sig).Msg("Interrupt received, stopping profiler (press again to force)")
			if err := interrupt(pid); err != nil {
				h.logger.Debug().Err(err).Int("pid", pid).Msg("Failed to forward interrupt")
			}

		case <-ctxDone:
			ctxDone = nil
			escalated = true
			kill()
		}
	}
}

// killTree kills pid and all of its descendants, children first.
func killTree(ctx context.Context, pid int32, logger zerolog.Logger) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return
	}
	if children, err := p.ChildrenWithContext(ctx); err == nil {
		for _, child := range children {
			killTree(ctx, child.Pid, logger)
		}
	}
	if err := p.KillWithContext(ctx); err != nil {
		logger.Debug().Err(err).Int32("pid", pid).Msg("Failed to kill process")
	}
}

func orReader(r io.Reader, def *os.File) io.Reader {
	if r == nil {
		return def
	}
	return r
}

func orWriter(w io.Writer, def *os.File) io.Writer {
	if w == nil {
		return def
	}
	return w
}
