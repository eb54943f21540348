package capture

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uerrors "github.com/indragiek/uniprof/internal/errors"
	"github.com/indragiek/uniprof/internal/sys/signals"
	"github.com/indragiek/uniprof/internal/sys/signals/signalstest"
)

func newTestHostRunner(src signals.Source) *HostRunner {
	fixed := time.Unix(1700000000, 0)
	return NewHostRunner(zerolog.Nop(),
		WithHostSignals(src),
		WithHostClock(func() time.Time { return fixed }),
	)
}

// startHost runs cmd in the background and waits until the signal handler is
// installed and the shell had time to set its traps.
func startHost(t *testing.T, ctx context.Context, h *HostRunner, src *signalstest.Source, cmd HostCommand) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		_, err := h.Run(ctx, cmd)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return src.Installed() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	return errCh
}

func waitHost(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("host run did not finish")
		return nil
	}
}

func TestHostRunner_CleanExit(t *testing.T) {
	src := signalstest.NewSource()
	code, err := newTestHostRunner(src).Run(t.Context(), HostCommand{Argv: []string{"sh", "-c", "exit 0"}})

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 1, src.Installs())
	assert.Equal(t, 0, src.Installed())
}

func TestHostRunner_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestHostRunner(signalstest.NewSource()).Run(t.Context(), HostCommand{
		Argv:          []string{"sh", "-c", `[ "$UNIPROF_TEST" = yes ] && [ "$(pwd -P)" = "$(cd "$0" && pwd -P)" ] || exit 9`, dir},
		Env:           []string{"UNIPROF_TEST=yes", "PATH=" + os.Getenv("PATH")},
		Dir:           dir,
		CaptureOutput: true,
	})
	assert.NoError(t, err)
}

func TestHostRunner_StartFailure(t *testing.T) {
	src := signalstest.NewSource()
	_, err := newTestHostRunner(src).Run(t.Context(), HostCommand{Argv: []string{"/nonexistent/profiler"}})

	assert.ErrorContains(t, err, "failed to start")
	assert.Equal(t, 0, src.Installed())
}

func TestHostRunner_FirstSignalIsForwarded(t *testing.T) {
	src := signalstest.NewSource()
	h := newTestHostRunner(src)

	errCh := startHost(t, t.Context(), h, src, HostCommand{
		Argv: []string{"sh", "-c", `trap 'exit 0' INT; while :; do sleep 0.05; done`},
	})
	src.Send(os.Interrupt)

	err := waitHost(t, errCh)
	var cancelErr *uerrors.CancellationError
	require.True(t, errors.As(err, &cancelErr), "got %v", err)
	assert.False(t, cancelErr.Escalated)
	assert.Equal(t, 130, uerrors.ExitCode(err))
	assert.Equal(t, 0, src.Installed())
}

func TestHostRunner_SecondSignalKills(t *testing.T) {
	src := signalstest.NewSource()
	h := newTestHostRunner(src)

	errCh := startHost(t, t.Context(), h, src, HostCommand{
		Argv: []string{"sh", "-c", `trap '' INT; while :; do sleep 0.05; done`},
	})
	src.Send(os.Interrupt)
	src.Send(os.Interrupt)

	err := waitHost(t, errCh)
	var cancelErr *uerrors.CancellationError
	require.True(t, errors.As(err, &cancelErr), "got %v", err)
	assert.True(t, cancelErr.Escalated)
}

func TestHostRunner_ContextCancel(t *testing.T) {
	src := signalstest.NewSource()
	ctx, cancel := context.WithCancel(t.Context())

	errCh := startHost(t, ctx, newTestHostRunner(src), src, HostCommand{
		Argv: []string{"sh", "-c", `while :; do sleep 0.05; done`},
	})
	cancel()

	assert.ErrorIs(t, waitHost(t, errCh), context.Canceled)
}
