package errors

import (
	stderrors "errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"nil":                  {err: nil, want: 0},
		"generic":              {err: stderrors.New("boom"), want: 1},
		"profiler exit":        {err: &ProfilerExitError{ExitCode: 3}, want: 1},
		"create failure":       {err: &ContainerCreateError{Image: "img", Err: stderrors.New("no daemon")}, want: 1},
		"environment":          {err: &EnvironmentError{Platform: "python", Mode: "host"}, want: 1},
		"cancellation":         {err: &CancellationError{Signal: os.Interrupt}, want: 130},
		"wrapped cancellation": {err: fmt.Errorf("record: %w", &CancellationError{Signal: syscall.SIGTERM, Escalated: true}), want: 130},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestProfilerExitError_IncludesCapturedOutput(t *testing.T) {
	err := &ProfilerExitError{
		Command:  "py-spy record",
		ExitCode: 2,
		Stdout:   "partial output\n",
		Stderr:   "Error: Permission denied\n",
	}

	msg := err.Error()
	assert.Contains(t, msg, "exited with code 2")
	assert.Contains(t, msg, "py-spy record")
	assert.Contains(t, msg, "partial output")
	assert.Contains(t, msg, "Error: Permission denied")
}

func TestContainerCreateError_Unwrap(t *testing.T) {
	cause := stderrors.New("Cannot connect to the Docker daemon")
	err := &ContainerCreateError{Image: "ghcr.io/indragiek/uniprof-python:latest", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "uniprof-python")
}

func TestCancellationError_Message(t *testing.T) {
	assert.Contains(t, (&CancellationError{Signal: os.Interrupt}).Error(), "cancelled")
	assert.Contains(t, (&CancellationError{Signal: os.Interrupt, Escalated: true}).Error(), "forcibly")
	assert.Contains(t, (&CancellationError{}).Error(), "interrupt")
}

func TestEnvironmentError_Message(t *testing.T) {
	err := &EnvironmentError{
		Platform: "ruby",
		Mode:     "host",
		Errors:   []string{"rbspy not found on PATH"},
	}

	assert.Equal(t, "ruby environment is not ready for host mode: rbspy not found on PATH", err.Error())
}

func TestPathMappingWarning_String(t *testing.T) {
	w := PathMappingWarning{Path: "/etc/app.conf", Token: "--config=/etc/app.conf", Source: "flag-value"}
	assert.Contains(t, w.String(), `"--config=/etc/app.conf"`)

	bare := PathMappingWarning{Path: "/data/in.csv", Token: "/data/in.csv"}
	assert.NotContains(t, bare.String(), "(in")
}
