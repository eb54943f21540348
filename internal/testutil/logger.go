// Package testutil provides helpers shared by uniprof tests.
package testutil

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a logger that discards output. Set UNIPROF_TEST_LOG
// to route it to t.Log instead.
func NewTestLogger(t testing.TB) zerolog.Logger {
	t.Helper()
	if testing.Verbose() && os.Getenv("UNIPROF_TEST_LOG") != "" {
		return NewTestLoggerWithOutput(t)
	}
	return zerolog.New(io.Discard)
}

// NewTestLoggerWithOutput creates a debug-level test logger that logs to t.Log.
func NewTestLoggerWithOutput(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: &testLogWriter{t: t}, NoColor: true}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}

// testLogWriter wraps testing.TB to implement io.Writer.
type testLogWriter struct {
	t testing.TB
}

func (w *testLogWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
