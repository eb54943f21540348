package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context cancelled after timeout or when the test
// ends, whichever comes first.
func NewTestContext(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), timeout)
	t.Cleanup(cancel)
	return ctx
}
