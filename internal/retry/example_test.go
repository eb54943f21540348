package retry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/indragiek/uniprof/internal/retry"
)

var errNotFlushed = errors.New("profile not written yet")

// Example polls for a profiler artifact with fixed spacing.
func Example() {
	cfg := retry.Config{
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		Fixed:          true,
	}

	checks := 0
	err := retry.Do(context.Background(), cfg, func() error {
		checks++
		if checks < 3 {
			return errNotFlushed
		}
		return nil
	}, func(err error) bool {
		return errors.Is(err, errNotFlushed)
	})

	if err != nil {
		fmt.Printf("Failed: %v\n", err)
	} else {
		fmt.Printf("Artifact ready after %d checks\n", checks)
	}
	// Output: Artifact ready after 3 checks
}
