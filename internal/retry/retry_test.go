package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond}

	called := 0
	err := Do(context.Background(), cfg, func() error {
		called++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Millisecond}

	called := 0
	err := Do(context.Background(), cfg, func() error {
		called++
		if called < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(error) bool { return true })

	require.NoError(t, err)
	assert.Equal(t, 3, called)
}

func TestDo_ExhaustedRetries(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialBackoff: time.Millisecond}

	called := 0
	missing := errors.New("artifact missing")
	err := Do(context.Background(), cfg, func() error {
		called++
		return missing
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, called)
	assert.ErrorIs(t, err, missing)
	assert.Contains(t, err.Error(), "failed after 3 retries")
}

func TestDo_NonRetryableError(t *testing.T) {
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Millisecond}

	fatal := errors.New("fatal")
	called := 0
	err := Do(context.Background(), cfg, func() error {
		called++
		if called == 2 {
			return fatal
		}
		return errors.New("transient")
	}, func(err error) bool {
		return !errors.Is(err, fatal)
	})

	require.Error(t, err)
	assert.Equal(t, 2, called)
	assert.ErrorIs(t, err, fatal)
}

func TestDo_ContextCanceled(t *testing.T) {
	cfg := Config{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond, Fixed: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := 0
	err := Do(ctx, cfg, func() error {
		called++
		if called == 2 {
			cancel()
		}
		return errors.New("error")
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, called, 3)
}

func TestCalculateBackoff_Exponential(t *testing.T) {
	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, MaxRetries: 5}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
		{5, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, calculateBackoff(cfg, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCalculateBackoff_WithJitter(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxRetries: 5, Jitter: 0.5}

	// attempt 2: base 200ms, jitter 200ms*0.5*2/5 = 40ms.
	assert.Equal(t, 240*time.Millisecond, calculateBackoff(cfg, 2))
}

func TestCalculateBackoff_Fixed(t *testing.T) {
	cfg := Config{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Jitter:         0.9,
		MaxRetries:     10,
		Fixed:          true,
	}

	for attempt := 1; attempt < cfg.MaxRetries; attempt++ {
		assert.Equal(t, 100*time.Millisecond, calculateBackoff(cfg, attempt), "attempt %d", attempt)
	}
}

func TestDo_FixedSpacing(t *testing.T) {
	cfg := Config{MaxRetries: 4, InitialBackoff: 20 * time.Millisecond, Fixed: true}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error { return errors.New("never") }, nil)

	// Three waits of 20ms between four attempts.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
