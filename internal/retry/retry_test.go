// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

func init() {
	// No randomness in tests.
	jitterFn = func(time.Duration) time.Duration { return 0 }
}

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_ImmediateSuccess(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableCalledOnce(t *testing.T) {
	for _, kind := range []error{types.ErrFatalConfig, types.ErrRequest, types.ErrValidation, errors.New("plain")} {
		t.Run(kind.Error(), func(t *testing.T) {
			calls := 0
			_, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (int, error) {
				calls++
				return 0, fmt.Errorf("call: %w", kind)
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, kind)
			assert.Equal(t, 1, calls)

			var exhausted *ExhaustedError
			assert.False(t, errors.As(err, &exhausted))
		})
	}
}

func TestDo_SucceedsAfterKFailures(t *testing.T) {
	for k := 0; k < 5; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			calls := 0
			v, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (int, error) {
				calls++
				if calls <= k {
					return 0, fmt.Errorf("attempt %d: %w", calls, types.ErrTransient)
				}
				return 42, nil
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, 42, v)
			assert.Equal(t, k+1, calls)
		})
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "llm cafe_search", func(context.Context) (int, error) {
		calls++
		return 0, types.Malformed("not json")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "llm cafe_search", exhausted.Op)
	assert.ErrorIs(t, err, types.ErrMalformedResponse)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, p, "op", func(context.Context) (int, error) {
		return 0, types.ErrTransient
	}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(4), "op", func(context.Context) (int, error) {
		calls++
		return 0, types.ErrTransient
	}, func(error) bool { return false })
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 20*time.Millisecond, p.Delay(1))
	assert.Equal(t, 40*time.Millisecond, p.Delay(2))
	assert.Equal(t, 50*time.Millisecond, p.Delay(3), "capped at MaxDelay")
	assert.Equal(t, 50*time.Millisecond, p.Delay(30))
}

func TestPolicyDelay_JitterCapped(t *testing.T) {
	old := jitterFn
	jitterFn = func(n time.Duration) time.Duration { return n - 1 }
	defer func() { jitterFn = old }()

	p := Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond, Jitter: 10 * time.Millisecond}
	assert.Equal(t, 15*time.Millisecond, p.Delay(0))
}

func TestFromConfigDefaults(t *testing.T) {
	p := FromConfig(types.RetryConfig{})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)
}

func TestDefaultClassifier(t *testing.T) {
	assert.True(t, DefaultClassifier(fmt.Errorf("x: %w", types.ErrTransient)))
	assert.True(t, DefaultClassifier(types.Malformed("bad")))
	assert.False(t, DefaultClassifier(types.ErrFatalConfig))
	assert.False(t, DefaultClassifier(context.Canceled))
	assert.False(t, DefaultClassifier(&types.ValidationError{Problems: []string{"x"}}))
}
