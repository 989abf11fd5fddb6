package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaf-ai/raaf-go/retry"
)

func TestClassify(t *testing.T) {
	cases := map[string]retry.ErrorKind{
		"rate limit exceeded, please slow down": retry.KindRateLimit,
		"request timed out after 30s":           retry.KindTimeout,
		"maximum context length exceeded":        retry.KindContextTooLarge,
		"the model is currently overloaded":      retry.KindModelOverloaded,
		"connection reset by peer":               retry.KindNetworkError,
		"401 unauthorized: invalid api key":      retry.KindAuthentication,
		"something bizarre happened":             retry.KindUnknown,
	}
	for msg, want := range cases {
		got := retry.Classify(errors.New(msg))
		assert.Equalf(t, want, got, "message %q", msg)
	}
}

func TestRetryable_AuthAndUnknownAreNotRetryable(t *testing.T) {
	assert.False(t, retry.Retryable(retry.KindAuthentication))
	assert.False(t, retry.Retryable(retry.KindUnknown))
	assert.True(t, retry.Retryable(retry.KindRateLimit))
	assert.True(t, retry.Retryable(retry.KindNetworkError))
}

func TestPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.BaseDelay = 0
	p := retry.NewPolicy(cfg)

	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("rate limited, try again")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	snap := p.Snapshot()
	assert.EqualValues(t, 1, snap.SuccessfulRetries)
}

func TestPolicy_Do_NonRetryableFailsImmediately(t *testing.T) {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 5
	p := retry.NewPolicy(cfg)

	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_Do_ExhaustsAfterMaxAttemptsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("retryable errors exhaust after exactly max_attempts", prop.ForAll(
		func(maxAttempts int) bool {
			cfg := retry.DefaultConfig()
			cfg.MaxAttempts = maxAttempts
			cfg.BaseDelay = 0
			p := retry.NewPolicy(cfg)

			attempts := 0
			err := p.Do(context.Background(), func(ctx context.Context) error {
				attempts++
				return errors.New("service unavailable, overloaded")
			})
			var exhausted *retry.ExhaustedError
			return errors.As(err, &exhausted) && attempts == maxAttempts && exhausted.Attempts == maxAttempts
		},
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
