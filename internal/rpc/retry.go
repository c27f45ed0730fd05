package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
)

// jitterFactor spreads each wait by +-25%.
const jitterFactor = 0.25

// newBackOff turns cfg into a jittered exponential policy allowing at most cfg.MaxAttempts calls.
func newBackOff(ctx context.Context, cfg *config.RetryConfig) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialBackoff.Duration
	exp.MaxInterval = cfg.MaxBackoff.Duration
	exp.Multiplier = cfg.BackoffMultiplier
	exp.RandomizationFactor = jitterFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := max(cfg.MaxAttempts-1, 0)

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable error or runs out of
// attempts. A nil cfg runs fn once.
func retryWithBackoff(ctx context.Context, cfg *config.RetryConfig, operation string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	var (
		attempts  int
		permanent bool
		start     = time.Now()
	)

	err := backoff.RetryNotify(func() error {
		attempts++

		err := fn()
		if err == nil {
			return nil
		}
		if !retryableError(err) {
			permanent = true
			return backoff.Permanent(
				fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempts, cfg.MaxAttempts, err))
		}

		return err
	}, newBackOff(ctx, cfg), func(error, time.Duration) {
		RPCRetryInc(operation)
	})

	switch {
	case err == nil:
		return nil
	case permanent:
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("context cancelled after %d attempts: %w", attempts, err)
	default:
		return fmt.Errorf("all %d attempts failed after %v (last error: %w)", attempts, time.Since(start), err)
	}
}
