package binance

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"trading-bot-backend/internal/config"
)

type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

func RetryPolicyFromConfig(cfg config.RetryConf) RetryPolicy {
	return RetryPolicy{
		MaxTries:        cfg.MaxTries,
		InitialInterval: time.Duration(cfg.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxIntervalMs) * time.Millisecond,
	}
}

// RetryRead runs an idempotent read until it succeeds, fails with a
// non-retryable error, or runs out of tries. Never use it for order writes.
func RetryRead[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Reset()

	var (
		out T
		err error
	)
	for attempt := uint(1); ; attempt++ {
		out, err = op(ctx)
		if err == nil || !retryable(err) || attempt >= tries || ctx.Err() != nil {
			return out, err
		}
		sleep := b.NextBackOff()
		if sleep == backoff.Stop {
			return out, err
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, err
		case <-timer.C:
		}
	}
}

func retryable(err error) bool {
	if isTransport(err) {
		return true
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}

func isTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
