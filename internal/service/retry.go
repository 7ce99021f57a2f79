package service

import (
	"context"
	"time"

	autherrors "github.com/dealdesk/sessioncore/internal/errors"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 200 * time.Millisecond
)

// RetryPolicy bounds re-attempts for transient network timeouts. Terminal
// errors (rejected credentials, invalid refresh tokens) are never retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) sanitized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetryAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	return p
}

// retryNetwork runs fn, retrying only NetworkTimeout errors with exponential
// backoff. The context cancels the wait between attempts.
func retryNetwork[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil || !autherrors.IsNetworkTimeout(err) {
			return result, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, autherrors.NetworkTimeout(ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}

	return result, err
}
