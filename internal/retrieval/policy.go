// internal/retrieval/policy.go
package retrieval

import (
	"context"
	"time"

	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/metrics"
)

// RetryPolicy bounds how often a failing sub-query is retried. The
// policy is a value, so two engines can carry different budgets without
// touching shared state.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Retryable   func(error) bool
}

func DefaultRetryPolicy(maxAttempts int, backoffBase time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BackoffBase: backoffBase,
		Retryable:   stderrors.IsTransient,
	}
}

// Do runs op until it succeeds, exhausts the attempt budget, or hits a
// non-retryable error. Backoff doubles per attempt and respects ctx.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.SubQueryRetries.Inc()
			backoff := p.BackoffBase * time.Duration(1<<(attempt-2))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return err
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}
