package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
	"github.com/daybook-app/daybook/internal/metrics"
)

// RetryService wraps a remote operation with bounded exponential backoff.
// An operation gets maxRetries+1 total attempts; the delay before attempt n
// (1-indexed, n > 1) is 2^(n-2) * baseDelay. Every error retries the same
// way; there is no error classification.
type RetryService struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error // overridable in tests
}

// NewRetryService creates a new backoff executor. A negative maxRetries is
// normalized to the default of 3.
func NewRetryService(maxRetries int, baseDelay time.Duration, logger *zap.Logger, m *metrics.Metrics) *RetryService {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 1 * time.Second
	}
	return &RetryService{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
		metrics:    m,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Run executes fn, retrying on any error until maxRetries+1 attempts are spent.
// On exhaustion the last error is wrapped in a RetryExhausted error carrying
// the attempt count.
func (s *RetryService) Run(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	attempts := s.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := s.baseDelay << (attempt - 2)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		s.metrics.RetryAttemptsTotal.Inc()
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt < attempts {
			s.logger.Warn("Remote operation failed, retrying",
				zap.String("key", key),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		}
	}

	s.metrics.RetryExhaustionsTotal.Inc()
	s.logger.Warn("Remote operation exhausted retries",
		zap.String("key", key),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))

	return nil, syncerrors.RetryExhausted(key, attempts, lastErr)
}
