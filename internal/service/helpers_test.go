package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/store"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

// newTestRetry returns a backoff executor whose sleeps complete instantly
// while still recording the requested delays.
func newTestRetry(maxRetries int, delays *[]time.Duration) *RetryService {
	rs := NewRetryService(maxRetries, 1*time.Second, zap.NewNop(), newTestMetrics())
	rs.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return rs
}

// newTestSync wires a full facade over in-memory stores with a short batch
// window and no retry sleeps.
func newTestSync(remote *store.MemoryRemote, fallback store.FallbackStore) *SyncService {
	m := newTestMetrics()
	logger := zap.NewNop()
	return NewSyncService(
		SyncConfig{OwnerID: "u1", DefaultTTL: 30 * time.Second},
		remote,
		fallback,
		NewCacheService(logger, m),
		NewFlightService(m),
		newTestRetry(1, nil),
		NewBatchService(remote, 10*time.Millisecond, 500, logger, m),
		logger,
		m,
	)
}
