package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	rs := newTestRetry(3, &delays)

	calls := 0
	value, err := rs.Run(context.Background(), "tasks_42", func(ctx context.Context) (interface{}, error) {
		calls++
		return "doc", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "doc", value)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestRetryBackoffSchedule(t *testing.T) {
	var delays []time.Duration
	rs := newTestRetry(3, &delays)

	calls := 0
	_, err := rs.Run(context.Background(), "tasks_42", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("down")
	})

	require.Error(t, err)
	// maxRetries=3 means 4 total attempts with doubling delays between them.
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, delays)

	assert.Equal(t, syncerrors.ErrCodeRetryExhausted, syncerrors.GetCode(err))
	var se *syncerrors.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, se.Details["attempts"])
}

func TestRetryRecoversMidSequence(t *testing.T) {
	var delays []time.Duration
	rs := newTestRetry(3, &delays)

	calls := 0
	value, err := rs.Run(context.Background(), "tasks_42", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("down")
		}
		return "doc", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "doc", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestRetryAllErrorsRetryUniformly(t *testing.T) {
	// A permanent error retries exactly like a transient one; there is no
	// error classification.
	var delays []time.Duration
	rs := newTestRetry(2, &delays)

	calls := 0
	_, err := rs.Run(context.Background(), "tasks_404", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, syncerrors.NotFound("tasks", "404")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrySurfacesLastError(t *testing.T) {
	rs := newTestRetry(1, nil)

	first := errors.New("first failure")
	last := errors.New("last failure")
	calls := 0
	_, err := rs.Run(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, first
		}
		return nil, last
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.NotErrorIs(t, err, first)
}

func TestRetryZeroRetriesSingleAttempt(t *testing.T) {
	rs := newTestRetry(0, nil)

	calls := 0
	_, err := rs.Run(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryNegativeMaxRetriesNormalized(t *testing.T) {
	rs := NewRetryService(-5, time.Second, zap.NewNop(), newTestMetrics())
	assert.Equal(t, 3, rs.maxRetries)
}
