package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
)

func TestSyncErrorWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := syncerrors.RemoteUnavailable("remote down", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "remote down")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, syncerrors.ErrCodeRemoteUnavailable, syncerrors.GetCode(err))
}

func TestGetCodeThroughWrapping(t *testing.T) {
	inner := syncerrors.RetryExhausted("tasks_42", 4, stderrors.New("timeout"))
	wrapped := fmt.Errorf("read path: %w", inner)

	assert.Equal(t, syncerrors.ErrCodeRetryExhausted, syncerrors.GetCode(wrapped))
	assert.True(t, syncerrors.IsSyncError(wrapped))
}

func TestGetCodePlainError(t *testing.T) {
	assert.Equal(t, syncerrors.ErrCodeInternal, syncerrors.GetCode(stderrors.New("boom")))
	assert.False(t, syncerrors.IsSyncError(stderrors.New("boom")))
}

func TestRetryExhaustedDetails(t *testing.T) {
	err := syncerrors.RetryExhausted("tasks_42", 4, nil)
	require.Equal(t, 4, err.Details["attempts"])
	require.Equal(t, "tasks_42", err.Details["key"])
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, syncerrors.IsNotFound(syncerrors.NotFound("tasks", "42")))
	assert.False(t, syncerrors.IsNotFound(syncerrors.RemoteUnavailable("down", nil)))
}
