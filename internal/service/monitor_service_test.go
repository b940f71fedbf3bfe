package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/store"
)

func TestMonitorFiresOnReconnect(t *testing.T) {
	remote := store.NewMemoryRemote()
	remote.SetOnline(false)

	ms := NewMonitorService(remote, 10*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	var fired atomic.Int64
	ms.OnOnline(func(ctx context.Context) { fired.Add(1) })

	ms.Start()
	defer ms.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, ms.Online())
	assert.Equal(t, int64(0), fired.Load())

	remote.SetOnline(true)

	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(1), fired.Load())
	assert.True(t, ms.Online())
}

func TestMonitorNoCallbackWhenStartingOnline(t *testing.T) {
	remote := store.NewMemoryRemote()

	ms := NewMonitorService(remote, 10*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	var fired atomic.Int64
	ms.OnOnline(func(ctx context.Context) { fired.Add(1) })

	ms.Start()
	defer ms.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), fired.Load(), "staying online is not a transition")
	assert.True(t, ms.Online())
}

func TestMonitorOnlineBeforeFirstProbe(t *testing.T) {
	remote := store.NewMemoryRemote()
	ms := NewMonitorService(remote, time.Hour, time.Second, zap.NewNop())
	assert.True(t, ms.Online(), "remote is assumed reachable until probed")
}
