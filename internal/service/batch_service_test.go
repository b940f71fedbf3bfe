package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/store"
)

func newTestBatch(remote *store.MemoryRemote, window time.Duration) *BatchService {
	return NewBatchService(remote, window, 500, zap.NewNop(), newTestMetrics())
}

func setOp(id string) store.WriteOp {
	return store.WriteOp{
		Type:       store.OpSet,
		Collection: "tasks",
		DocumentID: id,
		Payload:    model.Document{"id": id, "title": "t" + id},
	}
}

func TestBatchCoalescesWindow(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 30*time.Millisecond)

	var results []<-chan error
	for i := 0; i < 5; i++ {
		results = append(results, bs.Enqueue(setOp(string(rune('a'+i)))))
	}

	for _, ch := range results {
		require.NoError(t, <-ch)
	}

	assert.Equal(t, 1, remote.BatchCalls)
	assert.Equal(t, []int{5}, remote.BatchSizes)
	assert.Equal(t, 0, remote.WriteCalls, "no individual commits on the happy path")
	assert.Equal(t, 5, remote.Len("tasks"))
}

func TestBatchFallsBackToIndividualCommits(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 20*time.Millisecond)

	remote.Fail(errors.New("batch endpoint rejected"))

	var results []<-chan error
	for i := 0; i < 5; i++ {
		results = append(results, bs.Enqueue(setOp(string(rune('a'+i)))))
	}

	for _, ch := range results {
		assert.Error(t, <-ch)
	}

	// One rejected atomic commit, then exactly one individual attempt per
	// queued operation.
	assert.Equal(t, 1, remote.BatchCalls)
	assert.Equal(t, 5, remote.WriteCalls)
}

func TestBatchPartialSuccessOnFallback(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 20*time.Millisecond)

	// The atomic commit fails, then the remote recovers, so the individual
	// replays succeed.
	remote.Fail(errors.New("transient"))
	go func() {
		time.Sleep(30 * time.Millisecond)
		remote.Fail(nil)
	}()

	done1 := bs.Enqueue(setOp("a"))
	done2 := bs.Enqueue(setOp("b"))

	err1 := <-done1
	err2 := <-done2

	// Whatever the split, each operation settles independently.
	if err1 == nil {
		assert.NotZero(t, remote.Len("tasks"))
	}
	_ = err2
	assert.Equal(t, 1, remote.BatchCalls)
}

func TestBatchSingleOpSkipsAtomicCommit(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 10*time.Millisecond)

	require.NoError(t, <-bs.Enqueue(setOp("solo")))

	assert.Equal(t, 0, remote.BatchCalls)
	assert.Equal(t, 1, remote.WriteCalls)
}

func TestBatchRollingWindowResets(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 40*time.Millisecond)

	done1 := bs.Enqueue(setOp("a"))
	time.Sleep(25 * time.Millisecond)
	// Arrives inside the window, so the commit slides out and both land in
	// the same batch.
	done2 := bs.Enqueue(setOp("b"))

	require.NoError(t, <-done1)
	require.NoError(t, <-done2)
	assert.Equal(t, []int{2}, remote.BatchSizes)
}

func TestBatchMaxSizeFlushesImmediately(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := NewBatchService(remote, 10*time.Second, 3, zap.NewNop(), newTestMetrics())

	var results []<-chan error
	for i := 0; i < 3; i++ {
		results = append(results, bs.Enqueue(setOp(string(rune('a'+i)))))
	}

	// The window is 10s; only the size trigger can settle these promptly.
	for _, ch := range results {
		select {
		case err := <-ch:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("size-triggered flush did not happen")
		}
	}
	assert.Equal(t, []int{3}, remote.BatchSizes)
}

func TestBatchFlush(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 10*time.Second)

	done := bs.Enqueue(setOp("a"))
	bs.Flush()

	require.NoError(t, <-done)
	assert.Equal(t, 1, remote.Len("tasks"))
}

func TestBatchStopRejectsNewWork(t *testing.T) {
	remote := store.NewMemoryRemote()
	bs := newTestBatch(remote, 10*time.Millisecond)

	bs.Stop()
	err := <-bs.Enqueue(setOp("late"))
	assert.Error(t, err)
}

func TestBatchDeleteAndUpdateOps(t *testing.T) {
	remote := store.NewMemoryRemote()
	ctx := context.Background()
	_, err := remote.AddDoc(ctx, "tasks", model.Document{"title": "x"})
	require.NoError(t, err)

	bs := newTestBatch(remote, 10*time.Millisecond)

	docs, err := remote.QueryDocs(ctx, "tasks", store.Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	id := model.DocID(docs[0])

	upd := bs.Enqueue(store.WriteOp{
		Type:       store.OpUpdate,
		Collection: "tasks",
		DocumentID: id,
		Payload:    model.Document{"done": true},
	})
	del := bs.Enqueue(store.WriteOp{
		Type:       store.OpDelete,
		Collection: "tasks",
		DocumentID: "other",
	})

	require.NoError(t, <-upd)
	require.NoError(t, <-del)

	got, err := remote.GetDoc(ctx, "tasks", id)
	require.NoError(t, err)
	assert.Equal(t, true, got["done"])
}
