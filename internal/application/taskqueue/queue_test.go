package taskqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

func testLogger() *logger.Logger {
	return logger.New(config.LoggingConfig{Level: "error", Format: "text"})
}

func TestEnqueue_ShouldRunTask_WhenWorkerIsIdle(t *testing.T) {
	q := New(context.Background(), 4, testLogger())
	defer q.Stop()

	done := make(chan struct{})
	err := q.Enqueue(context.Background(), func(ctx context.Context) { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestTryEnqueue_ShouldReturnFalse_WhenQueueIsFull(t *testing.T) {
	q := New(context.Background(), 1, testLogger())
	defer q.Stop()

	block := make(chan struct{})
	require.True(t, q.TryEnqueue(func(ctx context.Context) { <-block }))

	ok := q.TryEnqueue(func(ctx context.Context) {})
	for i := 0; i < 10 && ok; i++ {
		ok = q.TryEnqueue(func(ctx context.Context) {})
	}
	assert.False(t, ok)
	close(block)
}

func TestStop_ShouldStopAcceptingWork_WhenCalled(t *testing.T) {
	q := New(context.Background(), 4, testLogger())

	var ran int32
	q.Stop()
	_ = q.TryEnqueue(func(ctx context.Context) { atomic.AddInt32(&ran, 1) })

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, ran)
}
