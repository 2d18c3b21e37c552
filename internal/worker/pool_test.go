package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingTask(operation, key string, counter *atomic.Int64) Task {
	return Task{
		Operation: operation,
		Key:       key,
		Run: func(context.Context) error {
			counter.Add(1)
			return nil
		},
	}
}

func TestPoolRunsTasks(t *testing.T) {
	t.Parallel()

	pool := NewPool(2, 100, 0, nil)
	pool.Start()
	defer func() { _ = pool.Shutdown(time.Second) }()

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		require.True(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "", &ran)))
	}

	require.Eventually(t, func() bool { return ran.Load() == 5 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(5), pool.Stats().Processed)
}

func TestPoolDropsDuplicateUnits(t *testing.T) {
	t.Parallel()

	pool := NewPool(1, 100, time.Minute, nil)
	pool.Start()
	defer func() { _ = pool.Shutdown(time.Second) }()

	var ran atomic.Int64
	assert.True(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "s-1", &ran)))
	assert.False(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "s-1", &ran)))

	// A different key, or the same key under another operation, is its own
	// unit.
	assert.True(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "s-2", &ran)))
	assert.True(t, pool.TryEnqueue(countingTask(OpAutoResolve, "s-1", &ran)))

	// Keyless tasks never dedup.
	assert.True(t, pool.TryEnqueue(countingTask(OpEvaluateAlerts, "", &ran)))
	assert.True(t, pool.TryEnqueue(countingTask(OpEvaluateAlerts, "", &ran)))

	require.Eventually(t, func() bool { return ran.Load() == 5 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), pool.Stats().Dropped)
}

func TestPoolSurvivesPanic(t *testing.T) {
	t.Parallel()

	pool := NewPool(1, 10, 0, nil)
	pool.Start()
	defer func() { _ = pool.Shutdown(time.Second) }()

	require.True(t, pool.TryEnqueue(Task{
		Operation: OpAnalyzeSubject,
		Run:       func(context.Context) error { panic("boom") },
	}))

	var ran atomic.Int64
	require.True(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "", &ran)))

	require.Eventually(t, func() bool { return ran.Load() == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), pool.Stats().Errors)
}

func TestPoolDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	pool := NewPool(1, 1, 0, nil)
	pool.Start()
	defer func() { _ = pool.Shutdown(time.Second) }()

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, pool.TryEnqueue(Task{
		Operation: OpAnalyzeSubject,
		Run: func(context.Context) error {
			close(started)
			<-block
			return nil
		},
	}))
	<-started

	// The single worker is busy: one task fits the buffer, the next drops.
	require.True(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "", &atomic.Int64{})))
	assert.False(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "", &atomic.Int64{})))
	assert.Equal(t, uint64(1), pool.Stats().Dropped)

	close(block)
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	t.Parallel()

	pool := NewPool(1, 10, 0, nil)
	pool.Start()
	require.NoError(t, pool.Shutdown(time.Second))

	assert.False(t, pool.TryEnqueue(countingTask(OpAnalyzeSubject, "", &atomic.Int64{})))
}
