package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shitsumon/internal/config"
)

func upperJob(queries []string, calls *atomic.Int32, done chan JobOutcome[string]) Job[string] {
	keys := make([]string, len(queries))
	for i, q := range queries {
		keys[i] = "k:" + q
	}
	return Job[string]{
		ID:   "job",
		Keys: keys,
		Process: func(_ context.Context, i int) (string, error) {
			calls.Add(1)
			if queries[i] == "fail" {
				return "", errors.New("bad item")
			}
			if queries[i] == "panic" {
				panic("boom")
			}
			return strings.ToUpper(queries[i]), nil
		},
		Done: func(o JobOutcome[string]) { done <- o },
	}
}

func TestQueue_MergesCachedAndComputed(t *testing.T) {
	cache := NewAdaptiveCache[string](config.CacheConfig{}, nil)
	cache.Set("k:b", "CACHED")
	q := NewBatchQueue[string](config.BatchConfig{Workers: 2, QueueCapacity: 4}, cache, nil)
	q.Start(context.Background())
	defer q.Close()

	var calls atomic.Int32
	done := make(chan JobOutcome[string], 1)
	require.NoError(t, q.Submit(upperJob([]string{"a", "b", "fail", "panic", "c"}, &calls, done)))

	var out JobOutcome[string]
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never completed")
	}
	assert.Equal(t, map[int]string{0: "A", 1: "CACHED", 4: "C"}, out.Results)
	require.Len(t, out.Errors, 2)
	assert.EqualError(t, out.Errors[2], "bad item")
	assert.Contains(t, out.Errors[3].Error(), "panicked")
	assert.Equal(t, 1, out.CacheHits)
	assert.Equal(t, int32(4), calls.Load(), "cached item not processed")

	v, ok := cache.Get("k:a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	_, ok = cache.Get("k:fail")
	assert.False(t, ok, "failures are not cached")
}

func TestQueue_Full(t *testing.T) {
	q := NewBatchQueue[string](config.BatchConfig{Workers: 1, QueueCapacity: 1}, nil, nil)
	// Not started, so nothing drains
	require.NoError(t, q.Submit(Job[string]{ID: "1"}))
	assert.ErrorIs(t, q.Submit(Job[string]{ID: "2"}), ErrQueueFull)
	assert.Equal(t, 1, q.Depth())
	assert.Equal(t, uint64(1), q.Stats().Rejected)
}

func TestQueue_ClosedRejects(t *testing.T) {
	q := NewBatchQueue[string](config.BatchConfig{}, nil, nil)
	q.Start(context.Background())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Submit(Job[string]{}), ErrQueueClosed)
	require.NoError(t, q.Close())
}

func TestQueue_ManyJobsParallel(t *testing.T) {
	cache := NewAdaptiveCache[string](config.CacheConfig{}, nil)
	q := NewBatchQueue[string](config.BatchConfig{Workers: 4, QueueCapacity: 20}, cache, nil)
	q.Start(context.Background())
	defer q.Close()

	var calls atomic.Int32
	done := make(chan JobOutcome[string], 20)
	for j := 0; j < 20; j++ {
		queries := make([]string, 50)
		for i := range queries {
			queries[i] = fmt.Sprintf("q%d-%d", j, i)
		}
		require.NoError(t, q.Submit(upperJob(queries, &calls, done)))
	}
	total := 0
	for j := 0; j < 20; j++ {
		select {
		case out := <-done:
			total += len(out.Results)
		case <-time.After(5 * time.Second):
			t.Fatal("jobs never completed")
		}
	}
	assert.Equal(t, 1000, total)
	assert.Equal(t, uint64(20), q.Stats().Completed)
}

func TestQueue_CancelledJobContext(t *testing.T) {
	q := NewBatchQueue[string](config.BatchConfig{Workers: 1}, nil, nil)
	q.Start(context.Background())
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	done := make(chan JobOutcome[string], 1)
	job := upperJob([]string{"a", "b"}, &calls, done)
	job.Ctx = ctx
	require.NoError(t, q.Submit(job))
	out := <-done
	assert.Len(t, out.Errors, 2)
	assert.Zero(t, calls.Load())
}

func TestQueue_CacheableFiltersStoredValues(t *testing.T) {
	cache := NewAdaptiveCache[string](config.CacheConfig{}, nil)
	q := NewBatchQueue[string](config.BatchConfig{Workers: 1}, cache, nil)
	q.Start(context.Background())
	defer q.Close()

	var calls atomic.Int32
	done := make(chan JobOutcome[string], 1)
	job := upperJob([]string{"keep", "skip"}, &calls, done)
	job.Cacheable = func(v string) bool { return v != "SKIP" }
	require.NoError(t, q.Submit(job))
	out := <-done

	assert.Equal(t, map[int]string{0: "KEEP", 1: "SKIP"}, out.Results)
	_, ok := cache.Get("k:keep")
	assert.True(t, ok)
	_, ok = cache.Get("k:skip")
	assert.False(t, ok, "rejected value should not be cached")
}

func TestQueue_CloseFailsJobsOfUnstartedQueue(t *testing.T) {
	q := NewBatchQueue[string](config.BatchConfig{QueueCapacity: 2}, nil, nil)
	var calls atomic.Int32
	done := make(chan JobOutcome[string], 1)
	require.NoError(t, q.Submit(upperJob([]string{"a", "b"}, &calls, done)))

	require.NoError(t, q.Close())
	out := <-done
	require.Len(t, out.Errors, 2)
	assert.ErrorIs(t, out.Errors[0], ErrQueueClosed)
	assert.Empty(t, out.Results)
	assert.Zero(t, calls.Load())
}
