package support

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCache_CollectsOnce(t *testing.T) {
	col := collectorReturning("h1")
	cache := NewLogCache(col, nil)
	ctx := context.Background()

	first, err := cache.GetOrCollect(ctx, []string{"abc123"})
	require.NoError(t, err)
	second, err := cache.GetOrCollect(ctx, []string{"abc123"})
	require.NoError(t, err)

	assert.Equal(t, Handle("h1"), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, col.Calls())
	assert.Equal(t, int64(1), cache.Collections())
}

func TestLogCache_PassesTokensThrough(t *testing.T) {
	col := collectorReturning("h1")
	cache := NewLogCache(col, nil)

	_, err := cache.GetOrCollect(context.Background(), []string{"abc123"})
	require.NoError(t, err)

	require.Len(t, col.redact, 1)
	assert.Equal(t, []string{"abc123"}, col.redact[0])
}

func TestLogCache_FailureLeavesCacheEmpty(t *testing.T) {
	col := collectorReturning("h2", errDisk)
	cache := NewLogCache(col, nil)
	ctx := context.Background()

	_, err := cache.GetOrCollect(ctx, nil)
	require.ErrorIs(t, err, errDisk)

	_, ok := cache.Cached()
	assert.False(t, ok, "failed collection must not populate the cache")

	h, err := cache.GetOrCollect(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Handle("h2"), h)
	assert.Equal(t, 2, col.Calls())
}

func TestLogCache_HandleIsImmutable(t *testing.T) {
	col := &fakeCollector{fn: func(call int, _ []string) (Handle, error) {
		return Handle(fmt.Sprintf("h%d", call)), nil
	}}
	cache := NewLogCache(col, nil)

	for i := 0; i < 5; i++ {
		h, err := cache.GetOrCollect(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, Handle("h1"), h)
	}
}

func TestLogCache_ConcurrentCallersShareOneCollection(t *testing.T) {
	release := make(chan struct{})
	col := &fakeCollector{fn: func(int, []string) (Handle, error) {
		<-release
		return "shared", nil
	}}
	cache := NewLogCache(col, nil)

	const callers = 16
	var wg sync.WaitGroup
	handles := make([]Handle, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = cache.GetOrCollect(context.Background(), nil)
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, Handle("shared"), handles[i])
	}
	assert.Equal(t, 1, col.Calls())
}

type countingRecorder struct {
	mu          sync.Mutex
	collections map[CollectionResult]int
	attempts    []recordedAttempt
}

type recordedAttempt struct {
	Kind    AttemptKind
	Outcome State
	Stage   Stage
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{collections: make(map[CollectionResult]int)}
}

func (r *countingRecorder) ObserveAttempt(kind AttemptKind, outcome State, stage Stage, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, recordedAttempt{Kind: kind, Outcome: outcome, Stage: stage})
}

func (r *countingRecorder) ObserveCollection(result CollectionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[result]++
}

func (r *countingRecorder) Attempts() []recordedAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedAttempt(nil), r.attempts...)
}

func (r *countingRecorder) Collections(result CollectionResult) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collections[result]
}

func TestLogCache_WaiterGivingUpKeepsCollectionRunning(t *testing.T) {
	col := collectorReturning("h1")
	col.gate = make(chan struct{})
	col.started = make(chan struct{})
	cache := NewLogCache(col, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCollect(ctx, nil)
		errc <- err
	}()
	<-col.started
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(col.gate)
	h, err := cache.GetOrCollect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Handle("h1"), h)
	assert.Equal(t, 1, col.Calls())
}

func TestLogCache_RecordsResults(t *testing.T) {
	rec := newCountingRecorder()
	cache := NewLogCache(collectorReturning("h1", errDisk), rec)
	ctx := context.Background()

	_, _ = cache.GetOrCollect(ctx, nil)
	_, _ = cache.GetOrCollect(ctx, nil)
	_, _ = cache.GetOrCollect(ctx, nil)

	assert.Equal(t, 1, rec.Collections(CollectionError))
	assert.Equal(t, 1, rec.Collections(CollectionCollected))
	assert.Equal(t, 1, rec.Collections(CollectionCached))
}
