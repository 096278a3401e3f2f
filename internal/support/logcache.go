package support

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Handle is an opaque reference to a prepared log bundle, typically its path.
type Handle string

// Collector prepares a log bundle with every redaction token scrubbed out.
type Collector interface {
	CollectLog(ctx context.Context, redact []string) (Handle, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, redact []string) (Handle, error)

func (f CollectorFunc) CollectLog(ctx context.Context, redact []string) (Handle, error) {
	return f(ctx, redact)
}

// CollectionResult labels how GetOrCollect was satisfied.
type CollectionResult string

const (
	CollectionCollected CollectionResult = "collected"
	CollectionCached    CollectionResult = "cached"
	CollectionError     CollectionResult = "error"
)

const collectKey = "collect"

// LogCache memoizes the first successful collection for the lifetime of a
// workflow. A failed collection leaves the cache empty so the next call tries
// again. Concurrent callers share one in-flight collection.
type LogCache struct {
	collector Collector
	recorder  Recorder
	flight    singleflight.Group

	mu     sync.RWMutex
	handle Handle
	filled bool

	collections atomic.Int64

	// timeout bounds one shared collection. Zero means unbounded.
	timeout time.Duration
}

// NewLogCache returns an empty cache in front of c. rec may be nil.
func NewLogCache(c Collector, rec Recorder) *LogCache {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &LogCache{collector: c, recorder: rec}
}

// Cached returns the memoized handle, if any.
func (c *LogCache) Cached() (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, c.filled
}

// Collections returns how many times the collector has been invoked.
func (c *LogCache) Collections() int64 {
	return c.collections.Load()
}

// GetOrCollect returns the cached handle or runs the collector once with the
// given redaction tokens and caches its result.
//
// The shared collection runs detached from every caller's context, bounded by
// the cache timeout. ctx only limits how long this caller waits: a caller that
// gives up neither cancels the collection nor affects the callers sharing it.
func (c *LogCache) GetOrCollect(ctx context.Context, redact []string) (Handle, error) {
	if h, ok := c.Cached(); ok {
		c.recorder.ObserveCollection(CollectionCached)
		return h, nil
	}

	ch := c.flight.DoChan(collectKey, func() (any, error) {
		// A caller that lost the race to a finished flight lands here.
		if h, ok := c.Cached(); ok {
			return h, nil
		}

		fctx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.timeout)
			defer cancel()
		}

		c.collections.Add(1)
		h, err := c.collector.CollectLog(fctx, redact)
		if err != nil {
			c.recorder.ObserveCollection(CollectionError)
			return Handle(""), err
		}

		c.mu.Lock()
		if !c.filled {
			c.handle = h
			c.filled = true
		}
		h = c.handle
		c.mu.Unlock()

		c.recorder.ObserveCollection(CollectionCollected)
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Handle), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
