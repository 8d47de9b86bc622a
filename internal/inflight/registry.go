// Package inflight deduplicates concurrent work per key: the first caller
// starts it, later callers join and receive the same outcome.
package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Registry runs at most one function per key at a time.
type Registry[T any] struct {
	group   singleflight.Group
	mu      sync.Mutex
	started map[string]*call
	now     func() time.Time
}

type call struct {
	at time.Time
}

func New[T any]() *Registry[T] {
	return &Registry[T]{
		started: make(map[string]*call),
		now:     time.Now,
	}
}

// Do joins the running call for key or starts fn. shared reports whether the
// outcome was delivered to more than one caller. A caller whose ctx ends
// stops waiting but the call keeps running for the others; fn must carry its
// own deadline.
func (r *Registry[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		r.mu.Lock()
		c := &call{at: r.now()}
		r.started[key] = c
		r.mu.Unlock()

		// The entry must be gone before any waiter sees the result. A swept
		// call must not remove the entry of its replacement.
		defer func() {
			r.mu.Lock()
			if r.started[key] == c {
				delete(r.started, key)
			}
			r.mu.Unlock()
		}()

		return fn()
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, res.Shared, fmt.Errorf("inflight: unexpected result type %T", res.Val)
		}
		return v, res.Shared, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Len returns the number of calls currently running.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

// Running reports whether a call for key is in progress.
func (r *Registry[T]) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.started[key]
	return ok
}

// Sweep forgets calls that have been running longer than maxAge so new
// callers start afresh instead of joining them. The old call still
// delivers to the callers already waiting on it.
func (r *Registry[T]) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for key, c := range r.started {
		if c.at.Before(cutoff) {
			r.group.Forget(key)
			delete(r.started, key)
			removed++
		}
	}
	return removed
}
