// Package lazy provides process-wide values built on first use.
package lazy

import (
	"context"
	"sync"
)

// Value holds a T built by init on first Get. Concurrent first calls wait
// for a single init run. A failed init is not cached: the next Get retries,
// so a transient outage at startup does not poison the process.
type Value[T any] struct {
	init func(context.Context) (T, error)

	mu    sync.Mutex
	done  bool
	value T
}

// New creates a Value built by init.
func New[T any](init func(context.Context) (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

// Get returns the value, building it if this is the first successful call.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.done {
		return v.value, nil
	}

	value, err := v.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	v.value = value
	v.done = true
	return value, nil
}

// Peek returns the value and true if it has been built, without building it.
func (v *Value[T]) Peek() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.done
}
