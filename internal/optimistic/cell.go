// Package optimistic holds local state that is updated before the remote write
// is confirmed and rolled back when it fails.
package optimistic

import (
	"context"
	"sync"
)

// Cell is a locally cached value with rollback around remote writes.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	gen   uint64 // bumped on every local write
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value, e.g. after a fresh load from the store.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.gen++
	c.mu.Unlock()
}

// Update applies mutate locally, then runs remote. If remote fails, undo is
// applied to the current value so writes made by others in the meantime are
// kept. With a nil undo the snapshot taken before mutate is restored, but only
// when nobody wrote the cell since; otherwise the newer value stays.
// mutate and undo must not alias the old value (copy slices/maps before changing them).
func (c *Cell[T]) Update(ctx context.Context, mutate, undo func(T) T, remote func(ctx context.Context) error) error {
	c.mu.Lock()
	snapshot := c.value
	c.value = mutate(snapshot)
	c.gen++
	mine := c.gen
	c.mu.Unlock()

	if err := remote(ctx); err != nil {
		c.mu.Lock()
		switch {
		case undo != nil:
			c.value = undo(c.value)
			c.gen++
		case c.gen == mine:
			c.value = snapshot
			c.gen++
		}
		c.mu.Unlock()
		return err
	}
	return nil
}
