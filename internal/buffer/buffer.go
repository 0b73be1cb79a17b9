// Package buffer holds telemetry pending delivery. Append and drain are the
// only operations; a drain swaps in a fresh slice so the snapshot handed to
// the sender is never mutated by concurrent appenders.
package buffer

import "sync"

type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

func New[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{items: make([]T, 0, capacity)}
}

// Append adds an item and returns the resulting length, which callers use
// for size-threshold flush decisions.
func (b *Buffer[T]) Append(item T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return len(b.items)
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Drain takes a consistent snapshot and replaces the buffer with an empty
// one. Items appended after Drain returns land in the next snapshot.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	snapshot := b.items
	b.items = make([]T, 0, cap(snapshot))
	return snapshot
}
