// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ring provides a fixed-capacity circular FIFO of fixed-size records.
//
// A Buffer never grows. It is not synchronized: a caller sharing a Buffer
// between goroutines must hold its own lock around every call.
package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow is returned by Enqueue when the buffer is at capacity.
	ErrOverflow = errors.New("ring: buffer overflow")

	// ErrEmpty is returned by Dequeue when the buffer holds no records.
	ErrEmpty = errors.New("ring: buffer empty")
)

// Buffer is a circular queue of records of type T
type Buffer[T any] struct {
	data []T
	head int // next write slot
	tail int // next read slot
	size int
}

// New creates a buffer holding at most capacity records
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: invalid capacity %d", capacity)
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// Enqueue appends a record. On a full buffer the state is left unchanged
// and ErrOverflow is returned.
func (b *Buffer[T]) Enqueue(v T) error {
	if b.size+1 > len(b.data) {
		return ErrOverflow
	}

	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	b.size++
	return nil
}

// Dequeue removes the oldest record. On an empty buffer the state is left
// unchanged and ErrEmpty is returned.
func (b *Buffer[T]) Dequeue() (T, error) {
	var zero T
	if b.size == 0 {
		return zero, ErrEmpty
	}

	v := b.data[b.tail]
	b.data[b.tail] = zero
	b.tail = (b.tail + 1) % len(b.data)
	b.size--
	return v, nil
}

// Len returns the number of records currently held
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the fixed capacity
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Full reports whether the next Enqueue would overflow
func (b *Buffer[T]) Full() bool {
	return b.size == len(b.data)
}
