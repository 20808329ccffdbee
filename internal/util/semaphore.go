package util

import (
	"context"
)

// Semaphore bounds concurrency. Acquire blocks until a slot is free or the context is done.
type Semaphore interface {
	// Acquire returns true once a slot is held, or false if ctx was cancelled first.
	Acquire(ctx context.Context) bool
	Release()
}

// NewSemaphore returns a Semaphore with count slots. A count of zero or less is unlimited.
func NewSemaphore(count int) Semaphore {
	if count <= 0 {
		return unlimited{}
	}
	return make(slots, count)
}

type slots chan struct{}

func (s slots) Acquire(ctx context.Context) bool {
	select {
	case s <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s slots) Release() {
	<-s
}

type unlimited struct{}

func (unlimited) Acquire(ctx context.Context) bool { return true }
func (unlimited) Release()                         {}
