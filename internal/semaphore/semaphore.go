// Package semaphore implements a FIFO-ordered counting semaphore: the
// first goroutine to block on Acquire is the first one woken when a
// slot frees up, even when later acquirers race in under a timeout.
package semaphore

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/reqsprint/reqsprint/internal/reqerr"
)

type waiter struct {
	ready chan struct{}
	err   error
}

// Semaphore is a counting semaphore with a strict FIFO wake order.
type Semaphore struct {
	mu        sync.Mutex
	capacity  int
	available int
	waiters   *list.List
	destroyed bool
}

// New creates a Semaphore with the given capacity. Capacity <= 0 is
// treated as unlimited (Acquire never blocks).
func New(capacity int) *Semaphore {
	return &Semaphore{
		capacity:  capacity,
		available: capacity,
		waiters:   list.New(),
	}
}

// Acquire blocks until a slot is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.capacity <= 0 {
		return nil
	}
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errDestroyed()
	}
	if s.available > 0 && s.waiters.Len() == 0 {
		s.available--
		s.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{}, 1)}
	elem := s.waiters.PushBack(w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-w.ready:
			// We were granted the slot right as ctx fired; honor the
			// grant instead of leaking a permit.
			s.mu.Unlock()
			return nil
		default:
			s.waiters.Remove(elem)
			s.mu.Unlock()
			return reqerr.New(reqerr.KindTimeout, "ACQUIRE_ABORTED", "Request aborted", false)
		}
	}
}

// TryAcquireTimeout is Acquire bounded by a fixed duration, returning
// a TIMEOUT RequestError (rather than CANCELLED) if the deadline
// expires first.
func (s *Semaphore) TryAcquireTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Acquire(ctx)
	if err != nil && ctx.Err() != nil {
		return reqerr.NewTimeoutError("ACQUIRE_TIMEOUT", "timed out waiting for a semaphore slot")
	}
	return err
}

// Release returns a slot to the pool, waking the longest-waiting
// blocked acquirer if one exists.
func (s *Semaphore) Release() {
	if s.capacity <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		w := front.Value.(*waiter)
		w.ready <- struct{}{}
		return
	}
	if s.available < s.capacity {
		s.available++
	}
}

// Available returns the number of slots currently free for immediate
// acquisition (ignoring anyone already queued).
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Waiting returns the number of goroutines blocked in Acquire.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}

// Destroy rejects every currently-queued waiter with an error
// distinguishable as "Semaphore destroyed", leaves Available() at 0,
// and makes every subsequent Acquire fail immediately instead of
// blocking. Destroy is idempotent.
func (s *Semaphore) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	for e := s.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.err = errDestroyed()
		w.ready <- struct{}{}
	}
	s.waiters.Init()
	s.available = 0
}

func errDestroyed() error {
	return reqerr.New(reqerr.KindValidation, "SEMAPHORE_DESTROYED", "Semaphore destroyed", false)
}
