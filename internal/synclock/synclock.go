// Package synclock implements the Shared/Exclusive coordinator (C9 in
// SPEC_FULL.md §4.7): a one-writer-many-reader gate built without a
// sync.RWMutex, because the single writer is the host process's external
// global mutex, owned and toggled elsewhere (e.g. the command layer
// holding a write lock across a schema change).
package synclock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token tells Release which of the two locks Acquire actually took.
type Token int

const (
	tokenNone Token = iota
	tokenInternal
	tokenExternal
)

// backoff is the spin delay between external trylock attempts.
const backoff = 5 * time.Microsecond

// ExternalMutex is the host's global mutex, owned elsewhere. Coordinator
// only ever TryLocks it, never blocks on it.
type ExternalMutex interface {
	TryLock() bool
	Unlock()
}

// Coordinator implements Acquire/Release/SetOwned/UnsetOwned exactly as
// spec.md §4.7 describes: while owned is false, workers take a cheap
// internal mutex; once a writer announces ownership, workers instead spin
// on the external mutex's trylock so they never block while the writer is
// mid-change.
type Coordinator struct {
	owned    atomic.Bool
	internal sync.Mutex
	external ExternalMutex
}

// New returns a Coordinator guarding external, the host's global mutex.
func New(external ExternalMutex) *Coordinator {
	return &Coordinator{external: external}
}

// SetOwned is called by the thread holding the exclusive lock to
// advertise that workers must now spin on the external mutex instead of
// the cheap internal one.
func (c *Coordinator) SetOwned() { c.owned.Store(true) }

// UnsetOwned reverts to the cheap internal-mutex path.
func (c *Coordinator) UnsetOwned() { c.owned.Store(false) }

// Acquire blocks until one of the two locks is held, returning the token
// Release needs. If ctx is cancelled while spinning on the external
// mutex, Acquire returns ctx.Err() and holds nothing.
func (c *Coordinator) Acquire(ctx context.Context) (Token, error) {
	if !c.owned.Load() {
		c.internal.Lock()
		return tokenInternal, nil
	}
	for {
		if c.external.TryLock() {
			return tokenExternal, nil
		}
		select {
		case <-ctx.Done():
			return tokenNone, ctx.Err()
		case <-time.After(backoff):
		}
		if !c.owned.Load() {
			// the writer released ownership mid-spin; fall back to the
			// cheap path rather than keep spinning on the external lock.
			c.internal.Lock()
			return tokenInternal, nil
		}
	}
}

// Release releases whichever lock tok names. Releasing tokenNone is a
// no-op, matching a failed Acquire.
func (c *Coordinator) Release(tok Token) {
	switch tok {
	case tokenInternal:
		c.internal.Unlock()
	case tokenExternal:
		c.external.Unlock()
	}
}
