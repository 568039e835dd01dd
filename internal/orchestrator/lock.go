// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"sync"
	"time"
)

// DefaultLockTimeout is how long the lock may be held before the watchdog
// force-clears it. Independent of the stuck-message deadline.
const DefaultLockTimeout = 30 * time.Second

// =============================================================================
// SUBMISSION LOCK
// =============================================================================

// Lock is the single-owner submission lock. TryAcquire fails when held;
// callers check-and-skip rather than queue. A force-release timer clears the
// lock after a timeout so an unreleased lock can never permanently disable
// input: "theoretically two sends in flight" is judged strictly better than
// "permanently unusable input" for an interactive surface.
//
// Waiters block on ReleaseSignal instead of polling.
type Lock struct {
	mu         sync.Mutex
	held       bool
	acquiredAt time.Time
	generation uint64
	released   chan struct{} // closed on release of the current hold
	timer      *time.Timer

	timeout time.Duration

	// OnForceRelease, if set, is called (outside the lock's mutex) when the
	// watchdog clears a hold that was never released.
	OnForceRelease func(heldFor time.Duration)
}

// closedChan is returned by ReleaseSignal while the lock is free.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewLock creates a lock with the given force-release timeout. timeout <= 0
// uses DefaultLockTimeout.
func NewLock(timeout time.Duration) *Lock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Lock{timeout: timeout}
}

// TryAcquire takes the lock if free. Returns false when already held.
func (l *Lock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return false
	}

	l.held = true
	l.acquiredAt = time.Now()
	l.generation++
	l.released = make(chan struct{})

	// Watchdog: force-clear if still held from this same acquire.
	gen := l.generation
	l.timer = time.AfterFunc(l.timeout, func() {
		l.forceRelease(gen)
	})

	return true
}

// Release frees the lock. Safe to call when not held.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked()
}

// releaseLocked frees the lock; caller holds l.mu.
func (l *Lock) releaseLocked() {
	if !l.held {
		return
	}
	l.held = false
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	close(l.released)
	l.released = nil
}

// forceRelease clears the lock if the hold from generation gen is still
// active. A release-then-reacquire in the meantime bumps the generation, so
// a stale timer can never clear a newer hold.
func (l *Lock) forceRelease(gen uint64) {
	l.mu.Lock()
	if !l.held || l.generation != gen {
		l.mu.Unlock()
		return
	}
	heldFor := time.Since(l.acquiredAt)
	l.releaseLocked()
	cb := l.OnForceRelease
	l.mu.Unlock()

	if cb != nil {
		cb(heldFor)
	}
}

// Held reports whether the lock is currently held.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// HeldFor returns how long the current hold has lasted, or zero.
func (l *Lock) HeldFor() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return 0
	}
	return time.Since(l.acquiredAt)
}

// ReleaseSignal returns a channel closed when the current hold is released.
// If the lock is free the channel is already closed, so waiters never block
// on a free lock.
func (l *Lock) ReleaseSignal() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return closedChan
	}
	return l.released
}
