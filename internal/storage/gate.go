// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// PHASE TYPE
// =============================================================================

// Phase is the readiness state of the storage gate.
type Phase int

const (
	// PhaseConnecting means initialization is still in flight.
	PhaseConnecting Phase = iota
	// PhaseReady means the store's read path has succeeded at least once.
	PhaseReady
	// PhaseError means initialization failed or timed out. The phase is
	// fatal until restart; there are no automatic retries.
	PhaseError
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// GATE
// =============================================================================

// DefaultReadyTimeout is how long the gate waits for the store before
// declaring it failed.
const DefaultReadyTimeout = 15 * time.Second

// Gate tracks storage readiness as an explicit tri-state phase and signals
// waiters on phase change. It is pre-warmed: Start kicks off store
// initialization immediately so the user can type while storage connects.
//
// Waiters select on Ready() or Failed() instead of polling the phase.
type Gate struct {
	store   Store
	timeout time.Duration

	mu     sync.RWMutex
	phase  Phase
	cause  error
	ready  chan struct{} // closed on transition to PhaseReady
	failed chan struct{} // closed on transition to PhaseError

	startOnce sync.Once
}

// NewGate creates a gate for the given store. timeout <= 0 uses
// DefaultReadyTimeout.
func NewGate(store Store, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &Gate{
		store:   store,
		timeout: timeout,
		phase:   PhaseConnecting,
		ready:   make(chan struct{}),
		failed:  make(chan struct{}),
	}
}

// Start begins store initialization in the background. Safe to call more
// than once; only the first call has effect.
func (g *Gate) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		go g.warm(ctx)
	})
}

// warm runs initialization under the ready timeout and settles the phase.
func (g *Gate) warm(ctx context.Context) {
	initCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.store.Initialize(initCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			g.fail(fmt.Errorf("storage initialization failed: %w", err))
			return
		}
		if !g.store.IsReady() {
			g.fail(fmt.Errorf("storage initialized but not ready"))
			return
		}
		g.settle(PhaseReady, nil)
	case <-initCtx.Done():
		g.fail(fmt.Errorf("storage not ready within %s: %w", g.timeout, initCtx.Err()))
	}
}

func (g *Gate) fail(cause error) {
	g.settle(PhaseError, cause)
}

// settle transitions out of PhaseConnecting exactly once.
func (g *Gate) settle(phase Phase, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseConnecting {
		return
	}
	g.phase = phase
	g.cause = cause

	switch phase {
	case PhaseReady:
		close(g.ready)
	case PhaseError:
		close(g.failed)
	}
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phase
}

// Err returns the cause of a PhaseError, or nil.
func (g *Gate) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cause
}

// Ready returns a channel closed when the gate reaches PhaseReady.
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}

// Failed returns a channel closed when the gate reaches PhaseError.
func (g *Gate) Failed() <-chan struct{} {
	return g.failed
}

// Wait blocks until the gate settles or ctx is canceled. Returns nil on
// PhaseReady, the failure cause on PhaseError.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	case <-g.failed:
		return g.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
