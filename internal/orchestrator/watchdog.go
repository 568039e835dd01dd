// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"time"
)

const (
	// DefaultSweepInterval is how often the watchdog scans for stuck
	// messages.
	DefaultSweepInterval = 30 * time.Second

	// DefaultStuckDeadline is how old a still-streaming message may be
	// before it is force-finalized. Independent of the lock timeout; the
	// two constants have no documented relationship.
	DefaultStuckDeadline = 120 * time.Second
)

// =============================================================================
// STUCK-MESSAGE WATCHDOG
// =============================================================================

// Sweeper force-finalizes messages stuck in a streaming state past the
// deadline and reports how many it resolved.
type Sweeper interface {
	SweepStuck(deadline time.Duration) int
}

// Watchdog periodically sweeps for messages whose stream never delivered a
// terminal event (transport-level silent failure). It trades detection
// latency of up to deadline+interval for guaranteed UI liveness.
type Watchdog struct {
	sweeper  Sweeper
	interval time.Duration
	deadline time.Duration
}

// NewWatchdog creates a watchdog. Zero interval or deadline use the
// defaults.
func NewWatchdog(sweeper Sweeper, interval, deadline time.Duration) *Watchdog {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if deadline <= 0 {
		deadline = DefaultStuckDeadline
	}
	return &Watchdog{sweeper: sweeper, interval: interval, deadline: deadline}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	w.sweeper.SweepStuck(w.deadline)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweeper.SweepStuck(w.deadline)
		case <-ctx.Done():
			return
		}
	}
}
