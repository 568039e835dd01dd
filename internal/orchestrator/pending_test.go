// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"testing"
	"time"
)

func TestSlot_EnqueueOnlyWhenEmpty(t *testing.T) {
	slot := NewSlot(time.Minute)

	if !slot.Enqueue(&PendingSubmission{Content: "first"}) {
		t.Fatal("enqueue into empty slot should succeed")
	}
	// Single slot, not a queue: no overwrite.
	if slot.Enqueue(&PendingSubmission{Content: "second"}) {
		t.Error("enqueue into occupied slot should fail")
	}
	if slot.Peek().Content != "first" {
		t.Errorf("occupant = %q, want first", slot.Peek().Content)
	}
}

func TestSlot_TakeEmptiesSlot(t *testing.T) {
	slot := NewSlot(time.Minute)
	slot.Enqueue(&PendingSubmission{Content: "queued"})

	sub, expired := slot.Take(time.Now())
	if sub == nil || expired {
		t.Fatalf("Take = (%v, %v), want fresh submission", sub, expired)
	}
	if !slot.IsEmpty() {
		t.Error("slot should be empty after Take")
	}

	// Draining an empty slot is a no-op.
	sub, _ = slot.Take(time.Now())
	if sub != nil {
		t.Error("Take on empty slot should return nil")
	}
}

func TestSlot_TakeReportsExpiry(t *testing.T) {
	slot := NewSlot(30 * time.Second)
	slot.Enqueue(&PendingSubmission{
		Content:    "stale",
		EnqueuedAt: time.Now().Add(-31 * time.Second),
	})

	sub, expired := slot.Take(time.Now())
	if sub == nil {
		t.Fatal("Take should return the submission even when expired")
	}
	if !expired {
		t.Error("a 31s-old submission should be expired at drain time")
	}
}

func TestSlot_EnqueueStampsTime(t *testing.T) {
	slot := NewSlot(time.Minute)
	slot.Enqueue(&PendingSubmission{Content: "x"})

	if slot.Peek().EnqueuedAt.IsZero() {
		t.Error("Enqueue should stamp EnqueuedAt when unset")
	}
}
