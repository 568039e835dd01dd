// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternchat/lantern-tui/internal/model"
)

// fakeStore is a Store whose initialization is scripted per test.
type fakeStore struct {
	initDelay time.Duration
	initErr   error
	ready     atomic.Bool
}

func (f *fakeStore) Initialize(ctx context.Context) error {
	if f.initDelay > 0 {
		select {
		case <-time.After(f.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.ready.Store(true)
	return nil
}

func (f *fakeStore) IsReady() bool { return f.ready.Load() }

func (f *fakeStore) CreateConversation(string, bool) (string, error) {
	if !f.ready.Load() {
		return "", ErrNotReady
	}
	return "conv_fake", nil
}

func (f *fakeStore) GetConversation(string) (*model.Conversation, error) {
	return nil, ErrConversationNotFound
}
func (f *fakeStore) SaveMessage(string, *model.Message) error { return nil }
func (f *fakeStore) UpdateTitle(string, string) error         { return nil }
func (f *fakeStore) ListConversations() ([]model.ConversationMeta, error) {
	return nil, nil
}
func (f *fakeStore) DeleteConversation(string) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

func TestGate_ReachesReady(t *testing.T) {
	gate := NewGate(&fakeStore{}, time.Second)
	require.Equal(t, PhaseConnecting, gate.Phase())

	gate.Start(context.Background())

	select {
	case <-gate.Ready():
	case <-time.After(time.Second):
		t.Fatal("gate never became ready")
	}
	assert.Equal(t, PhaseReady, gate.Phase())
	assert.NoError(t, gate.Err())
}

func TestGate_InitFailureIsFatal(t *testing.T) {
	cause := errors.New("disk full")
	gate := NewGate(&fakeStore{initErr: cause}, time.Second)
	gate.Start(context.Background())

	select {
	case <-gate.Failed():
	case <-time.After(time.Second):
		t.Fatal("gate never failed")
	}
	assert.Equal(t, PhaseError, gate.Phase())
	require.Error(t, gate.Err())
	assert.ErrorIs(t, gate.Err(), cause)

	// Fatal until restart: the phase never leaves error.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, PhaseError, gate.Phase())
}

func TestGate_TimesOut(t *testing.T) {
	// Initialization takes far longer than the gate allows.
	gate := NewGate(&fakeStore{initDelay: time.Minute}, 30*time.Millisecond)
	gate.Start(context.Background())

	select {
	case <-gate.Failed():
	case <-time.After(time.Second):
		t.Fatal("gate never timed out")
	}
	assert.Equal(t, PhaseError, gate.Phase())
	assert.ErrorIs(t, gate.Err(), context.DeadlineExceeded)
}

func TestGate_WaitBlocksUntilReady(t *testing.T) {
	gate := NewGate(&fakeStore{initDelay: 30 * time.Millisecond}, time.Second)
	gate.Start(context.Background())

	start := time.Now()
	err := gate.Wait(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestGate_WaitReturnsFailureCause(t *testing.T) {
	cause := errors.New("corrupt database")
	gate := NewGate(&fakeStore{initErr: cause}, time.Second)
	gate.Start(context.Background())

	err := gate.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestGate_WaitHonorsContext(t *testing.T) {
	gate := NewGate(&fakeStore{initDelay: time.Minute}, time.Minute)
	gate.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_StartIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	gate := NewGate(store, time.Second)

	gate.Start(context.Background())
	gate.Start(context.Background())
	gate.Start(context.Background())

	require.NoError(t, gate.Wait(context.Background()))
	assert.Equal(t, PhaseReady, gate.Phase())
}

func TestGate_StoreQueriesBeforeReady(t *testing.T) {
	// The store itself guards against early queries; the gate does not
	// need to wrap them.
	store := &fakeStore{initDelay: time.Minute}
	gate := NewGate(store, time.Minute)
	gate.Start(context.Background())

	_, err := store.CreateConversation("x", false)
	assert.ErrorIs(t, err, ErrNotReady)
}
