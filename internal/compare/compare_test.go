// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package compare

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternchat/lantern-tui/internal/transport"
)

// fanoutTransport scripts one response per model name.
type fanoutTransport struct {
	mu        sync.Mutex
	responses map[string]fanoutResponse
	opens     int
}

type fanoutResponse struct {
	tokens []string
	err    error
	hang   bool
}

func (f *fanoutTransport) Open(ctx context.Context, history []transport.ChatMessage, modelName string, opts transport.Options, requestID string) (*transport.Session, error) {
	f.mu.Lock()
	f.opens++
	resp := f.responses[modelName]
	f.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	session := transport.NewSession(requestID, cancel)

	go func() {
		defer session.Close()
		for _, tok := range resp.tokens {
			if !session.Send(streamCtx, transport.Event{Token: tok}) {
				return
			}
		}
		if resp.hang {
			<-streamCtx.Done()
			return
		}
		if resp.err != nil {
			session.Send(streamCtx, transport.Event{Err: resp.err})
			return
		}
		session.Send(streamCtx, transport.Event{Done: true, CompletionTokens: len(resp.tokens)})
	}()

	return session, nil
}

func (f *fanoutTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func waitDone(t *testing.T, c *Comparator) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("comparison never completed")
	}
}

func TestCompare_FansOutToAllTargets(t *testing.T) {
	tp := &fanoutTransport{responses: map[string]fanoutResponse{
		"fast":  {tokens: []string{"quick ", "answer"}},
		"smart": {tokens: []string{"thorough ", "answer"}},
		"flaky": {err: errors.New("boom")},
	}}
	c := New(tp, []string{"fast", "smart", "flaky"}, transport.Options{})

	require.NoError(t, c.Compare(context.Background(), "question", ""))
	waitDone(t, c)

	assert.Equal(t, 3, tp.openCount())

	views := c.Views()
	require.Len(t, views, 3)

	byTarget := map[string]AttemptView{}
	for _, v := range views {
		byTarget[v.Target] = v
	}

	assert.Equal(t, StatusComplete, byTarget["fast"].Status)
	assert.Equal(t, "quick answer", byTarget["fast"].Content)
	assert.Equal(t, 2, byTarget["fast"].Tokens)
	assert.Greater(t, byTarget["fast"].Latency, time.Duration(0))

	assert.Equal(t, StatusComplete, byTarget["smart"].Status)

	// One failing target does not fail the comparison.
	assert.Equal(t, StatusError, byTarget["flaky"].Status)
	assert.Contains(t, byTarget["flaky"].Err, "boom")
}

func TestCompare_RejectsConcurrentRuns(t *testing.T) {
	tp := &fanoutTransport{responses: map[string]fanoutResponse{
		"slow": {hang: true},
	}}
	c := New(tp, []string{"slow"}, transport.Options{})

	require.NoError(t, c.Compare(context.Background(), "q", ""))
	assert.ErrorIs(t, c.Compare(context.Background(), "q", ""), ErrComparisonRunning)

	c.CancelAll()
	waitDone(t, c)
}

func TestCompare_NoTargets(t *testing.T) {
	c := New(&fanoutTransport{}, nil, transport.Options{})
	assert.ErrorIs(t, c.Compare(context.Background(), "q", ""), ErrNoTargets)
}

func TestCompare_PartialResultsWhileStreaming(t *testing.T) {
	tp := &fanoutTransport{responses: map[string]fanoutResponse{
		"done":    {tokens: []string{"finished"}},
		"stalled": {tokens: []string{"partial "}, hang: true},
	}}
	c := New(tp, []string{"done", "stalled"}, transport.Options{})
	require.NoError(t, c.Compare(context.Background(), "q", ""))

	// The finished attempt renders while the other is still streaming.
	require.Eventually(t, func() bool {
		views := c.Views()
		return views[0].Status == StatusComplete && views[1].Content == "partial "
	}, 3*time.Second, 5*time.Millisecond, "partial results never rendered")

	assert.True(t, c.Running())
	c.CancelAll()
	waitDone(t, c)

	views := c.Views()
	assert.Equal(t, StatusError, views[1].Status)
}

func TestUseResponse_CommitsOneAndRecordsAll(t *testing.T) {
	tp := &fanoutTransport{responses: map[string]fanoutResponse{
		"a": {tokens: []string{"answer ", "A"}},
		"b": {tokens: []string{"answer ", "B"}},
	}}
	c := New(tp, []string{"a", "b"}, transport.Options{})
	require.NoError(t, c.Compare(context.Background(), "q", "be brief"))
	waitDone(t, c)

	sel, err := c.UseResponse(1)
	require.NoError(t, err)
	assert.Equal(t, "b", sel.Target)
	assert.Equal(t, "answer B", sel.Content)

	// A compact record of every attempt is retained.
	require.Len(t, sel.Records, 2)
	assert.Equal(t, "a", sel.Records[0].Target)
	assert.Equal(t, "complete", sel.Records[0].Status)
	assert.Equal(t, "answer A", sel.Records[0].Preview)
}

func TestUseResponse_RejectsIncompleteAttempt(t *testing.T) {
	tp := &fanoutTransport{responses: map[string]fanoutResponse{
		"ok":   {tokens: []string{"x"}},
		"bad":  {err: errors.New("failed")},
		"hang": {hang: true},
	}}
	c := New(tp, []string{"ok", "bad", "hang"}, transport.Options{})
	require.NoError(t, c.Compare(context.Background(), "q", ""))

	require.Eventually(t, func() bool {
		views := c.Views()
		return views[0].Status.Terminal() && views[1].Status.Terminal()
	}, 3*time.Second, 5*time.Millisecond)

	_, err := c.UseResponse(1)
	assert.ErrorIs(t, err, ErrAttemptNotComplete)
	_, err = c.UseResponse(2)
	assert.ErrorIs(t, err, ErrAttemptNotComplete)
	_, err = c.UseResponse(5)
	assert.ErrorIs(t, err, ErrAttemptOutOfRange)

	// Committing the good one cancels the stalled one.
	sel, err := c.UseResponse(0)
	require.NoError(t, err)
	assert.Equal(t, "ok", sel.Target)
	waitDone(t, c)
}
