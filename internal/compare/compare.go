// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package compare

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternchat/lantern-tui/internal/transport"
	"github.com/lanternchat/lantern-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrComparisonRunning means Compare was called while a comparison is
	// still in flight.
	ErrComparisonRunning = errors.New("a comparison is already running")

	// ErrNoTargets means the comparator was given nothing to compare.
	ErrNoTargets = errors.New("no comparison targets selected")

	// ErrAttemptNotComplete means UseResponse selected an attempt that has
	// no committed output.
	ErrAttemptNotComplete = errors.New("attempt has not completed")

	// ErrAttemptOutOfRange means UseResponse selected a nonexistent attempt.
	ErrAttemptOutOfRange = errors.New("attempt index out of range")
)

// =============================================================================
// ATTEMPT STATUS
// =============================================================================

// Status is one attempt's position in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusComplete
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the attempt has finished, one way or the other.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// =============================================================================
// ATTEMPT
// =============================================================================

// attempt tracks one target's session. Guarded by the comparator mutex.
type attempt struct {
	target  string
	status  Status
	content strings.Builder
	tokens  int
	latency time.Duration
	err     error
	session *transport.Session
	started time.Time
}

// AttemptView is a race-free snapshot of one attempt for rendering.
type AttemptView struct {
	Target  string
	Status  Status
	Content string
	Tokens  int
	Latency time.Duration
	Err     string
}

// AttemptRecord is the compact per-attempt record retained after a response
// is committed.
type AttemptRecord struct {
	Target  string        `json:"target"`
	Status  string        `json:"status"`
	Tokens  int           `json:"tokens"`
	Latency time.Duration `json:"latency"`
	Preview string        `json:"preview"`
	Err     string        `json:"error,omitempty"`
}

// Selection is the committed outcome of a comparison.
type Selection struct {
	Target  string
	Content string
	Tokens  int
	Latency time.Duration
	Records []AttemptRecord
}

// =============================================================================
// COMPARATOR
// =============================================================================

// Comparator fans one prompt out to N targets concurrently.
type Comparator struct {
	transport transport.Transport
	targets   []string
	opts      transport.Options

	mu       sync.Mutex
	running  bool
	attempts []*attempt
	done     chan struct{}
}

// New creates a comparator over the given targets.
func New(tp transport.Transport, targets []string, opts transport.Options) *Comparator {
	return &Comparator{
		transport: tp,
		targets:   append([]string(nil), targets...),
		opts:      opts,
	}
}

// Compare opens one independent session per target for the same prompt and
// returns immediately; attempts stream concurrently. Done is closed when
// every attempt is terminal.
func (c *Comparator) Compare(ctx context.Context, prompt, systemPrompt string) error {
	if len(c.targets) == 0 {
		return ErrNoTargets
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrComparisonRunning
	}
	c.running = true
	c.done = make(chan struct{})
	c.attempts = make([]*attempt, len(c.targets))
	for i, target := range c.targets {
		c.attempts[i] = &attempt{target: target, status: StatusPending}
	}
	c.mu.Unlock()

	var history []transport.ChatMessage
	if systemPrompt != "" {
		history = append(history, transport.NewSystemMessage(systemPrompt))
	}
	history = append(history, transport.NewUserMessage(prompt))

	var wg sync.WaitGroup
	for i := range c.targets {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c.runAttempt(ctx, idx, history)
		}(i)
	}

	go func() {
		wg.Wait()
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	return nil
}

// runAttempt streams one target to its terminal state.
func (c *Comparator) runAttempt(ctx context.Context, idx int, history []transport.ChatMessage) {
	c.mu.Lock()
	att := c.attempts[idx]
	att.started = time.Now()
	c.mu.Unlock()

	session, err := c.transport.Open(ctx, history, att.target, c.opts, uuid.NewString())
	if err != nil {
		c.settleAttempt(att, StatusError, err, 0)
		return
	}

	c.mu.Lock()
	att.session = session
	att.status = StatusStreaming
	c.mu.Unlock()

	sawTerminal := false
	var terminalErr error
	tokenCount := 0

	for ev := range session.Events() {
		if ev.Terminal() {
			sawTerminal = true
			terminalErr = ev.Err
			tokenCount = ev.CompletionTokens
			continue
		}
		c.mu.Lock()
		att.content.WriteString(ev.Token)
		att.tokens++
		c.mu.Unlock()
	}

	switch {
	case session.Canceled():
		c.settleAttempt(att, StatusError, errors.New("canceled"), tokenCount)
	case !sawTerminal:
		c.settleAttempt(att, StatusError, errors.New("stream ended without completing"), tokenCount)
	case terminalErr != nil:
		c.settleAttempt(att, StatusError, terminalErr, tokenCount)
	default:
		c.settleAttempt(att, StatusComplete, nil, tokenCount)
	}
}

// settleAttempt records an attempt's terminal state.
func (c *Comparator) settleAttempt(att *attempt, status Status, err error, tokenCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	att.status = status
	att.err = err
	att.latency = time.Since(att.started)
	att.session = nil
	if tokenCount > 0 {
		att.tokens = tokenCount
	}
}

// Done returns a channel closed when every attempt is terminal. Nil before
// the first Compare.
func (c *Comparator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Running reports whether a comparison is in flight.
func (c *Comparator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Views snapshots every attempt for incremental rendering.
func (c *Comparator) Views() []AttemptView {
	c.mu.Lock()
	defer c.mu.Unlock()

	views := make([]AttemptView, len(c.attempts))
	for i, att := range c.attempts {
		views[i] = AttemptView{
			Target:  att.target,
			Status:  att.status,
			Content: att.content.String(),
			Tokens:  att.tokens,
			Latency: att.latency,
		}
		if att.err != nil {
			views[i].Err = att.err.Error()
		}
	}
	return views
}

// CancelAll cancels every in-flight attempt.
func (c *Comparator) CancelAll() {
	c.mu.Lock()
	sessions := make([]*transport.Session, 0, len(c.attempts))
	for _, att := range c.attempts {
		if att.session != nil {
			sessions = append(sessions, att.session)
		}
	}
	c.mu.Unlock()

	for _, session := range sessions {
		session.Cancel()
	}
}

// UseResponse commits exactly one attempt's output as the canonical
// response. Remaining in-flight attempts are canceled; a compact record of
// every attempt is retained in the selection. The chosen attempt must be
// complete.
func (c *Comparator) UseResponse(idx int) (*Selection, error) {
	c.mu.Lock()
	if idx < 0 || idx >= len(c.attempts) {
		c.mu.Unlock()
		return nil, ErrAttemptOutOfRange
	}
	chosen := c.attempts[idx]
	if chosen.status != StatusComplete {
		c.mu.Unlock()
		return nil, ErrAttemptNotComplete
	}

	sel := &Selection{
		Target:  chosen.target,
		Content: chosen.content.String(),
		Tokens:  chosen.tokens,
		Latency: chosen.latency,
		Records: make([]AttemptRecord, len(c.attempts)),
	}
	for i, att := range c.attempts {
		rec := AttemptRecord{
			Target:  att.target,
			Status:  att.status.String(),
			Tokens:  att.tokens,
			Latency: att.latency,
			Preview: util.Truncate(util.CollapseWhitespace(att.content.String()), 80),
		}
		if att.err != nil {
			rec.Err = att.err.Error()
		}
		sel.Records[i] = rec
	}
	c.mu.Unlock()

	c.CancelAll()
	return sel, nil
}
