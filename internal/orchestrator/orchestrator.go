// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternchat/lantern-tui/internal/model"
	"github.com/lanternchat/lantern-tui/internal/storage"
	"github.com/lanternchat/lantern-tui/internal/transport"
	"github.com/lanternchat/lantern-tui/internal/util"
)

// =============================================================================
// EXTERNAL INTERFACES
// =============================================================================

// Level classifies a user-visible notice.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Notifier receives fire-and-forget user-visible notices for queued,
// blocked, and error states. The orchestrator never depends on a response.
type Notifier interface {
	Notify(level Level, text string)
}

// CreditLimiter is consulted (not owned) before each send. A denial is
// terminal for that submission: routed to an upgrade path, never queued or
// retried.
type CreditLimiter interface {
	CheckCredits(kind string) (allowed bool, reason string)
	UseFeature(kind string) bool
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the orchestrator's model selection and timing knobs. Zero
// values fall back to the package defaults.
type Config struct {
	Model        string
	SystemPrompt string
	Options      transport.Options

	QueueExpiry    time.Duration // pending submission max age at drain
	LockTimeout    time.Duration // submission lock force-release
	SweepInterval  time.Duration // watchdog sweep interval
	StuckDeadline  time.Duration // streaming message max age
	MaxRetries     int           // blank-response retries (first turn)
	RetryBaseDelay time.Duration
}

// Deps are the orchestrator's collaborators. Credits and Notifier are
// optional.
type Deps struct {
	Store     storage.Store
	Gate      *storage.Gate
	Transport transport.Transport
	Credits   CreditLimiter
	Notifier  Notifier
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator is the send/stream/recover state machine. All orchestration
// state lives behind one mutex; the stream consumer runs in the submitting
// goroutine and mutates messages only through orchestrator methods.
type Orchestrator struct {
	cfg       Config
	store     storage.Store
	gate      *storage.Gate
	transport transport.Transport
	credits   CreditLimiter
	notifier  Notifier

	lock   *Lock
	slot   *Slot
	skip   *SkipMarker
	policy RetryPolicy

	mu            sync.Mutex
	state         State
	conv          *model.Conversation
	convPersisted bool
	nextTemporary bool
	active        *transport.Session
}

// New creates an orchestrator. Call Start to activate the background
// concerns (gate warm-up, drain, watchdog).
func New(deps Deps, cfg Config) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     deps.Store,
		gate:      deps.Gate,
		transport: deps.Transport,
		credits:   deps.Credits,
		notifier:  deps.Notifier,
		lock:      NewLock(cfg.LockTimeout),
		slot:      NewSlot(cfg.QueueExpiry),
		skip:      &SkipMarker{},
		policy:    NewRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay),
		state:     StateIdle,
	}
	o.lock.OnForceRelease = func(heldFor time.Duration) {
		o.notify(LevelWarn, fmt.Sprintf("send lock force-released after %s", heldFor.Round(time.Second)))
	}
	return o
}

// Start activates the gate warm-up, the queued-submission drain, and the
// stuck-message watchdog. The goroutines stop when ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.gate.Start(ctx)

	go o.drainLoop(ctx)
	go NewWatchdog(o, o.cfg.SweepInterval, o.cfg.StuckDeadline).Run(ctx)
}

// =============================================================================
// SUBMIT PIPELINE
// =============================================================================

// Submit runs one full send: lock, readiness check (queueing if storage is
// still connecting), optimistic append, stream, recovery, persistence. It
// blocks until the turn is resolved or queued; callers run it in its own
// goroutine.
//
// Lock release is guaranteed on every exit path, including panics.
func (o *Orchestrator) Submit(ctx context.Context, content string, attachments ...string) (err error) {
	if util.IsBlank(content) {
		return nil
	}

	if !o.lock.TryAcquire() {
		o.notify(LevelInfo, "A message is already being sent.")
		return ErrSubmissionBlocked
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send pipeline panic: %v", r)
			o.notify(LevelError, "Internal error while sending. Please try again.")
		}
		o.setActive(nil)
		o.endPipeline()
		o.lock.Release()
	}()

	switch o.gate.Phase() {
	case storage.PhaseError:
		o.notify(LevelError, "Storage is unavailable. Restart to recover.")
		return ErrStorageUnavailable

	case storage.PhaseConnecting:
		return o.queue(ctx, content, attachments)

	default:
		return o.send(ctx, content, attachments)
	}
}

// queue parks the submission in the pending slot and shows optimistic UI.
// The lock is released by Submit's defer: the slot represents "not yet
// started", the lock "in progress", and they hand off here.
func (o *Orchestrator) queue(ctx context.Context, content string, attachments []string) error {
	sub := &PendingSubmission{
		Content:     content,
		Attachments: attachments,
		EnqueuedAt:  time.Now(),
	}
	if !o.slot.Enqueue(sub) {
		o.notify(LevelInfo, "A message is already queued.")
		return ErrSubmissionBlocked
	}

	o.mu.Lock()
	o.ensureConversationLocked()
	user := o.conv.AddUserMessage(content)
	placeholder := o.conv.AddAssistantMessage()
	placeholder.SetInterim("connecting")
	sub.UserMessageID = user.ID
	sub.PlaceholderID = placeholder.ID
	sub.ConversationID = o.conv.ID
	o.transitionLocked(StateQueued)
	o.mu.Unlock()

	// The gate can settle between Submit's phase check and the enqueue,
	// after the one-shot drain has already swept an empty slot. Re-check
	// and resolve the submission here so it cannot strand. The caller
	// still holds the lock, so no drain can race for the slot.
	switch o.gate.Phase() {
	case storage.PhaseReady:
		if late, _ := o.slot.Take(time.Now()); late != nil {
			o.removeOptimistic(late)
			return o.send(ctx, late.Content, late.Attachments)
		}
	case storage.PhaseError:
		o.failQueued()
		return ErrStorageUnavailable
	}

	o.notify(LevelInfo, "Storage is connecting; your message will be sent shortly.")
	return nil
}

// send runs the ready-path pipeline: credit check, conversation creation,
// optimistic append, streaming with recovery, persistence.
func (o *Orchestrator) send(ctx context.Context, content string, attachments []string) error {
	o.mu.Lock()
	o.transitionLocked(StateSending)
	o.mu.Unlock()

	if o.credits != nil {
		allowed, reason := o.credits.CheckCredits("chat")
		if !allowed {
			o.notify(LevelWarn, "Message not sent: "+reason)
			return &CreditDeniedError{Reason: reason}
		}
		o.credits.UseFeature("chat")
	}

	if err := o.ensurePersistedConversation(); err != nil {
		o.notify(LevelError, "Could not open a conversation: "+err.Error())
		return err
	}

	o.mu.Lock()
	user := o.conv.AddUserMessage(content)
	asst := o.conv.AddAssistantMessage()
	asst.SetInterim("connecting")
	convID := o.conv.ID
	title := o.conv.Title
	temporary := o.conv.Temporary
	o.transitionLocked(StateStreaming)
	o.mu.Unlock()

	if !temporary {
		if err := o.store.SaveMessage(convID, user); err != nil {
			o.notify(LevelWarn, "Message could not be saved: "+err.Error())
		}
		if err := o.store.UpdateTitle(convID, title); err != nil {
			o.notify(LevelWarn, "Title could not be saved: "+err.Error())
		}
	}

	o.streamTurn(ctx, asst)

	if !temporary {
		if err := o.store.SaveMessage(convID, asst); err != nil {
			o.notify(LevelWarn, "Response could not be saved: "+err.Error())
		}
	}
	return nil
}

// streamTurn consumes stream sessions for one assistant message, applying
// the bounded retry policy for blank first-turn responses. Every outcome
// leaves the message finalized.
func (o *Orchestrator) streamTurn(ctx context.Context, asst *model.Message) {
	retryCount := 0

	for {
		history := o.historySnapshot()

		session, err := o.transport.Open(ctx, history, o.cfg.Model, o.cfg.Options, uuid.NewString())
		if err != nil {
			o.finalizeError(asst, transportErrorText(err))
			return
		}
		session.AssistantMessageID = asst.ID
		session.RetryCount = retryCount
		o.setActive(session)

		stats := model.NewStatistics()
		sawTerminal := false
		var terminalErr error
		tokenCount := 0
		appended := 0

		for ev := range session.Events() {
			if ev.Terminal() {
				sawTerminal = true
				terminalErr = ev.Err
				tokenCount = ev.CompletionTokens
				continue
			}
			appended++
			o.appendToken(asst, ev.Token, stats)
		}
		o.setActive(nil)

		if session.Canceled() {
			// User-initiated cancel: no terminal event carried a count, so
			// the tokens that made it in are the count.
			stats.Finalize(appended)
			o.finalizeStream(asst, stats)
			return
		}

		if !sawTerminal {
			terminalErr = fmt.Errorf("stream ended without completing")
		}
		if terminalErr != nil {
			// Not retried automatically; the user must explicitly resend.
			o.finalizeError(asst, transportErrorText(terminalErr))
			return
		}

		content := asst.PartialContent()
		if o.policy.ShouldRetry(o.userTurns(), content, retryCount) {
			retryCount++
			o.mu.Lock()
			o.transitionLocked(StateRecovering)
			asst.ResetStream()
			asst.SetInterim("retrying")
			o.mu.Unlock()

			select {
			case <-time.After(o.policy.Delay(retryCount)):
			case <-ctx.Done():
				o.finalizeError(asst, transportErrorText(ctx.Err()))
				return
			}

			o.mu.Lock()
			o.transitionLocked(StateStreaming)
			o.mu.Unlock()
			continue
		}

		if util.IsBlank(content) {
			o.finalizeError(asst, RetryExhaustedText)
			return
		}

		stats.Finalize(tokenCount)
		o.finalizeStream(asst, stats)
		return
	}
}

// endPipeline restores the resting state after a Submit. A queued
// submission stays queued; everything else returns to idle.
func (o *Orchestrator) endPipeline() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateQueued {
		o.transitionLocked(StateIdle)
	}
}

// =============================================================================
// QUEUED-SUBMISSION DRAIN
// =============================================================================

// drainLoop waits for the gate to settle and drains the pending slot once
// storage is ready. On gate failure the queued submission is surfaced as an
// error instead of silently vanishing.
func (o *Orchestrator) drainLoop(ctx context.Context) {
	select {
	case <-o.gate.Ready():
		o.Drain(ctx)
	case <-o.gate.Failed():
		o.failQueued()
	case <-ctx.Done():
	}
}

// Drain sends the queued submission, if any. Idempotent: draining an empty
// slot is a no-op. If the submission lock is held, drain waits on its
// release signal rather than polling.
func (o *Orchestrator) Drain(ctx context.Context) {
	for {
		if o.slot.IsEmpty() {
			return
		}

		// The orchestrator is briefly busy, not failed: wait for unlock.
		select {
		case <-o.lock.ReleaseSignal():
		case <-ctx.Done():
			return
		}

		if !o.lock.TryAcquire() {
			continue // lost the race, wait again
		}

		sub, expired := o.slot.Take(time.Now())
		if sub == nil {
			o.lock.Release()
			return
		}

		if expired {
			// Stale: the user has likely abandoned or retried. Discard with
			// placeholder cleanup, zero sends.
			o.removeOptimistic(sub)
			o.mu.Lock()
			o.transitionLocked(StateIdle)
			o.mu.Unlock()
			o.lock.Release()
			o.notify(LevelInfo, "Queued message expired and was discarded.")
			return
		}

		// Replace the queued placeholders with a real send of the original
		// content.
		o.removeOptimistic(sub)
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.notify(LevelError, "Internal error while sending queued message.")
				}
				o.setActive(nil)
				o.endPipeline()
				o.lock.Release()
			}()
			o.send(ctx, sub.Content, sub.Attachments)
		}()
		return
	}
}

// failQueued resolves a queued submission after a fatal gate failure.
func (o *Orchestrator) failQueued() {
	sub, _ := o.slot.Take(time.Now())
	if sub == nil {
		return
	}

	o.mu.Lock()
	if o.conv != nil {
		if ph := o.conv.GetMessageByID(sub.PlaceholderID); ph != nil {
			ph.FinalizeError("Storage is unavailable. Restart to recover.")
		}
	}
	o.transitionLocked(StateIdle)
	o.mu.Unlock()

	o.notify(LevelError, "Storage is unavailable. Restart to recover.")
}

// removeOptimistic deletes the optimistic messages shown for a queued
// submission.
func (o *Orchestrator) removeOptimistic(sub *PendingSubmission) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil || o.conv.ID != sub.ConversationID {
		return
	}
	o.conv.RemoveMessage(sub.PlaceholderID)
	o.conv.RemoveMessage(sub.UserMessageID)
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelActive cancels the in-flight stream session, if any. The consumer
// finalizes the message with accumulated partial content.
func (o *Orchestrator) CancelActive() bool {
	o.mu.Lock()
	session := o.active
	o.mu.Unlock()

	if session == nil {
		return false
	}
	session.Cancel()
	return true
}

// =============================================================================
// STUCK-MESSAGE SWEEP
// =============================================================================

// SweepStuck force-finalizes assistant messages left streaming past the
// deadline: partial content is kept if any arrived, else a timeout text.
// This is the defense against a session whose terminal event never fires.
func (o *Orchestrator) SweepStuck(deadline time.Duration) int {
	o.mu.Lock()
	var stuck []*model.Message
	var convID string
	var temporary bool
	if o.conv != nil {
		now := time.Now()
		convID = o.conv.ID
		temporary = o.conv.Temporary
		for _, msg := range o.conv.Messages {
			if msg.Role == model.RoleAssistant && msg.IsStreaming && msg.Age(now) > deadline {
				msg.ForceFinalize(StuckStreamText)
				stuck = append(stuck, msg)
			}
		}
	}
	o.mu.Unlock()

	if len(stuck) == 0 {
		return 0
	}

	if o.convPersistedNow() && !temporary {
		for _, msg := range stuck {
			if err := o.store.SaveMessage(convID, msg); err != nil {
				o.notify(LevelWarn, "Timed-out response could not be saved: "+err.Error())
			}
		}
	}
	o.notify(LevelWarn, "A response timed out and was closed.")
	return len(stuck)
}

// =============================================================================
// HYDRATION
// =============================================================================

// Hydrate loads a conversation's persisted messages into memory, unless a
// suppression condition holds. Returns skipped=true when in-memory state
// stayed authoritative.
//
// Suppression conditions, checked in order: submission lock held, active
// stream session, one-shot skip marker match (consumed), pending submission
// queued. A persisted read can resolve after the user has already started a
// new optimistic turn; without this guard the late read would overwrite
// newer in-memory state.
func (o *Orchestrator) Hydrate(convID string) (conv *model.Conversation, skipped bool, err error) {
	if o.lock.Held() {
		return o.Conversation(), true, nil
	}
	if o.hasActiveSession() {
		return o.Conversation(), true, nil
	}
	if o.skip.Consume(convID) {
		return o.Conversation(), true, nil
	}
	if !o.slot.IsEmpty() {
		return o.Conversation(), true, nil
	}

	loaded, err := o.store.GetConversation(convID)
	if err != nil {
		return nil, false, err
	}
	if loaded.SystemPrompt == "" {
		loaded.SystemPrompt = o.cfg.SystemPrompt
	}

	o.mu.Lock()
	o.conv = loaded
	o.convPersisted = true
	o.mu.Unlock()
	return loaded, false, nil
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

// Conversation returns the current in-memory conversation, or nil.
func (o *Orchestrator) Conversation() *model.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv
}

// StartNewConversation discards the current selection; the next send
// creates a fresh conversation. Temporary conversations are never listed
// and are purged on exit.
func (o *Orchestrator) StartNewConversation(temporary bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conv = nil
	o.convPersisted = false
	o.nextTemporary = temporary
}

// CommitResponse appends a user turn and a finalized assistant message
// produced outside the normal stream pipeline (compare mode) and persists
// both. The submission lock applies: a commit is a send as far as
// duplicate-prevention is concerned.
func (o *Orchestrator) CommitResponse(prompt, content string) error {
	if !o.lock.TryAcquire() {
		o.notify(LevelInfo, "A message is already being sent.")
		return ErrSubmissionBlocked
	}
	defer func() {
		o.endPipeline()
		o.lock.Release()
	}()

	if o.gate.Phase() != storage.PhaseReady {
		o.notify(LevelError, "Storage is unavailable. Restart to recover.")
		return ErrStorageUnavailable
	}

	o.mu.Lock()
	o.transitionLocked(StateSending)
	o.mu.Unlock()

	if err := o.ensurePersistedConversation(); err != nil {
		return err
	}

	o.mu.Lock()
	user := o.conv.AddUserMessage(prompt)
	asst := model.NewMessage(model.RoleAssistant, content)
	o.conv.AddMessage(asst)
	convID := o.conv.ID
	title := o.conv.Title
	temporary := o.conv.Temporary
	o.mu.Unlock()

	if temporary {
		return nil
	}
	if err := o.store.SaveMessage(convID, user); err != nil {
		return err
	}
	if err := o.store.UpdateTitle(convID, title); err != nil {
		o.notify(LevelWarn, "Title could not be saved: "+err.Error())
	}
	return o.store.SaveMessage(convID, asst)
}

// SetTitle renames the current conversation in memory and in the store.
func (o *Orchestrator) SetTitle(title string) error {
	o.mu.Lock()
	if o.conv == nil {
		o.mu.Unlock()
		return ErrNoActiveConversation
	}
	o.conv.SetTitle(title)
	convID := o.conv.ID
	persisted := o.convPersisted && !o.conv.Temporary
	o.mu.Unlock()

	if !persisted {
		return nil
	}
	return o.store.UpdateTitle(convID, title)
}

// ensureConversationLocked creates an in-memory conversation if none is
// selected; caller holds o.mu. Persistence happens later, once storage is
// ready.
func (o *Orchestrator) ensureConversationLocked() {
	if o.conv != nil {
		return
	}
	if o.nextTemporary {
		o.conv = model.NewTemporaryConversation()
	} else {
		o.conv = model.NewConversation()
	}
	o.conv.SystemPrompt = o.cfg.SystemPrompt
	o.convPersisted = false
	o.nextTemporary = false
}

// ensurePersistedConversation makes sure the current conversation exists in
// the store, creating it (and arming the hydration skip marker) on first
// send. A conversation created while queueing adopts the store-assigned id.
func (o *Orchestrator) ensurePersistedConversation() error {
	o.mu.Lock()
	o.ensureConversationLocked()
	conv := o.conv
	persisted := o.convPersisted
	o.mu.Unlock()

	if persisted || conv.Temporary {
		return nil
	}

	id, err := o.store.CreateConversation(conv.Title, false)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.conv.ID = id
	o.convPersisted = true
	o.mu.Unlock()

	// A brand-new conversation is selected before its first message is
	// persisted; suppress the next hydration for it.
	o.skip.Set(id)
	return nil
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// GatePhase returns the storage gate's phase for status display.
func (o *Orchestrator) GatePhase() storage.Phase {
	return o.gate.Phase()
}

// MessageView is a race-free snapshot of one message for rendering.
type MessageView struct {
	ID           string
	Role         model.Role
	Content      string
	IsStreaming  bool
	IsError      bool
	ResponseTime time.Duration
	TokenCount   int
	TokensPerSec float64
}

// MessageViews snapshots the current conversation for the view layer.
func (o *Orchestrator) MessageViews() []MessageView {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conv == nil {
		return nil
	}
	views := make([]MessageView, 0, len(o.conv.Messages))
	for _, msg := range o.conv.Messages {
		views = append(views, MessageView{
			ID:           msg.ID,
			Role:         msg.Role,
			Content:      msg.DisplayContent(),
			IsStreaming:  msg.IsStreaming,
			IsError:      msg.IsError,
			ResponseTime: msg.ResponseTime,
			TokenCount:   msg.TokenCount,
			TokensPerSec: msg.TokensPerSec,
		})
	}
	return views
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// transitionLocked moves the state machine; caller holds o.mu. Illegal
// transitions are surfaced as warnings and applied anyway: the new state
// reflects reality, the table is there to catch logic drift.
func (o *Orchestrator) transitionLocked(to State) {
	from := o.state
	if !canTransition(from, to) {
		o.state = to
		go o.notify(LevelWarn, fmt.Sprintf("unexpected state transition %s -> %s", from, to))
		return
	}
	o.state = to
}

// appendToken applies one token event to the assistant message.
func (o *Orchestrator) appendToken(asst *model.Message, token string, stats *model.Statistics) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stats.RecordFirstToken()
	asst.AppendToken(token)
}

// finalizeStream completes a message under the orchestrator mutex.
func (o *Orchestrator) finalizeStream(asst *model.Message, stats *model.Statistics) {
	o.mu.Lock()
	defer o.mu.Unlock()
	asst.FinalizeStream(stats)
}

// finalizeError completes a message in an error state.
func (o *Orchestrator) finalizeError(asst *model.Message, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	asst.FinalizeError(text)
}

// historySnapshot builds the transport history under the mutex.
func (o *Orchestrator) historySnapshot() []transport.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil {
		return nil
	}
	return o.conv.History()
}

// userTurns counts user messages in the current conversation.
func (o *Orchestrator) userTurns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil {
		return 0
	}
	return o.conv.UserTurns()
}

func (o *Orchestrator) setActive(session *transport.Session) {
	o.mu.Lock()
	o.active = session
	o.mu.Unlock()
}

func (o *Orchestrator) hasActiveSession() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

func (o *Orchestrator) convPersistedNow() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.convPersisted
}

func (o *Orchestrator) notify(level Level, text string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(level, text)
}

// transportErrorText maps a transport failure to user-facing content.
func transportErrorText(err error) string {
	switch {
	case transport.IsNotRunning(err):
		return "Cannot reach the model backend. Is it running?"
	case transport.IsTimeout(err):
		return "The model backend timed out."
	case errors.Is(err, context.Canceled):
		return "Request canceled."
	default:
		return "The response failed: " + err.Error()
	}
}
