// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lanternchat/lantern-tui/internal/model"
	"github.com/lanternchat/lantern-tui/internal/storage"
	"github.com/lanternchat/lantern-tui/internal/transport"
)

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

// memStore is an in-memory storage.Store with scriptable initialization.
type memStore struct {
	mu      sync.Mutex
	initCh  chan struct{} // Initialize blocks until closed, when non-nil
	initErr error
	ready   bool
	nextID  int
	convs   map[string]*memConv
}

type memConv struct {
	id        string
	title     string
	temporary bool
	msgs      []*model.Message
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*memConv)}
}

func (s *memStore) Initialize(ctx context.Context) error {
	if s.initCh != nil {
		select {
		case <-s.initCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.initErr != nil {
		return s.initErr
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *memStore) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *memStore) CreateConversation(title string, temporary bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return "", storage.ErrNotReady
	}
	s.nextID++
	id := fmt.Sprintf("conv_%04d", s.nextID)
	s.convs[id] = &memConv{id: id, title: title, temporary: temporary}
	return id, nil
}

func (s *memStore) GetConversation(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, storage.ErrNotReady
	}
	mc, ok := s.convs[id]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}
	conv := &model.Conversation{ID: mc.id, Title: mc.title, Temporary: mc.temporary}
	conv.Messages = append(conv.Messages, mc.msgs...)
	return conv, nil
}

func (s *memStore) SaveMessage(convID string, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return storage.ErrNotReady
	}
	mc, ok := s.convs[convID]
	if !ok {
		return storage.ErrConversationNotFound
	}
	if msg.IsStreaming {
		return storage.ErrMessageStreaming
	}
	for i, existing := range mc.msgs {
		if existing.ID == msg.ID {
			mc.msgs[i] = msg
			return nil
		}
	}
	mc.msgs = append(mc.msgs, msg)
	return nil
}

func (s *memStore) UpdateTitle(convID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return storage.ErrNotReady
	}
	mc, ok := s.convs[convID]
	if !ok {
		return storage.ErrConversationNotFound
	}
	mc.title = title
	return nil
}

func (s *memStore) ListConversations() ([]model.ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, storage.ErrNotReady
	}
	var metas []model.ConversationMeta
	for _, mc := range s.convs {
		if mc.temporary {
			continue
		}
		metas = append(metas, model.ConversationMeta{
			ID: mc.id, Title: mc.title, MessageCount: len(mc.msgs),
		})
	}
	return metas, nil
}

func (s *memStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return storage.ErrConversationNotFound
	}
	delete(s.convs, id)
	return nil
}

func (s *memStore) Close() error { return nil }

// savedMessages returns persisted messages for a conversation.
func (s *memStore) savedMessages(convID string) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mc, ok := s.convs[convID]; ok {
		return append([]*model.Message(nil), mc.msgs...)
	}
	return nil
}

// =============================================================================
// SCRIPTED TRANSPORT
// =============================================================================

// streamScript describes one session's behavior.
type streamScript struct {
	tokens  []string
	err     error         // terminal error instead of done
	hang    bool          // never send a terminal event
	started chan struct{} // closed when the producer starts, when non-nil
	proceed chan struct{} // producer waits here before the terminal, when non-nil
}

// scriptedTransport plays one streamScript per Open call, repeating the last
// script when calls outnumber scripts.
type scriptedTransport struct {
	mu      sync.Mutex
	scripts []*streamScript
	opens   int
	panics  bool // Open panics instead of streaming

	// histories records the history passed to each Open.
	histories [][]transport.ChatMessage
}

func (t *scriptedTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *scriptedTransport) Open(ctx context.Context, history []transport.ChatMessage, modelName string, opts transport.Options, requestID string) (*transport.Session, error) {
	t.mu.Lock()
	t.opens++
	t.histories = append(t.histories, history)
	var script *streamScript
	if len(t.scripts) > 0 {
		idx := t.opens - 1
		if idx >= len(t.scripts) {
			idx = len(t.scripts) - 1
		}
		script = t.scripts[idx]
	}
	panics := t.panics
	t.mu.Unlock()

	if panics {
		panic("transport exploded")
	}
	if script == nil {
		script = &streamScript{}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	session := transport.NewSession(requestID, cancel)

	go func() {
		defer session.Close()
		if script.started != nil {
			close(script.started)
		}
		for _, tok := range script.tokens {
			if !session.Send(streamCtx, transport.Event{Token: tok}) {
				return
			}
		}
		if script.proceed != nil {
			select {
			case <-script.proceed:
			case <-streamCtx.Done():
				return
			}
		}
		if script.hang {
			<-streamCtx.Done()
			return
		}
		if script.err != nil {
			session.Send(streamCtx, transport.Event{Err: script.err})
			return
		}
		session.Send(streamCtx, transport.Event{Done: true, CompletionTokens: len(script.tokens)})
	}()

	return session, nil
}

// =============================================================================
// NOTICE RECORDER / CREDITS
// =============================================================================

type recordedNotice struct {
	level Level
	text  string
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (n *noticeRecorder) Notify(level Level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{level, text})
}

func (n *noticeRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type fakeCredits struct {
	mu      sync.Mutex
	allowed bool
	reason  string
	used    int
}

func (c *fakeCredits) CheckCredits(kind string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowed, c.reason
}

func (c *fakeCredits) UseFeature(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allowed {
		c.used++
	}
	return c.allowed
}

// =============================================================================
// HARNESS
// =============================================================================

// fastConfig returns a config with millisecond-scale timings for tests.
func fastConfig() Config {
	return Config{
		Model:          "test-model",
		QueueExpiry:    time.Second,
		LockTimeout:    5 * time.Second,
		SweepInterval:  time.Hour, // sweeps triggered manually unless a test opts in
		StuckDeadline:  time.Hour,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}
}

// harness bundles an orchestrator with its fakes.
type harness struct {
	orch    *Orchestrator
	store   *memStore
	tp      *scriptedTransport
	gate    *storage.Gate
	notices *noticeRecorder
	cancel  context.CancelFunc
}

// newHarness builds a started orchestrator. Tweak the config and store
// through the setup callback before Start.
func newHarness(setup func(cfg *Config, store *memStore, tp *scriptedTransport)) *harness {
	store := newMemStore()
	tp := &scriptedTransport{}
	cfg := fastConfig()
	if setup != nil {
		setup(&cfg, store, tp)
	}

	gate := NewGateForTest(store, cfg)
	notices := &noticeRecorder{}
	orch := New(Deps{
		Store:     store,
		Gate:      gate,
		Transport: tp,
		Notifier:  notices,
	}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)

	return &harness{orch: orch, store: store, tp: tp, gate: gate, notices: notices, cancel: cancel}
}

// NewGateForTest builds the gate with the harness config's ready timeout.
func NewGateForTest(store storage.Store, cfg Config) *storage.Gate {
	return storage.NewGate(store, 2*time.Second)
}

func (h *harness) close() {
	h.cancel()
}

// waitReady blocks until the gate is ready.
func (h *harness) waitReady() error {
	return h.gate.Wait(context.Background())
}
