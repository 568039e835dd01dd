// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lanternchat/lantern-tui/internal/model"
)

// newTestStore returns an initialized store backed by a temp database.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// finalizedAssistantMessage builds a finalized assistant message with the
// given content.
func finalizedAssistantMessage(content string) *model.Message {
	msg := model.NewAssistantMessage()
	msg.AppendToken(content)
	msg.FinalizeStream(nil)
	return msg
}

func TestSQLiteStore_NotReadyBeforeInitialize(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))

	if store.IsReady() {
		t.Fatal("store should not be ready before Initialize")
	}

	_, err := store.CreateConversation("x", false)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("CreateConversation error = %v, want ErrNotReady", err)
	}
	_, err = store.ListConversations()
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("ListConversations error = %v, want ErrNotReady", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateConversation("my chat", false)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	user := model.NewUserMessage("what is a goroutine?")
	if err := store.SaveMessage(id, user); err != nil {
		t.Fatalf("SaveMessage(user) failed: %v", err)
	}

	asst := finalizedAssistantMessage("a lightweight thread")
	asst.ResponseTime = 1500 * time.Millisecond
	asst.TokenCount = 4
	if err := store.SaveMessage(id, asst); err != nil {
		t.Fatalf("SaveMessage(assistant) failed: %v", err)
	}

	conv, err := store.GetConversation(id)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.Title != "my chat" {
		t.Errorf("Title = %q", conv.Title)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[1].Role != model.RoleAssistant {
		t.Error("messages out of order")
	}
	if conv.Messages[1].Content != "a lightweight thread" {
		t.Errorf("assistant content = %q", conv.Messages[1].Content)
	}
	if conv.Messages[1].ResponseTime != 1500*time.Millisecond {
		t.Errorf("ResponseTime = %v", conv.Messages[1].ResponseTime)
	}
	if conv.Messages[1].TokenCount != 4 {
		t.Errorf("TokenCount = %d", conv.Messages[1].TokenCount)
	}
}

func TestSQLiteStore_SaveMessageRejectsStreaming(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateConversation("", false)

	streaming := model.NewAssistantMessage()
	err := store.SaveMessage(id, streaming)
	if !errors.Is(err, ErrMessageStreaming) {
		t.Errorf("error = %v, want ErrMessageStreaming", err)
	}
}

func TestSQLiteStore_SaveMessageUpsert(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateConversation("", false)

	msg := model.NewUserMessage("first")
	if err := store.SaveMessage(id, msg); err != nil {
		t.Fatal(err)
	}

	// Saving the same ID again updates in place, not duplicates.
	msg.Content = "edited"
	if err := store.SaveMessage(id, msg); err != nil {
		t.Fatal(err)
	}

	conv, err := store.GetConversation(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("message count = %d, want 1", len(conv.Messages))
	}
	if conv.Messages[0].Content != "edited" {
		t.Errorf("content = %q, want edited", conv.Messages[0].Content)
	}
}

func TestSQLiteStore_SaveMessageUnknownConversation(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveMessage("conv_missing", model.NewUserMessage("hi"))
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("error = %v, want ErrConversationNotFound", err)
	}
}

func TestSQLiteStore_UpdateTitle(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateConversation("old", false)

	if err := store.UpdateTitle(id, "new title"); err != nil {
		t.Fatal(err)
	}
	conv, _ := store.GetConversation(id)
	if conv.Title != "new title" {
		t.Errorf("Title = %q", conv.Title)
	}

	err := store.UpdateTitle("conv_missing", "x")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("error = %v, want ErrConversationNotFound", err)
	}
}

func TestSQLiteStore_ListExcludesTemporary(t *testing.T) {
	store := newTestStore(t)

	kept, _ := store.CreateConversation("kept", false)
	store.SaveMessage(kept, model.NewUserMessage("a question that shows up as the preview"))
	store.CreateConversation("scratch", true)

	metas, err := store.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Fatalf("list length = %d, want 1 (temporary excluded)", len(metas))
	}
	if metas[0].ID != kept {
		t.Errorf("listed ID = %q, want %q", metas[0].ID, kept)
	}
	if metas[0].MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", metas[0].MessageCount)
	}
	if metas[0].Preview == "" {
		t.Error("preview should come from the first user message")
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.CreateConversation("", false)
	store.SaveMessage(id, model.NewUserMessage("hi"))

	if err := store.DeleteConversation(id); err != nil {
		t.Fatal(err)
	}
	_, err := store.GetConversation(id)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("error = %v, want ErrConversationNotFound", err)
	}

	err = store.DeleteConversation(id)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("double delete error = %v, want ErrConversationNotFound", err)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.db")

	store := NewSQLiteStore(path)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	id, _ := store.CreateConversation("persisted", false)
	store.SaveMessage(id, model.NewUserMessage("hello"))
	store.Close()

	reopened := NewSQLiteStore(path)
	if err := reopened.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	conv, err := reopened.GetConversation(id)
	if err != nil {
		t.Fatalf("GetConversation after reopen failed: %v", err)
	}
	if conv.Title != "persisted" || len(conv.Messages) != 1 {
		t.Errorf("conversation did not survive reopen: %+v", conv)
	}
}

func TestSQLiteStore_ClosePurgesTemporary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.db")

	store := NewSQLiteStore(path)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	tempID, _ := store.CreateConversation("scratch", true)
	store.Close()

	reopened := NewSQLiteStore(path)
	if err := reopened.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	_, err := reopened.GetConversation(tempID)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("temporary conversation survived Close: err = %v", err)
	}
}

func TestExportMarkdown(t *testing.T) {
	conv := model.NewConversation()
	conv.AddUserMessage("question")
	asst := conv.AddAssistantMessage()
	asst.AppendToken("answer")

	// Streaming messages are excluded from exports.
	md := ExportMarkdown(conv)
	if !strings.Contains(md, "question") {
		t.Error("export missing user content")
	}
	if strings.Contains(md, "answer") {
		t.Error("export should exclude streaming content")
	}

	asst.FinalizeStream(nil)
	md = ExportMarkdown(conv)
	if !strings.Contains(md, "answer") {
		t.Error("export missing finalized assistant content")
	}
	if !strings.Contains(md, "**You**") || !strings.Contains(md, "**Assistant**") {
		t.Error("export missing role labels")
	}
}
