// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newStreamServer returns a test server that streams the given words as
// ndjson chunks followed by a done marker.
func newStreamServer(t *testing.T, words []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, word := range words {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", word)
			flusher.Flush()
		}
		fmt.Fprintf(w, `{"message":{"role":"assistant","content":""},"done":true,"eval_count":%d}`+"\n", len(words))
		flusher.Flush()
	}))
}

func TestClient_OpenStreamsTokens(t *testing.T) {
	server := newStreamServer(t, []string{"Hello", " ", "world"})
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL, ConnectTimeout: 2 * time.Second})

	session, err := client.Open(context.Background(), []ChatMessage{NewUserMessage("hi")}, "test-model", Options{}, "req-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var content strings.Builder
	var terminal *Event
	for ev := range session.Events() {
		if ev.Terminal() {
			evCopy := ev
			terminal = &evCopy
			continue
		}
		content.WriteString(ev.Token)
	}

	if content.String() != "Hello world" {
		t.Errorf("accumulated content = %q, want %q", content.String(), "Hello world")
	}
	if terminal == nil {
		t.Fatal("no terminal event received")
	}
	if !terminal.Done || terminal.Err != nil {
		t.Errorf("terminal = %+v, want done", terminal)
	}
	if terminal.CompletionTokens != 3 {
		t.Errorf("CompletionTokens = %d, want 3", terminal.CompletionTokens)
	}
}

func TestClient_OpenBackendDown(t *testing.T) {
	// Port from a closed server: connection refused.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(&ClientConfig{BaseURL: url, ConnectTimeout: time.Second})

	_, err := client.Open(context.Background(), nil, "test-model", Options{}, "req-2")
	if err == nil {
		t.Fatal("expected error for unreachable backend")
	}
	if !IsNotRunning(err) {
		t.Errorf("expected not-running error, got %v", err)
	}
}

func TestClient_OpenHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL, ConnectTimeout: time.Second})

	_, err := client.Open(context.Background(), nil, "test-model", Options{}, "req-3")
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status: %v", err)
	}
}

func TestClient_CancelMidStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"message":{"content":"first"},"done":false}`)
		flusher.Flush()
		// Hold the stream open until the client cancels.
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(&ClientConfig{BaseURL: server.URL, ConnectTimeout: time.Second})

	session, err := client.Open(context.Background(), nil, "test-model", Options{}, "req-4")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Receive the first token, then cancel.
	select {
	case ev := <-session.Events():
		if ev.Token != "first" {
			t.Errorf("first event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no first token")
	}

	session.Cancel()

	// Channel must close without a terminal event.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if ev.Terminal() {
				t.Errorf("terminal event after cancel: %+v", ev)
			}
		case <-timeout:
			t.Fatal("channel did not close after cancel")
		}
	}
}

func TestClient_StreamEndsWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"cut"},"done":false}`)
		// Connection closes with no done marker.
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL, ConnectTimeout: time.Second})

	session, err := client.Open(context.Background(), nil, "test-model", Options{}, "req-5")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var sawError bool
	for ev := range session.Events() {
		if ev.Err != nil {
			sawError = true
		}
	}
	if !sawError {
		t.Error("truncated stream should produce an error terminal event")
	}
}

func TestCheckRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprintln(w, `{"models":[]}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{BaseURL: server.URL, ConnectTimeout: time.Second})
	if err := client.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning failed: %v", err)
	}
}
