// lantern - a terminal chat client for local LLM backends.
//
// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternchat/lantern-tui/internal/config"
	"github.com/lanternchat/lantern-tui/internal/orchestrator"
	"github.com/lanternchat/lantern-tui/internal/storage"
	"github.com/lanternchat/lantern-tui/internal/transport"
	"github.com/lanternchat/lantern-tui/internal/ui/chat"
	"github.com/lanternchat/lantern-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	modelFlag := flag.String("model", "", "model to chat with (overrides config)")
	dbFlag := flag.String("db", "", "conversation database path (overrides config)")
	tempFlag := flag.Bool("temp", false, "start a temporary conversation (not persisted)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lantern %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lantern: %v\n", err)
		os.Exit(1)
	}
	if *modelFlag != "" {
		cfg.Backend.Model = *modelFlag
	}
	if *dbFlag != "" {
		cfg.Storage.DatabasePath = *dbFlag
	}

	if err := run(cfg, *tempFlag); err != nil {
		fmt.Fprintf(os.Stderr, "lantern: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, temporary bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage opens in the background behind the readiness gate; the UI
	// starts immediately and submissions queue until the store is ready.
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return fmt.Errorf("resolving database path: %w", err)
	}
	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	store := storage.NewSQLiteStore(dbPath)
	defer store.Close()

	gate := storage.NewGate(store, cfg.ReadyTimeout())

	client := transport.NewClient(&transport.ClientConfig{
		BaseURL:           cfg.Backend.BaseURL,
		ConnectTimeout:    cfg.ConnectTimeout(),
		RequestsPerMinute: cfg.Backend.RequestsPerMinute,
	})

	notifier := &programNotifier{}

	orch := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Gate:      gate,
		Transport: client,
		Notifier:  notifier,
	}, orchestrator.Config{
		Model:        cfg.Backend.Model,
		SystemPrompt: cfg.Backend.SystemPrompt,
		Options: transport.Options{
			Temperature: cfg.Backend.Temperature,
			MaxTokens:   cfg.Backend.MaxTokens,
		},
		QueueExpiry:    cfg.QueueExpiry(),
		LockTimeout:    cfg.LockTimeout(),
		SweepInterval:  cfg.SweepInterval(),
		StuckDeadline:  cfg.StuckDeadline(),
		MaxRetries:     cfg.Send.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay(),
	})

	if temporary {
		orch.StartNewConversation(true)
	}
	orch.Start(ctx)

	theme := styles.NewTheme()
	chatModel := chat.New(theme, orch, store, client, chat.Config{
		Model:          cfg.Backend.Model,
		SystemPrompt:   cfg.Backend.SystemPrompt,
		Options:        transport.Options{Temperature: cfg.Backend.Temperature, MaxTokens: cfg.Backend.MaxTokens},
		CompareTargets: cfg.Compare.Targets,
		ShowStats:      cfg.UI.ShowStats,
		Markdown:       cfg.UI.Markdown,
	})

	program := tea.NewProgram(chatModel, tea.WithAltScreen(), tea.WithMouseCellMotion())
	notifier.set(program)

	// Reload config on file change. Most settings take effect on restart;
	// the notice keeps the user from wondering why nothing moved.
	if path, err := config.Path(); err == nil {
		if w, err := config.NewWatcher(path, 250*time.Millisecond, func(*config.Config) {
			program.Send(chat.NoticeMsg{
				Level: orchestrator.LevelInfo,
				Text:  "config reloaded; some changes need a restart",
			})
		}); err == nil {
			if w.Watch() == nil {
				defer w.Close()
			}
		}
	}

	_, err = program.Run()
	return err
}

// programNotifier bridges orchestrator notices into the Bubble Tea event
// loop. Notices may fire before the program exists; those are dropped.
type programNotifier struct {
	mu      sync.Mutex
	program *tea.Program
}

func (n *programNotifier) set(p *tea.Program) {
	n.mu.Lock()
	n.program = p
	n.mu.Unlock()
}

func (n *programNotifier) Notify(level orchestrator.Level, text string) {
	n.mu.Lock()
	p := n.program
	n.mu.Unlock()
	if p != nil {
		p.Send(chat.NoticeMsg{Level: level, Text: text})
	}
}
