// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/lanternchat/lantern-tui/internal/compare"
	"github.com/lanternchat/lantern-tui/internal/model"
	"github.com/lanternchat/lantern-tui/internal/orchestrator"
	"github.com/lanternchat/lantern-tui/internal/storage"
	"github.com/lanternchat/lantern-tui/internal/transport"
	"github.com/lanternchat/lantern-tui/internal/ui/components"
	"github.com/lanternchat/lantern-tui/internal/ui/styles"
)

// =============================================================================
// VIEW MODE
// =============================================================================

// mode selects which surface is on screen.
type mode int

const (
	modeChat    mode = iota // main conversation view
	modePicker              // conversation list overlay
	modeCompare             // model comparison overlay
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Config carries the UI-facing settings.
type Config struct {
	Model          string
	SystemPrompt   string
	Options        transport.Options
	CompareTargets []string
	ShowStats      bool
	Markdown       bool
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	cfg   Config
	theme *styles.Theme

	orch      *orchestrator.Orchestrator
	store     storage.Store
	transport transport.Transport

	width  int
	height int
	mode   mode

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	toasts   *components.ToastManager

	// Markdown renderer for finalized assistant messages. Rebuilt on resize.
	markdown *glamour.TermRenderer

	// Pipeline tracking. submitting means a Submit goroutine is running;
	// refreshing means the render tick loop is scheduled.
	submitting bool
	refreshing bool
	sendStart  time.Time

	// Picker state.
	pickerMetas []model.ConversationMeta
	pickerIndex int

	// Comparison state.
	comparator    *compare.Comparator
	comparePrompt string
	compareIndex  int

	statusMsg string
}

// New creates the chat model.
func New(theme *styles.Theme, orch *orchestrator.Orchestrator, store storage.Store, tp transport.Transport, cfg Config) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, or /help for commands"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)

	return Model{
		cfg:       cfg,
		theme:     theme,
		orch:      orch,
		store:     store,
		transport: tp,
		viewport:  vp,
		input:     ti,
		spinner:   components.NewSpinner(theme),
		toasts:    components.NewToastManager(),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, refreshTickCmd())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case NoticeMsg:
		m.toasts.Add(msg.Level, msg.Text)
		m.refreshViewport()
		return m, components.ToastTickCmd()

	case SubmitDoneMsg:
		return m.handleSubmitDone(msg)

	case RefreshTickMsg:
		return m.handleRefreshTick()

	case ConversationListMsg:
		return m.handleConversationList(msg)

	case HydratedMsg:
		return m.handleHydrated(msg)

	case ExportDoneMsg:
		return m.handleExportDone(msg)

	case CompareFinishedMsg:
		m.statusMsg = "comparison finished; /use <n> to keep a response"
		return m, nil

	case CommitDoneMsg:
		return m.handleCommitDone(msg)

	case components.ToastTickMsg:
		if m.toasts.Expire() {
			return m, components.ToastTickCmd()
		}
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		if m.streamingNow() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	default:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
}

// View renders the current surface.
func (m Model) View() string {
	switch m.mode {
	case modePicker:
		return m.renderPicker()
	case modeCompare:
		return m.renderCompare()
	default:
		return m.renderChat()
	}
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Ctrl+Q always quits.
	if key == "ctrl+q" {
		return m, tea.Quit
	}

	switch m.mode {
	case modePicker:
		return m.handlePickerKey(key)
	case modeCompare:
		return m.handleCompareKey(key)
	}

	switch key {
	case "esc":
		// Esc cancels the active stream; the partial response is kept.
		if m.orch.CancelActive() {
			m.statusMsg = "canceled"
			return m, nil
		}
		return m, nil

	case "ctrl+c":
		if m.orch.CancelActive() {
			m.statusMsg = "canceled"
			return m, nil
		}
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		return m.submit(text)

	case "pgup", "ctrl+u":
		m.viewport.HalfViewUp()
		return m, nil

	case "pgdown", "ctrl+d":
		m.viewport.HalfViewDown()
		return m, nil

	case "up":
		m.viewport.LineUp(1)
		return m, nil

	case "down":
		m.viewport.LineDown(1)
		return m, nil

	case "home":
		m.viewport.GotoTop()
		return m, nil

	case "end":
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc", "q":
		m.mode = modeChat
		m.input.Focus()
		return m, textinput.Blink

	case "up", "k":
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
		return m, nil

	case "down", "j":
		if m.pickerIndex < len(m.pickerMetas)-1 {
			m.pickerIndex++
		}
		return m, nil

	case "enter":
		if m.pickerIndex < len(m.pickerMetas) {
			id := m.pickerMetas[m.pickerIndex].ID
			m.mode = modeChat
			m.input.Focus()
			return m, tea.Batch(m.hydrateCmd(id), textinput.Blink)
		}
		return m, nil

	case "d":
		if m.pickerIndex < len(m.pickerMetas) {
			return m, m.deleteCmd(m.pickerMetas[m.pickerIndex].ID)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleCompareKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		if m.comparator != nil && m.comparator.Running() {
			m.comparator.CancelAll()
			m.statusMsg = "comparison canceled"
			return m, nil
		}
		m.mode = modeChat
		m.comparator = nil
		m.input.Focus()
		return m, textinput.Blink

	case "left", "h":
		if m.compareIndex > 0 {
			m.compareIndex--
		}
		return m, nil

	case "right", "l":
		if m.comparator != nil && m.compareIndex < len(m.comparator.Views())-1 {
			m.compareIndex++
		}
		return m, nil

	case "enter":
		return m.useCompareResponse(m.compareIndex)
	}

	return m, nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// submit hands the text to the orchestrator in its own goroutine. The
// pipeline owns the submission lock; the UI just re-renders on ticks.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if m.submitting {
		m.statusMsg = "a message is already in flight"
		return m, nil
	}

	m.submitting = true
	m.sendStart = time.Now()
	m.statusMsg = ""

	orch := m.orch
	submitCmd := func() tea.Msg {
		return SubmitDoneMsg{Err: orch.Submit(context.Background(), text)}
	}

	cmds := []tea.Cmd{submitCmd, m.spinner.Tick}
	if !m.refreshing {
		m.refreshing = true
		cmds = append(cmds, refreshTickCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleSubmitDone(msg SubmitDoneMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.Err != nil {
		m.toasts.Add(orchestrator.LevelError, submitErrorText(msg.Err))
	}
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, components.ToastTickCmd()
}

func (m Model) handleRefreshTick() (tea.Model, tea.Cmd) {
	m.refreshViewport()
	if m.activeWork() {
		m.viewport.GotoBottom()
		return m, refreshTickCmd()
	}
	m.refreshing = false
	return m, nil
}

// activeWork reports whether anything on screen is still changing on its
// own: an in-flight pipeline, a queued submission, or a running comparison.
func (m Model) activeWork() bool {
	if m.submitting || m.orch.State() != orchestrator.StateIdle {
		return true
	}
	if m.orch.GatePhase() == storage.PhaseConnecting {
		return true
	}
	return m.comparator != nil && m.comparator.Running()
}

func (m Model) streamingNow() bool {
	s := m.orch.State()
	return s == orchestrator.StateSending || s == orchestrator.StateStreaming || s == orchestrator.StateRecovering
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// header + input area + status bar
	const reservedHeight = 5
	vpHeight := m.height - reservedHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight

	inputWidth := m.width - 8
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	if m.cfg.Markdown {
		wrap := m.width - 4
		if wrap < 20 {
			wrap = 20
		}
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap)); err == nil {
			m.markdown = r
		}
	}

	m.refreshViewport()
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// BACKGROUND COMMANDS
// =============================================================================

// deleteCmd removes a stored conversation and refreshes the picker.
func (m Model) deleteCmd(convID string) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if err := store.DeleteConversation(convID); err != nil {
			return ConversationListMsg{Err: err}
		}
		metas, err := store.ListConversations()
		return ConversationListMsg{Metas: metas, Err: err}
	}
}

func (m Model) hydrateCmd(convID string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		_, skipped, err := orch.Hydrate(convID)
		return HydratedMsg{Skipped: skipped, Err: err}
	}
}

func (m Model) handleHydrated(msg HydratedMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Err != nil:
		m.toasts.Add(orchestrator.LevelError, "resume failed: "+msg.Err.Error())
		return m, components.ToastTickCmd()
	case msg.Skipped:
		m.toasts.Add(orchestrator.LevelWarn, "busy; conversation not reloaded")
		return m, components.ToastTickCmd()
	}
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) handleConversationList(msg ConversationListMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.toasts.Add(orchestrator.LevelError, "list failed: "+msg.Err.Error())
		return m, components.ToastTickCmd()
	}
	if len(msg.Metas) == 0 {
		m.mode = modeChat
		m.pickerMetas = nil
		m.input.Focus()
		m.statusMsg = "no saved conversations"
		return m, textinput.Blink
	}
	m.pickerMetas = msg.Metas
	m.pickerIndex = 0
	m.mode = modePicker
	m.input.Blur()
	return m, nil
}

func (m Model) handleExportDone(msg ExportDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.toasts.Add(orchestrator.LevelError, "export failed: "+msg.Err.Error())
	} else {
		m.toasts.Add(orchestrator.LevelInfo, "exported to "+msg.Path)
	}
	return m, components.ToastTickCmd()
}

func (m Model) handleCommitDone(msg CommitDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.toasts.Add(orchestrator.LevelError, "commit failed: "+msg.Err.Error())
		return m, components.ToastTickCmd()
	}
	m.mode = modeChat
	m.comparator = nil
	m.input.Focus()
	m.statusMsg = "kept response from " + msg.Target
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, textinput.Blink
}

// submitErrorText maps pipeline errors to user-facing text.
func submitErrorText(err error) string {
	if orchestrator.IsCreditDenied(err) {
		return err.Error() + ". Upgrade your plan to keep chatting."
	}
	return err.Error()
}
