// Package app contains the root application model. It is the document host:
// every process document is a tab whose content is pulled from the session.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wrap"

	"github.com/zjrosen/procview/internal/config"
	"github.com/zjrosen/procview/internal/controller"
	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/keys"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/pubsub"
	"github.com/zjrosen/procview/internal/registry"
	"github.com/zjrosen/procview/internal/session"
	"github.com/zjrosen/procview/internal/ui/styles"
	"github.com/zjrosen/procview/internal/watcher"
)

const promptTitle = "What is the command to run?"

// tab is one open document.
type tab struct {
	doc     document.Identity
	content string
	follow  bool
	offset  int
}

type runFinishedMsg struct {
	command string
	err     error
}

type configChangedMsg struct{}

// Model is the root application state.
type Model struct {
	session    *session.Session
	cfg        config.Config
	configPath string

	keys     keys.KeyMap
	help     help.Model
	prompt   textinput.Model
	viewport viewport.Model

	prompting bool
	tabs      []*tab
	active    int
	status    string

	width  int
	height int

	ctx      context.Context
	cancel   context.CancelFunc
	listener *pubsub.ContinuousListener[document.Identity]

	// Config watcher for live reload
	watcherHandle *watcher.Watcher
	configChanges <-chan struct{}
}

// New creates the application model. When configPath is set the file is
// watched and reloaded on change.
func New(sess *session.Session, cfg config.Config, configPath string) Model {
	ctx, cancel := context.WithCancel(context.Background())

	prompt := textinput.New()
	prompt.Placeholder = cfg.UI.Placeholder
	prompt.Prompt = "> "

	m := Model{
		session:    sess,
		cfg:        cfg,
		configPath: configPath,
		keys:       keys.DefaultKeyMap(),
		help:       help.New(),
		prompt:     prompt,
		viewport:   viewport.New(0, 0),
		ctx:        ctx,
		cancel:     cancel,
		listener:   pubsub.NewContinuousListener[document.Identity](ctx, sess.Provider()),
	}

	if configPath != "" {
		w, err := watcher.New(watcher.DefaultConfig(configPath))
		if err == nil {
			if ch, err := w.Start(); err == nil {
				m.watcherHandle = w
				m.configChanges = ch
			} else {
				_ = w.Stop()
				log.Warn(log.CatWatcher, "config reload disabled", "error", err)
			}
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.listener.Listen()}
	if m.configChanges != nil {
		cmds = append(cmds, waitForConfigChange(m.ctx, m.configChanges))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.layout()
		return m.refreshViewport(), nil

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateViewer(msg)

	case OpenDocumentMsg:
		if idx := m.findTab(msg.Doc); idx >= 0 {
			m.tabs[idx].content = m.session.ContentOf(msg.Doc)
		} else {
			m.tabs = append(m.tabs, &tab{
				doc:     msg.Doc,
				content: m.session.ContentOf(msg.Doc),
				follow:  true,
			})
		}
		return m.refreshViewport(), nil

	case ShowDocumentMsg:
		if idx := m.findTab(msg.Doc); idx >= 0 {
			m = m.switchTo(idx)
		}
		return m, nil

	case ResetSelectionMsg:
		if idx := m.findTab(msg.Doc); idx >= 0 {
			t := m.tabs[idx]
			t.follow = false
			t.offset = 0
			if idx == m.active {
				m.viewport.GotoTop()
			}
		}
		return m, nil

	case runFinishedMsg:
		switch {
		case msg.err == nil, errors.Is(msg.err, controller.ErrCancelled):
			m.status = ""
		default:
			log.ErrorErr(log.CatUI, "run failed", msg.err, "command", msg.command)
			m.status = msg.err.Error()
		}
		return m, nil

	case pubsub.Event[document.Identity]:
		m = m.handleDocumentEvent(msg)
		return m, m.listener.Listen()

	case configChangedMsg:
		m = m.reloadConfig()
		return m, waitForConfigChange(m.ctx, m.configChanges)
	}

	if m.prompting {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		command := m.prompt.Value()
		m = m.closePrompt()
		return m, m.runCommand(command)

	case key.Matches(msg, m.keys.Cancel):
		return m.closePrompt(), nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) updateViewer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NewCommand):
		m.prompting = true
		m.prompt.Reset()
		cmd := m.prompt.Focus()
		return m.layout(), cmd

	case key.Matches(msg, m.keys.CloseDoc):
		return m.closeActive(), nil

	case key.Matches(msg, m.keys.NextTab):
		if len(m.tabs) > 1 {
			m = m.switchTo((m.active + 1) % len(m.tabs))
		}
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		if len(m.tabs) > 1 {
			m = m.switchTo((m.active - 1 + len(m.tabs)) % len(m.tabs))
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleWrap):
		m.cfg.UI.Wrap = !m.cfg.UI.Wrap
		return m.refreshViewport(), nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m.layout(), nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		m.setFollow(false)
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		m.setFollow(true)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.setFollow(m.viewport.AtBottom())
	return m, cmd
}

func (m Model) closePrompt() Model {
	m.prompting = false
	m.prompt.Blur()
	m.prompt.Reset()
	return m.layout()
}

// runCommand runs the session off the event loop; the host calls back into
// the program with open, show and reset messages.
func (m Model) runCommand(command string) tea.Cmd {
	sess := m.session
	ctx := m.ctx
	return func() tea.Msg {
		_, err := sess.Run(ctx, command)
		return runFinishedMsg{command: command, err: err}
	}
}

func (m Model) closeActive() Model {
	if len(m.tabs) == 0 {
		return m
	}
	closed := m.tabs[m.active]
	m.tabs = append(m.tabs[:m.active:m.active], m.tabs[m.active+1:]...)
	if m.active >= len(m.tabs) && m.active > 0 {
		m.active--
	}
	m.session.DocumentClosed(closed.doc)
	log.Debug(log.CatUI, "document closed", "doc", closed.doc)

	if len(m.tabs) > 0 {
		m = m.restore(m.tabs[m.active])
	}
	return m.refreshViewport()
}

func (m Model) switchTo(idx int) Model {
	if idx == m.active || idx < 0 || idx >= len(m.tabs) {
		return m.refreshViewport()
	}
	if m.active < len(m.tabs) {
		m.tabs[m.active].offset = m.viewport.YOffset
	}
	m.active = idx
	return m.restore(m.tabs[idx])
}

func (m Model) restore(t *tab) Model {
	m.viewport.SetContent(m.render(t.content))
	if t.follow {
		m.viewport.GotoBottom()
	} else {
		m.viewport.SetYOffset(t.offset)
	}
	return m
}

func (m *Model) setFollow(follow bool) {
	if len(m.tabs) == 0 {
		return
	}
	t := m.tabs[m.active]
	t.follow = follow
	t.offset = m.viewport.YOffset
}

func (m Model) handleDocumentEvent(ev pubsub.Event[document.Identity]) Model {
	idx := m.findTab(ev.Payload)
	if idx < 0 {
		return m
	}

	switch ev.Type {
	case pubsub.ChangedEvent:
		m.tabs[idx].content = m.session.ContentOf(ev.Payload)
		if idx == m.active {
			m = m.refreshViewport()
		}
	case pubsub.ExitedEvent:
		log.Debug(log.CatUI, "process exited", "doc", ev.Payload)
	}
	return m
}

func (m Model) reloadConfig() Model {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		m.status = fmt.Sprintf("config: %v", err)
		return m
	}
	cfg, err := config.Parse(data)
	if err == nil {
		err = m.session.Apply(cfg)
	}
	if err != nil {
		log.ErrorErr(log.CatConfig, "config reload failed", err, "path", m.configPath)
		m.status = fmt.Sprintf("config: %v", err)
		return m
	}

	m.cfg = cfg
	m.prompt.Placeholder = cfg.UI.Placeholder
	m.status = "config reloaded"
	log.Info(log.CatConfig, "config reloaded", "path", m.configPath)
	return m.refreshViewport()
}

func (m Model) findTab(doc document.Identity) int {
	for i, t := range m.tabs {
		if t.doc.Equal(doc) {
			return i
		}
	}
	return -1
}

func (m Model) refreshViewport() Model {
	if len(m.tabs) == 0 {
		m.active = 0
		m.viewport.SetContent("")
		return m
	}
	t := m.tabs[m.active]
	m.viewport.SetContent(m.render(t.content))
	if t.follow {
		m.viewport.GotoBottom()
	}
	return m
}

// render prepares buffer content for display. The buffer itself is untouched.
func (m Model) render(content string) string {
	if m.cfg.StripANSI {
		content = ansi.Strip(content)
	}
	if m.cfg.UI.Wrap && m.viewport.Width > 0 {
		content = wrap.String(content, m.viewport.Width)
	}
	return content
}

func (m Model) layout() Model {
	h := m.height - 1 - lipgloss.Height(m.statusBar())
	if m.prompting {
		h -= 3
	}
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.help.Width = m.width
	if w := m.width - 6; w > 0 {
		m.prompt.Width = w
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	sections := []string{m.tabBar()}

	if len(m.tabs) == 0 {
		sections = append(sections, lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center,
			styles.EmptyStateStyle.Render("No documents. Press n to run a command.")))
	} else {
		sections = append(sections, m.viewport.View())
	}

	if m.prompting {
		sections = append(sections, styles.RenderWithTitleBorder(m.prompt.View(), promptTitle, m.width, true))
	}

	sections = append(sections, m.statusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) tabBar() string {
	if len(m.tabs) == 0 {
		return styles.TabStyle.Render("procview")
	}
	parts := make([]string, len(m.tabs))
	for i, t := range m.tabs {
		title := t.doc.Authority + " " + styles.TruncateString(t.doc.Title(), 24)
		if i == m.active {
			parts[i] = styles.TabActiveStyle.Render(title)
		} else {
			parts[i] = styles.TabStyle.Render(title)
		}
	}
	return styles.TruncateString(lipgloss.JoinHorizontal(lipgloss.Top, parts...), max(m.width, 1))
}

func (m Model) statusBar() string {
	var left []string
	if len(m.tabs) > 0 {
		t := m.tabs[m.active]
		left = append(left, styles.StatusBarStyle.Render(t.doc.URI()), m.processState(t.doc))
		if t.follow {
			left = append(left, styles.StatusBarStyle.Render("follow"))
		}
	}
	if m.status != "" {
		left = append(left, styles.ErrorStyle.Render(m.status))
	}

	line := strings.Join(left, "  ")
	return lipgloss.JoinVertical(lipgloss.Left, line, m.help.View(m.keys))
}

// processState describes the process behind doc for the status bar.
func (m Model) processState(doc document.Identity) string {
	id, ok := registry.ParseProcessID(doc.Authority)
	if !ok {
		return ""
	}
	inv, ok := m.session.Controller().Invocation(id)
	if !ok {
		return ""
	}
	if inv.State() == controller.StateFailed {
		return styles.ErrorStyle.Render("failed")
	}
	if code, exited := inv.Entry().ExitCode(); exited {
		return styles.DetachedStyle.Render(fmt.Sprintf("exited %d", code))
	}
	return styles.RunningStyle.Render(inv.State().String())
}

// Close releases resources held by the application. Processes are detached
// by the session, not here.
func (m *Model) Close() error {
	m.cancel()
	if m.watcherHandle != nil {
		return m.watcherHandle.Stop()
	}
	return nil
}

func waitForConfigChange(ctx context.Context, ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return configChangedMsg{}
		}
	}
}
