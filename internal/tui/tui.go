package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/pengelbrecht/runtask/internal/api"
	"github.com/pengelbrecht/runtask/internal/poller"
)

const defaultMaxLines = 10000

// Controller starts and stops polling sessions. *poller.Poller implements it.
type Controller interface {
	Start(ctx context.Context, taskID api.ID) (*poller.Session, error)
	Stop()
}

// Model is the output viewer for one task.
type Model struct {
	taskID   api.ID
	title    string
	ctl      Controller
	ctx      context.Context
	maxLines int

	// State
	status   string
	polling  bool
	session  *poller.Session
	outcome  *poller.Outcome
	err      error
	quitting bool
	showHelp bool

	lines    []string
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     viewerKeys

	width  int
	height int
}

// Config holds viewer configuration.
type Config struct {
	TaskID     api.ID
	Title      string
	Controller Controller

	// Context bounds every session the viewer starts. Defaults to
	// context.Background.
	Context context.Context

	// MaxLines caps the retained output; the oldest lines are dropped.
	MaxLines int
}

// New creates a viewer. Polling begins when the program runs Init.
func New(cfg Config) Model {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	maxLines := cfg.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		taskID:   cfg.TaskID,
		title:    cfg.Title,
		ctl:      cfg.Controller,
		ctx:      ctx,
		maxLines: maxLines,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		help:     help.New(),
		keys:     newViewerKeys(),
	}
}

// Message types delivered by ProgramDisplay and the session commands.
type (
	// LineMsg appends one line of output.
	LineMsg string

	// ClearMsg empties the output.
	ClearMsg struct{}

	// StatusMsg carries a status observed by the poller.
	StatusMsg struct {
		TaskID api.ID
		Status string
	}

	sessionStartedMsg struct {
		session *poller.Session
	}

	sessionDoneMsg struct {
		session *poller.Session
		outcome poller.Outcome
	}

	startFailedMsg struct {
		err error
	}
)

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.startCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Stop):
			if !m.polling {
				return m, nil
			}
			return m, m.stopCmd()
		case key.Matches(msg, m.keys.Restart):
			m.outcome = nil
			m.err = nil
			return m, m.startCmd()
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case LineMsg:
		m.appendLine(string(msg))
		return m, nil

	case ClearMsg:
		m.lines = m.lines[:0]
		m.refresh(true)
		return m, nil

	case StatusMsg:
		if msg.TaskID == m.taskID {
			m.status = msg.Status
		}
		return m, nil

	case sessionStartedMsg:
		m.session = msg.session
		m.polling = true
		return m, tea.Batch(waitCmd(msg.session), m.spinner.Tick)

	case sessionDoneMsg:
		// A restart supersedes the previous session; its end is not ours.
		if msg.session != m.session {
			return m, nil
		}
		m.polling = false
		outcome := msg.outcome
		m.outcome = &outcome
		if outcome.Status != "" {
			m.status = outcome.Status
		}
		return m, nil

	case startFailedMsg:
		m.polling = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.polling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	view := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderOutputPanel(),
		m.renderFooter(),
	)
	if m.showHelp {
		return m.renderHelpOverlay(view)
	}
	return view
}

// Outcome returns how the last session ended, or nil while it is running.
func (m Model) Outcome() *poller.Outcome {
	return m.outcome
}

// Err returns the error from the last failed start, if any.
func (m Model) Err() error {
	return m.err
}

func (m Model) startCmd() tea.Cmd {
	ctl, ctx, taskID := m.ctl, m.ctx, m.taskID
	return func() tea.Msg {
		s, err := ctl.Start(ctx, taskID)
		if err != nil {
			return startFailedMsg{err: err}
		}
		return sessionStartedMsg{session: s}
	}
}

func (m Model) stopCmd() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctl.Stop()
		return nil
	}
}

func waitCmd(s *poller.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Done()
		return sessionDoneMsg{session: s, outcome: s.Outcome()}
	}
}

// resize fits the output panel to the window: one header line, one footer
// line and the panel border.
func (m *Model) resize() {
	width := m.width - 2
	if width < minWidth {
		width = minWidth
	}
	height := m.height - 4
	if height < minHeight {
		height = minHeight
	}
	follow := m.viewport.AtBottom()
	m.viewport.Width = width
	m.viewport.Height = height
	m.refresh(follow)
}

func (m *Model) appendLine(line string) {
	follow := m.viewport.AtBottom()
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
	m.refresh(follow)
}

// refresh re-renders the content, wrapping lines to the panel width.
func (m *Model) refresh(follow bool) {
	width := m.viewport.Width
	var b strings.Builder
	for i, line := range m.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if width > 0 && ansi.StringWidth(line) > width {
			line = ansi.Hardwrap(line, width, true)
		}
		b.WriteString(line)
	}
	m.viewport.SetContent(b.String())
	if follow {
		m.viewport.GotoBottom()
	}
}
