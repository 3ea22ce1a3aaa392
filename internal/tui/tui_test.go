package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pengelbrecht/runtask/internal/api"
	"github.com/pengelbrecht/runtask/internal/poller"
)

type fakeController struct {
	mu      sync.Mutex
	starts  []api.ID
	stops   int
	session *poller.Session
	err     error
}

func (f *fakeController) Start(_ context.Context, taskID api.ID) (*poller.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, taskID)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// applyMsg sends a message to the model and returns the updated model.
func applyMsg(m Model, msg tea.Msg) Model {
	newModel, _ := m.Update(msg)
	return newModel.(Model)
}

func newTestModel(ctl *fakeController) Model {
	return New(Config{TaskID: "42", Title: "Ping", Controller: ctl})
}

func TestNew(t *testing.T) {
	m := newTestModel(&fakeController{})

	if m.taskID != "42" {
		t.Errorf("expected taskID '42', got '%s'", m.taskID)
	}
	if m.maxLines != defaultMaxLines {
		t.Errorf("expected maxLines %d, got %d", defaultMaxLines, m.maxLines)
	}
	if m.ctx == nil {
		t.Error("expected a default context")
	}
	if m.polling {
		t.Error("expected polling to be false before Init")
	}
}

func TestInitStartsPolling(t *testing.T) {
	ctl := &fakeController{session: &poller.Session{}}
	m := newTestModel(ctl)

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("expected Init to return a start command")
	}
	msg := cmd()
	started, ok := msg.(sessionStartedMsg)
	if !ok {
		t.Fatalf("expected sessionStartedMsg, got %T", msg)
	}
	if started.session != ctl.session {
		t.Error("expected the controller's session")
	}
	if len(ctl.starts) != 1 || ctl.starts[0] != "42" {
		t.Errorf("expected one start for task 42, got %v", ctl.starts)
	}

	m = applyMsg(m, msg)
	if !m.polling {
		t.Error("expected polling after session start")
	}
}

func TestInitStartError(t *testing.T) {
	ctl := &fakeController{err: errors.New("boom")}
	m := newTestModel(ctl)

	msg := m.Init()()
	if _, ok := msg.(startFailedMsg); !ok {
		t.Fatalf("expected startFailedMsg, got %T", msg)
	}
	m = applyMsg(m, msg)

	if m.Err() == nil {
		t.Fatal("expected error to be recorded")
	}
	if !strings.Contains(m.View(), "boom") {
		t.Error("expected the error in the footer")
	}
}

func TestUpdateQuit(t *testing.T) {
	m := newTestModel(&fakeController{})

	newModel, cmd := m.Update(keyRune('q'))
	model := newModel.(Model)
	if !model.quitting {
		t.Error("expected quitting to be true after 'q' key")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
	if model.View() != "" {
		t.Error("expected empty view after quitting")
	}
}

func TestUpdateCtrlC(t *testing.T) {
	m := newTestModel(&fakeController{})

	newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !newModel.(Model).quitting {
		t.Error("expected quitting to be true after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestUpdateLinesAndClear(t *testing.T) {
	m := newTestModel(&fakeController{})

	m = applyMsg(m, LineMsg("first"))
	m = applyMsg(m, LineMsg("second"))
	if len(m.lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(m.lines))
	}
	if !strings.Contains(m.View(), "second") {
		t.Error("expected output in the view")
	}

	m = applyMsg(m, ClearMsg{})
	if len(m.lines) != 0 {
		t.Errorf("expected no lines after clear, got %d", len(m.lines))
	}
}

func TestUpdateMaxLines(t *testing.T) {
	m := New(Config{TaskID: "1", Controller: &fakeController{}, MaxLines: 3})

	for _, l := range []string{"a", "b", "c", "d", "e"} {
		m = applyMsg(m, LineMsg(l))
	}
	if got := strings.Join(m.lines, ","); got != "c,d,e" {
		t.Errorf("expected 'c,d,e', got '%s'", got)
	}
}

func TestUpdateWindowResize(t *testing.T) {
	m := newTestModel(&fakeController{})

	m = applyMsg(m, tea.WindowSizeMsg{Width: 100, Height: 30})

	if m.width != 100 || m.height != 30 {
		t.Errorf("expected 100x30, got %dx%d", m.width, m.height)
	}
	if m.viewport.Width != 98 {
		t.Errorf("expected viewport width 98, got %d", m.viewport.Width)
	}
	if m.viewport.Height != 26 {
		t.Errorf("expected viewport height 26, got %d", m.viewport.Height)
	}
}

func TestUpdateWindowResizeClampsToMinimum(t *testing.T) {
	m := newTestModel(&fakeController{})

	m = applyMsg(m, tea.WindowSizeMsg{Width: 5, Height: 2})

	if m.viewport.Width != minWidth {
		t.Errorf("expected viewport width %d, got %d", minWidth, m.viewport.Width)
	}
	if m.viewport.Height != minHeight {
		t.Errorf("expected viewport height %d, got %d", minHeight, m.viewport.Height)
	}
}

func TestUpdateWindowResizeRewraps(t *testing.T) {
	m := newTestModel(&fakeController{})
	m = applyMsg(m, LineMsg(strings.Repeat("x", 50)))

	m = applyMsg(m, tea.WindowSizeMsg{Width: 22, Height: 30})
	if got := m.viewport.TotalLineCount(); got != 3 {
		t.Errorf("expected line wrapped into 3 rows at width 20, got %d", got)
	}

	m = applyMsg(m, tea.WindowSizeMsg{Width: 102, Height: 30})
	if got := m.viewport.TotalLineCount(); got != 1 {
		t.Errorf("expected a single row at width 100, got %d", got)
	}
}

func TestUpdateAutoScroll(t *testing.T) {
	m := newTestModel(&fakeController{})
	m = applyMsg(m, tea.WindowSizeMsg{Width: 80, Height: 10})

	for i := 0; i < 50; i++ {
		m = applyMsg(m, LineMsg("line"))
	}
	if !m.viewport.AtBottom() {
		t.Error("expected viewport to follow new output")
	}

	m = applyMsg(m, keyRune('g'))
	if !m.viewport.AtTop() {
		t.Error("expected viewport at top after 'g'")
	}

	// Scrolled away from the bottom: new output must not yank the view.
	m = applyMsg(m, LineMsg("more"))
	if !m.viewport.AtTop() {
		t.Error("expected viewport to stay at top while scrolled up")
	}

	m = applyMsg(m, keyRune('G'))
	if !m.viewport.AtBottom() {
		t.Error("expected viewport at bottom after 'G'")
	}
}

func TestUpdateStopKey(t *testing.T) {
	ctl := &fakeController{session: &poller.Session{}}
	m := newTestModel(ctl)

	if _, cmd := m.Update(keyRune('s')); cmd != nil {
		t.Error("expected no command when not polling")
	}

	m = applyMsg(m, sessionStartedMsg{session: ctl.session})
	_, cmd := m.Update(keyRune('s'))
	if cmd == nil {
		t.Fatal("expected stop command while polling")
	}
	if msg := cmd(); msg != nil {
		t.Errorf("expected nil message from stop, got %T", msg)
	}
	if ctl.stops != 1 {
		t.Errorf("expected 1 stop, got %d", ctl.stops)
	}
}

func TestUpdateRestartKey(t *testing.T) {
	ctl := &fakeController{session: &poller.Session{}}
	m := newTestModel(ctl)
	m = applyMsg(m, sessionDoneMsg{session: nil, outcome: poller.Outcome{Status: "failed"}})

	newModel, cmd := m.Update(keyRune('r'))
	m = newModel.(Model)
	if m.Outcome() != nil {
		t.Error("expected outcome reset on restart")
	}
	if cmd == nil {
		t.Fatal("expected restart command")
	}
	if _, ok := cmd().(sessionStartedMsg); !ok {
		t.Error("expected restart to start a session")
	}
	if len(ctl.starts) != 1 {
		t.Errorf("expected 1 start, got %d", len(ctl.starts))
	}
}

func TestUpdateSessionDone(t *testing.T) {
	current := &poller.Session{}
	stale := &poller.Session{}
	m := newTestModel(&fakeController{})
	m = applyMsg(m, sessionStartedMsg{session: current})

	m = applyMsg(m, sessionDoneMsg{session: stale, outcome: poller.Outcome{Stopped: true}})
	if !m.polling {
		t.Error("expected a superseded session to be ignored")
	}

	m = applyMsg(m, sessionDoneMsg{session: current, outcome: poller.Outcome{TaskID: "42", Status: "success"}})
	if m.polling {
		t.Error("expected polling to end")
	}
	if m.Outcome() == nil || !m.Outcome().Success() {
		t.Errorf("expected successful outcome, got %+v", m.Outcome())
	}
	if m.status != "success" {
		t.Errorf("expected status 'success', got '%s'", m.status)
	}
}

func TestUpdateStoppedShowsIndicator(t *testing.T) {
	current := &poller.Session{}
	m := newTestModel(&fakeController{})
	m = applyMsg(m, sessionStartedMsg{session: current})
	m = applyMsg(m, sessionDoneMsg{session: current, outcome: poller.Outcome{Status: "running", Stopped: true}})

	if !strings.Contains(m.View(), "STOPPED") {
		t.Error("expected stopped indicator in header")
	}
}

func TestUpdateStatusMsg(t *testing.T) {
	m := newTestModel(&fakeController{})

	m = applyMsg(m, StatusMsg{TaskID: "7", Status: "failed"})
	if m.status != "" {
		t.Errorf("expected status of another task to be ignored, got '%s'", m.status)
	}

	m = applyMsg(m, StatusMsg{TaskID: "42", Status: "running"})
	if m.status != "running" {
		t.Errorf("expected status 'running', got '%s'", m.status)
	}
	if !strings.Contains(m.View(), "running") {
		t.Error("expected status badge in header")
	}
}

func TestUpdateHelpToggle(t *testing.T) {
	m := newTestModel(&fakeController{})
	m = applyMsg(m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m = applyMsg(m, keyRune('?'))
	if !m.showHelp {
		t.Fatal("expected help to be shown")
	}
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Error("expected help overlay in view")
	}
	for _, desc := range []string{"stop following", "follow again", "latest line"} {
		if !strings.Contains(m.View(), desc) {
			t.Errorf("expected %q in help overlay", desc)
		}
	}

	m = applyMsg(m, keyRune('?'))
	if m.showHelp {
		t.Error("expected help to be hidden")
	}
}

func TestRenderStatusBadge(t *testing.T) {
	if renderStatusBadge("") != "" {
		t.Error("expected no badge for empty status")
	}
	if renderStatusBadge(api.StatusUnknown) != "" {
		t.Error("expected no badge for unknown status")
	}
	if !strings.Contains(renderStatusBadge("failed"), "failed") {
		t.Error("expected badge to contain the status")
	}
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"success", string(successColor)},
		{"running", string(warningColor)},
		{"ready", string(warningColor)},
		{"failed", string(errorColor)},
		{"pending", string(errorColor)},
	}
	for _, tt := range tests {
		if got := string(statusColor(tt.status)); got != tt.want {
			t.Errorf("statusColor(%q) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestPlaceOverlay(t *testing.T) {
	bg := "aaaaaaaa\nbbbbbbbb\ncccccccc"

	got := placeOverlay(2, 1, "XY", bg)
	want := "aaaaaaaa\nbbXYbbbb\ncccccccc"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = placeOverlay(1, 3, "Z", "ab")
	want = "ab\n\n\n Z"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

type mockSender struct {
	mu       sync.Mutex
	messages []tea.Msg
}

func (s *mockSender) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func TestProgramDisplay(t *testing.T) {
	var _ poller.Display = (*ProgramDisplay)(nil)

	d := &ProgramDisplay{}
	d.WriteLine("dropped")

	s := &mockSender{}
	d.Attach(s)
	d.Clear()
	d.WriteLine("hello")
	d.Status("42", "running")
	d.Detach()
	d.WriteLine("dropped too")

	if len(s.messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(s.messages))
	}
	if _, ok := s.messages[0].(ClearMsg); !ok {
		t.Errorf("expected ClearMsg, got %T", s.messages[0])
	}
	if s.messages[1] != LineMsg("hello") {
		t.Errorf("expected LineMsg 'hello', got %v", s.messages[1])
	}
	if s.messages[2] != (StatusMsg{TaskID: "42", Status: "running"}) {
		t.Errorf("expected StatusMsg, got %v", s.messages[2])
	}
}
