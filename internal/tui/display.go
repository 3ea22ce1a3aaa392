package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pengelbrecht/runtask/internal/api"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramDisplay forwards poller output to a bubbletea program as messages.
// Writes before Attach or after Detach are dropped.
type ProgramDisplay struct {
	mu     sync.RWMutex
	sender Sender
}

// Attach starts forwarding to s.
func (d *ProgramDisplay) Attach(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sender = s
}

// Detach stops forwarding. Call it once the program has exited.
func (d *ProgramDisplay) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sender = nil
}

// Clear implements poller.Display.
func (d *ProgramDisplay) Clear() {
	d.send(ClearMsg{})
}

// WriteLine implements poller.Display.
func (d *ProgramDisplay) WriteLine(text string) {
	d.send(LineMsg(text))
}

// Status forwards an observed status. It matches poller.Options.OnStatus.
func (d *ProgramDisplay) Status(taskID api.ID, status string) {
	d.send(StatusMsg{TaskID: taskID, Status: status})
}

func (d *ProgramDisplay) send(msg tea.Msg) {
	d.mu.RLock()
	s := d.sender
	d.mu.RUnlock()
	if s != nil {
		s.Send(msg)
	}
}
