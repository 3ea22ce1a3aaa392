package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pengelbrecht/runtask/internal/api"
)

// toolItem implements list.Item for tool display.
type toolItem struct {
	tool api.Tool
}

func (t toolItem) Title() string {
	return fmt.Sprintf("[%s] %s", t.tool.TaskType, t.tool.DisplayTitle())
}

func (t toolItem) Description() string {
	if t.tool.RunEndpoint != "" {
		return "runs on " + t.tool.RunEndpoint
	}
	return "runs locally"
}

func (t toolItem) FilterValue() string {
	return t.tool.TaskType + " " + t.tool.Title
}

// Picker is the tool selection model.
type Picker struct {
	list     list.Model
	selected *api.Tool
	quitting bool
	width    int
	height   int
}

// Picker styles
var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor).
				MarginBottom(1)

	pickerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

// NewPicker creates a tool picker. The cursor starts on the tool whose task
// type is preferred, or on the last tool when preferred is not listed.
func NewPicker(tools []api.Tool, preferred string) Picker {
	items := make([]list.Item, len(tools))
	cursor := len(tools) - 1
	for i, t := range tools {
		items[i] = toolItem{tool: t}
		if preferred != "" && t.TaskType == preferred {
			cursor = i
		}
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 60, 20)
	l.Title = "Select a Tool"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = pickerTitleStyle
	if cursor > 0 {
		l.Select(cursor)
	}

	return Picker{
		list: l,
	}
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if p.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			p.quitting = true
			return p, tea.Quit
		case "enter":
			if item, ok := p.list.SelectedItem().(toolItem); ok {
				p.selected = &item.tool
				return p, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.list.SetSize(msg.Width-4, msg.Height-4)
	}

	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

// View implements tea.Model.
func (p Picker) View() string {
	if p.quitting && p.selected == nil {
		return "No tool selected.\n"
	}
	if p.selected != nil {
		return ""
	}
	return pickerStyle.Render(p.list.View())
}

// Selected returns the selected tool, or nil if none was selected.
func (p Picker) Selected() *api.Tool {
	return p.selected
}

// IsQuitting returns true if the user quit without selecting.
func (p Picker) IsQuitting() bool {
	return p.quitting && p.selected == nil
}
