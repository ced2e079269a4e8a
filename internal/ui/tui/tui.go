// Package tui is the interactive chat surface. The model renders the
// conversation in a viewport with a textinput prompt below; the agent
// runs in a separate goroutine and feeds progress in as messages.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI bridges the agent's event stream into the running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) Status(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) Delta(text string) {
	t.program.Send(DeltaMsg(text))
}

func (t *TUI) ToolCall(name string) {
	t.program.Send(ToolCallMsg(name))
}

func (t *TUI) ToolResult(name, payload string, isError bool) {
	t.program.Send(ToolResultMsg{Name: name, Payload: payload, IsError: isError})
}

func (t *TUI) Done() {
	t.program.Send(DoneMsg{})
}

func (t *TUI) Error(err error) {
	t.program.Send(ErrMsg{Err: err})
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#1B3A57")).
			Padding(0, 1)

	youStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))
)

type (
	StatusMsg     string
	DeltaMsg      string
	ToolCallMsg   string
	ToolResultMsg struct {
		Name    string
		Payload string
		IsError bool
	}
	DoneMsg struct{}
	ErrMsg  struct{ Err error }
)

// Model is the bubbletea model for the chat session. Submit is called with
// each question the user enters; it must not block.
type Model struct {
	Title  string
	Submit func(question string)

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model

	lines  []string
	answer strings.Builder
	status string
	busy   bool
	ready  bool

	quitting bool
	width    int
	height   int
}

func NewModel(title string, submit func(string)) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about your data..."
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		Title:  title,
		Submit: submit,
		input:  ti,
		spin:   sp,
		status: "Ready",
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question != "" && !m.busy && m.Submit != nil {
				m.appendLine(youStyle.Render("you: ") + question)
				m.input.SetValue("")
				m.busy = true
				m.status = "Thinking..."
				m.Submit(question)
				cmds = append(cmds, m.spin.Tick)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-5)
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 5
		}

	case StatusMsg:
		m.status = string(msg)

	case DeltaMsg:
		m.answer.WriteString(string(msg))
		m.refresh()

	case ToolCallMsg:
		m.flushAnswer()
		m.appendLine(toolStyle.Render(fmt.Sprintf("using tool: %s", string(msg))))

	case ToolResultMsg:
		line := toolStyle.Render(fmt.Sprintf("result from %s received", msg.Name))
		if msg.IsError {
			line = errorStyle.Render(fmt.Sprintf("tool %s failed: %s", msg.Name, msg.Payload))
		}
		m.appendLine(line)

	case DoneMsg:
		m.flushAnswer()
		m.appendLine("")
		m.busy = false
		m.status = "Ready"

	case ErrMsg:
		m.flushAnswer()
		m.appendLine(errorStyle.Render(fmt.Sprintf("error: %v", msg.Err)))
		m.busy = false
		m.status = "Ready"

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

// flushAnswer turns the streamed partial answer into a finished line.
func (m *Model) flushAnswer() {
	if m.answer.Len() == 0 {
		return
	}
	m.lines = append(m.lines, m.answer.String())
	m.answer.Reset()
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	content := strings.Join(m.lines, "\n")
	if m.answer.Len() > 0 {
		content += "\n" + m.answer.String()
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// Transcript returns the finished conversation lines, for tests.
func (m Model) Transcript() []string {
	return m.lines
}

// Busy reports whether a question is in flight, for tests.
func (m Model) Busy() bool {
	return m.busy
}

func (m Model) View() string {
	if !m.ready {
		return "\n  Starting..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	status := m.status
	if m.busy {
		status = m.spin.View() + " " + status
	}

	view := fmt.Sprintf("%s  %s\n\n%s\n\n%s",
		header, status,
		m.viewport.View(),
		m.input.View())

	if m.quitting {
		return view + "\n  Goodbye.\n"
	}
	return view
}
