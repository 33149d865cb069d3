package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tutor/internal/app"
)

var (
	tutorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

type turnEventMsg app.TurnEvent

type turnDoneMsg struct {
	reply string
	err   error
}

// Model is the interactive chat over one workspace.
type Model struct {
	application *app.Application
	workspaceID string
	topic       string
	phase       app.Phase

	viewport viewport.Model
	input    textarea.Model
	ready    bool

	transcript strings.Builder
	streaming  strings.Builder
	status     string
	waiting    bool
	err        error

	events chan tea.Msg
}

func NewModel(application *app.Application, ws *app.Workspace) *Model {
	input := textarea.New()
	input.Placeholder = "Type a message, Enter to send, Esc to quit"
	input.SetHeight(3)
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.Focus()

	m := &Model{
		application: application,
		workspaceID: ws.ID,
		topic:       ws.Topic,
		phase:       ws.Phase,
		input:       input,
		events:      make(chan tea.Msg, 64),
	}
	for _, msg := range ws.History {
		m.appendMessage(msg.Role, msg.Content)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) appendMessage(role, content string) {
	label := userStyle.Render("You")
	if role == "assistant" {
		label = tutorStyle.Render("Tutor")
	}
	fmt.Fprintf(&m.transcript, "%s\n%s\n\n", label, content)
}

func (m *Model) sendTurn(text string) tea.Cmd {
	m.waiting = true
	m.status = "thinking..."
	go func() {
		reply, err := m.application.RunTurn(context.Background(), m.workspaceID, text, func(ev app.TurnEvent) {
			m.events <- turnEventMsg(ev)
		})
		m.events <- turnDoneMsg{reply: reply, err: err}
	}()
	return m.waitEvent()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 2
		inputHeight := m.input.Height() + 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - inputHeight
		}
		m.input.SetWidth(msg.Width - 2)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				break
			}
			m.input.Reset()
			m.err = nil
			m.appendMessage("user", text)
			m.refresh()
			return m, m.sendTurn(text)
		}

	case turnEventMsg:
		switch msg.Kind {
		case "delta":
			m.streaming.WriteString(msg.Text)
			m.refresh()
		case "tool_start":
			m.status = "running " + msg.Tool + "..."
		case "tool_done":
			m.status = "thinking..."
		case "compressing":
			m.status = "compressing context..."
		case "phase_transition":
			m.phase = app.Phase(msg.Text)
			m.status = "preparing your study plan..."
		}
		return m, m.waitEvent()

	case turnDoneMsg:
		m.waiting = false
		m.status = ""
		m.streaming.Reset()
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.appendMessage("assistant", msg.reply)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	content := m.transcript.String()
	if m.streaming.Len() > 0 {
		content += tutorStyle.Render("Tutor") + "\n" + m.streaming.String()
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}
	header := headerStyle.Render(m.topic) + statusStyle.Render(fmt.Sprintf("  [%s]", m.phase))
	footer := m.input.View()
	if m.err != nil {
		footer = errorStyle.Render("error: "+m.err.Error()) + "\n" + footer
	} else if m.status != "" {
		footer = statusStyle.Render(m.status) + "\n" + footer
	}
	return header + "\n\n" + m.viewport.View() + "\n" + footer
}

// Run starts the chat UI over the given workspace and blocks until the
// user quits.
func Run(application *app.Application, ws *app.Workspace) error {
	program := tea.NewProgram(NewModel(application, ws), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
