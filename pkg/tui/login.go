package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/quocson95/ftpane/pkg/session"
)

// loginResultMsg is sent when a connect+login attempt finishes
type loginResultMsg struct {
	err error
}

// LoginModel is the host / user / password form
type LoginModel struct {
	manager *session.Manager
	inputs  []textinput.Model
	focused int
	busy    bool
	err     error
	width   int
	height  int
}

const (
	inputHost = iota
	inputUsername
	inputPassword
)

// NewLoginModel creates the form, pre-filled with host and user if given
func NewLoginModel(manager *session.Manager, host, user string) *LoginModel {
	inputs := make([]textinput.Model, 3)

	inputs[inputHost] = textinput.New()
	inputs[inputHost].Placeholder = "ftp.example.com or ftp://host/"
	inputs[inputHost].CharLimit = 253
	inputs[inputHost].Width = 50
	inputs[inputHost].Prompt = "Host: "
	inputs[inputHost].SetValue(host)

	inputs[inputUsername] = textinput.New()
	inputs[inputUsername].Placeholder = "anonymous"
	inputs[inputUsername].CharLimit = 64
	inputs[inputUsername].Width = 50
	inputs[inputUsername].Prompt = "Username: "
	inputs[inputUsername].SetValue(user)

	inputs[inputPassword] = textinput.New()
	inputs[inputPassword].CharLimit = 128
	inputs[inputPassword].Width = 50
	inputs[inputPassword].Prompt = "Password: "
	inputs[inputPassword].EchoMode = textinput.EchoPassword
	inputs[inputPassword].EchoCharacter = '•'

	m := &LoginModel{manager: manager, inputs: inputs}
	switch {
	case host == "":
		m.focused = inputHost
	case user == "":
		m.focused = inputUsername
	default:
		m.focused = inputPassword
	}
	m.inputs[m.focused].Focus()
	return m
}

func (m *LoginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *LoginModel) Update(msg tea.Msg) (*LoginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loginResultMsg:
		m.busy = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			if msg.String() == "up" || msg.String() == "shift+tab" {
				m.focused--
			} else {
				m.focused++
			}
			if m.focused > len(m.inputs)-1 {
				m.focused = 0
			} else if m.focused < 0 {
				m.focused = len(m.inputs) - 1
			}
			for i := range m.inputs {
				if i == m.focused {
					m.inputs[i].Focus()
				} else {
					m.inputs[i].Blur()
				}
			}
			return m, nil

		case "enter":
			host := strings.TrimSpace(m.inputs[inputHost].Value())
			user := strings.TrimSpace(m.inputs[inputUsername].Value())
			if host == "" {
				m.err = fmt.Errorf("host is required")
				return m, nil
			}
			if user == "" {
				user = "anonymous"
			}
			m.busy = true
			m.err = nil
			return m, login(m.manager, host, user, m.inputs[inputPassword].Value())
		}
	}

	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

// login runs connect and login off the UI goroutine
func login(manager *session.Manager, host, user, password string) tea.Cmd {
	return func() tea.Msg {
		if err := manager.Connect(context.Background(), host); err != nil {
			return loginResultMsg{err: err}
		}
		return loginResultMsg{err: manager.Login(user, password)}
	}
}

func (m *LoginModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🌐 Connect to FTP Server"))
	b.WriteString("\n\n")

	for i := range m.inputs {
		b.WriteString(m.inputs[i].View())
		if i < len(m.inputs)-1 {
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\n")
	if m.busy {
		b.WriteString(successStyle.Render("Connecting..."))
	} else {
		b.WriteString(helpStyle.Render("tab: next • enter: connect • ctrl+c: quit"))
	}

	if m.err != nil {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return boxStyle.Render(b.String())
}
