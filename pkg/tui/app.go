// Package tui is the terminal front end: a login form followed by the
// dual-pane browser.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/quocson95/ftpane/pkg/session"
	"github.com/rs/zerolog"
)

// AppState represents the current screen of the application
type AppState int

const (
	StateLogin AppState = iota
	StateBrowser
)

// AppModel is the root model that routes to the active screen
type AppModel struct {
	state   AppState
	manager *session.Manager
	log     zerolog.Logger
	login   *LoginModel
	browser *BrowserModel
	width   int
	height  int
}

// NewAppModel starts at the login form, pre-filled with host and user
func NewAppModel(manager *session.Manager, host, user string, log zerolog.Logger) *AppModel {
	return &AppModel{
		state:   StateLogin,
		manager: manager,
		log:     log,
		login:   NewLoginModel(manager, host, user),
	}
}

func (m *AppModel) Init() tea.Cmd {
	return m.login.Init()
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()
		case "q", "esc":
			if m.state == StateBrowser && !m.browser.gotoMode {
				return m, m.quit()
			}
		}

	case loginResultMsg:
		if m.manager.IsConnected() {
			m.state = StateBrowser
			m.browser = NewBrowserModel(m.manager)
			m.browser.err = msg.err
			m.browser.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
			return m, m.browser.Init()
		}
	}

	var cmd tea.Cmd
	switch m.state {
	case StateLogin:
		m.login, cmd = m.login.Update(msg)
	case StateBrowser:
		m.browser, cmd = m.browser.Update(msg)
	}
	return m, cmd
}

// quit closes the browsing connection. Running transfers die with the
// process.
func (m *AppModel) quit() tea.Cmd {
	if err := m.manager.Close(); err != nil {
		m.log.Debug().Err(err).Msg("close on quit")
	}
	return tea.Quit
}

func (m *AppModel) View() string {
	switch m.state {
	case StateBrowser:
		return m.browser.View()
	default:
		return m.login.View()
	}
}
