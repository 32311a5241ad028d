package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/quocson95/ftpane/pkg/browser"
	"github.com/quocson95/ftpane/pkg/listing"
	"github.com/quocson95/ftpane/pkg/session"
	"github.com/quocson95/ftpane/pkg/transfer"
)

// PaneSide says which pane is active
type PaneSide int

const (
	LocalPane PaneSide = iota
	RemotePane
)

// navDoneMsg reports the end of a navigation or refresh on one pane
type navDoneMsg struct {
	side  PaneSide
	moved bool
	err   error
}

// transferMsg carries one event of a running transfer
type transferMsg struct {
	task *transfer.Task
	ev   transfer.Event
}

// transferView is what the status area shows for one transfer
type transferView struct {
	name   string
	dir    transfer.Direction
	status transfer.Status
	done   int64
	total  int64
	err    error
}

// BrowserModel is the dual-pane browser. Pane I/O runs in commands; while
// one is in flight further navigation keys are ignored.
type BrowserModel struct {
	manager *session.Manager
	panes   [2]*browser.Pane
	cursors [2]int
	active  PaneSide
	busy    bool

	gotoMode    bool
	input       textinput.Model
	suggestions []string

	transfers map[string]*transferView
	order     []string

	status string
	err    error
	width  int
	height int
}

// NewBrowserModel shows the panes of a logged in session
func NewBrowserModel(manager *session.Manager) *BrowserModel {
	ti := textinput.New()
	ti.Placeholder = "path, absolute or relative"
	ti.CharLimit = 1024
	ti.Width = 60
	ti.Prompt = "Go to: "

	return &BrowserModel{
		manager:   manager,
		panes:     [2]*browser.Pane{manager.Local(), manager.Remote()},
		input:     ti,
		transfers: make(map[string]*transferView),
	}
}

func (m *BrowserModel) Init() tea.Cmd { return nil }

func (m *BrowserModel) pane() *browser.Pane { return m.panes[m.active] }

func (m *BrowserModel) selected() (listing.DirectoryEntry, bool) {
	entries := m.pane().Entries()
	c := m.cursors[m.active]
	if c < 0 || c >= len(entries) {
		return listing.DirectoryEntry{}, false
	}
	return entries[c], true
}

// navigate runs op on the active pane in the background
func (m *BrowserModel) navigate(side PaneSide, op func(*browser.Pane) (bool, error)) tea.Cmd {
	m.busy = true
	m.err = nil
	p := m.panes[side]
	return func() tea.Msg {
		moved, err := op(p)
		return navDoneMsg{side: side, moved: moved, err: err}
	}
}

func moved(fn func() error) (bool, error) {
	if err := fn(); err != nil {
		return false, err
	}
	return true, nil
}

func waitTransfer(task *transfer.Task) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-task.Events()
		if !ok {
			return nil
		}
		return transferMsg{task: task, ev: ev}
	}
}

func (m *BrowserModel) Update(msg tea.Msg) (*BrowserModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case navDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
		}
		if msg.moved {
			m.cursors[msg.side] = 0
		}
		m.clampCursor(msg.side)
		return m, nil

	case transferMsg:
		return m, m.onTransfer(msg)

	case tea.KeyMsg:
		if m.gotoMode {
			return m, m.updateGoto(msg)
		}
		return m, m.onKey(msg)
	}
	return m, nil
}

func (m *BrowserModel) onKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab":
		if m.active == LocalPane {
			m.active = RemotePane
		} else {
			m.active = LocalPane
		}
		return nil

	case "up", "k":
		if m.cursors[m.active] > 0 {
			m.cursors[m.active]--
		}
		return nil

	case "down", "j":
		if m.cursors[m.active] < len(m.pane().Entries())-1 {
			m.cursors[m.active]++
		}
		return nil

	case "d":
		return m.startTransfer(RemotePane)

	case "u":
		return m.startTransfer(LocalPane)

	case "C":
		for _, t := range m.manager.Transfers().Active() {
			t.Cancel()
		}
		m.status = "Cancellation requested..."
		return nil
	}

	if m.busy {
		return nil
	}

	switch msg.String() {
	case "enter", "right", "l":
		entry, ok := m.selected()
		if !ok || !entry.IsDir() {
			return nil
		}
		target := m.pane().Join(entry.Name)
		return m.navigate(m.active, func(p *browser.Pane) (bool, error) { return p.Enter(target) })

	case "backspace", "left", "h":
		if !m.pane().Affordances().Back {
			return nil
		}
		return m.navigate(m.active, func(p *browser.Pane) (bool, error) { return moved(p.Back) })

	case "n":
		if !m.pane().Affordances().Next {
			return nil
		}
		return m.navigate(m.active, func(p *browser.Pane) (bool, error) { return moved(p.Next) })

	case "~":
		if !m.pane().Affordances().Home {
			return nil
		}
		return m.navigate(m.active, func(p *browser.Pane) (bool, error) { return moved(p.Home) })

	case "r":
		m.status = "✓ Refreshed"
		return m.navigate(m.active, func(p *browser.Pane) (bool, error) { return false, p.Refresh() })

	case "g":
		m.gotoMode = true
		m.input.Reset()
		m.suggestions = m.pane().WordList()
		m.input.Focus()
		return textinput.Blink
	}
	return nil
}

func (m *BrowserModel) updateGoto(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.gotoMode = false
		m.input.Blur()
		return nil

	case "tab":
		if len(m.suggestions) > 0 {
			m.input.SetValue(m.suggestions[0])
			m.input.CursorEnd()
		}
		return nil

	case "enter":
		typed := m.input.Value()
		m.gotoMode = false
		m.input.Blur()
		if m.busy || strings.TrimSpace(typed) == "" {
			return nil
		}
		return m.navigate(m.active, func(p *browser.Pane) (bool, error) { return p.Goto(typed) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.suggestions = m.pane().Complete(m.input.Value())
	return cmd
}

// startTransfer sends the selected file of side to the other pane
func (m *BrowserModel) startTransfer(side PaneSide) tea.Cmd {
	if m.active != side {
		return nil
	}
	entry, ok := m.selected()
	if !ok {
		return nil
	}

	var task *transfer.Task
	var err error
	if side == RemotePane {
		task, err = m.manager.DownloadSelected(entry)
	} else {
		task, err = m.manager.UploadSelected(entry)
	}
	if err != nil {
		m.err = err
		return nil
	}

	m.transfers[task.ID] = &transferView{
		name:  entry.Name,
		dir:   task.Direction,
		total: task.Total(),
	}
	m.order = append(m.order, task.ID)
	return waitTransfer(task)
}

func (m *BrowserModel) onTransfer(msg transferMsg) tea.Cmd {
	v, ok := m.transfers[msg.ev.TaskID]
	if !ok {
		return nil
	}
	v.status = msg.ev.Status
	v.done = msg.ev.Transferred
	v.total = msg.ev.Total
	v.err = msg.ev.Err

	if !msg.ev.Status.Terminal() {
		return waitTransfer(msg.task)
	}

	if msg.ev.Status == transfer.Failed {
		m.err = fmt.Errorf("transfer of %s failed: %w", v.name, msg.ev.Err)
		return nil
	}
	m.status = fmt.Sprintf("%s of %s completed", strings.ToLower(v.dir.String()), v.name)

	dest := LocalPane
	if v.dir == transfer.Upload {
		dest = RemotePane
	}
	if m.busy {
		return nil
	}
	return m.navigate(dest, func(p *browser.Pane) (bool, error) { return false, p.Refresh() })
}

func (m *BrowserModel) clampCursor(side PaneSide) {
	n := len(m.panes[side].Entries())
	if m.cursors[side] >= n {
		m.cursors[side] = n - 1
	}
	if m.cursors[side] < 0 {
		m.cursors[side] = 0
	}
}

func (m *BrowserModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("📁 FTP %s", m.manager.Host())))
	b.WriteString("\n\n")

	const (
		titleLines    = 2
		helpLines     = 2
		statusLines   = 2
		transferLines = 5
		spacing       = 2
	)
	paneHeight := m.height - titleLines - helpLines - statusLines - transferLines - spacing
	if paneHeight < 10 {
		paneHeight = 10
	}
	paneWidth := (m.width - 4) / 2
	if paneWidth < 30 {
		paneWidth = 30
	}

	views := [2]string{}
	for side := range m.panes {
		style := inactiveBorderStyle
		if PaneSide(side) == m.active {
			style = activeBorderStyle
		}
		views[side] = style.Height(paneHeight).Width(paneWidth).Render(m.renderPane(PaneSide(side), paneWidth-2, paneHeight))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, views[0], "  ", views[1]))
	b.WriteString("\n")

	if m.gotoMode {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		if len(m.suggestions) > 0 {
			b.WriteString("  ")
			b.WriteString(pathStyle.Render(truncate(strings.Join(m.suggestions, " "), paneWidth)))
		}
	}

	b.WriteString(m.renderTransfers(transferLines))

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render(m.status))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m *BrowserModel) renderPane(side PaneSide, width, height int) string {
	var b strings.Builder
	p := m.panes[side]

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")).Render("💻 Local")
	if side == RemotePane {
		title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFA500")).Render("🌐 Remote")
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(pathStyle.Render(truncateLeft(p.CurrentPath(), width)))
	b.WriteString("\n\n")

	// Title(1) + Path(1) + Spacing(1)
	displayCount := height - 3
	if displayCount < 5 {
		displayCount = 5
	}

	entries := p.Entries()
	cursor := m.cursors[side]
	start := 0
	if cursor > displayCount/2 && len(entries) > displayCount {
		start = cursor - displayCount/2
	}
	end := start + displayCount
	if end > len(entries) {
		end = len(entries)
	}

	for i := start; i < end; i++ {
		e := entries[i]
		prefix := "  "
		style := itemStyle
		if i == cursor {
			prefix = "→ "
			style = selectedItemStyle
		}
		icon := "📄"
		if e.IsDir() {
			icon = "📁"
		}
		size := formatSize(e.SizeBytes)
		nameWidth := width - runewidth.StringWidth(size) - 8
		line := fmt.Sprintf("%s %s %s", icon, runewidth.FillRight(truncate(e.Name, nameWidth), nameWidth), size)
		b.WriteString(prefix + style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *BrowserModel) renderTransfers(maxLines int) string {
	if len(m.order) == 0 {
		return ""
	}
	var b strings.Builder
	ids := m.order
	if len(ids) > maxLines {
		ids = ids[len(ids)-maxLines:]
	}
	for _, id := range ids {
		v := m.transfers[id]
		arrow := "⬇"
		if v.dir == transfer.Upload {
			arrow = "⬆"
		}
		pct := 100
		if v.total > 0 {
			pct = int(v.done * 100 / v.total)
		}
		line := fmt.Sprintf("%s %s %3d%% %s/%s %s", arrow, truncate(v.name, 30), pct, formatSize(v.done), formatSize(v.total), v.status)
		b.WriteString("\n")
		switch v.status {
		case transfer.Failed:
			b.WriteString(errorStyle.Render(line))
		case transfer.Done:
			b.WriteString(successStyle.Render(line))
		default:
			b.WriteString(itemStyle.Render(line))
		}
	}
	return b.String()
}

func (m *BrowserModel) renderHelp() string {
	aff := m.pane().Affordances()
	key := func(enabled bool, s string) string {
		if enabled {
			return s
		}
		return disabledStyle.Render(s)
	}
	parts := []string{
		"tab: switch",
		"enter: open",
		key(aff.Back, "←: back"),
		key(aff.Next, "n: next"),
		key(aff.Home, "~: home"),
		"g: go to",
		"r: refresh",
		"d: download",
		"u: upload",
		"C: cancel",
		"q: quit",
	}
	return helpStyle.Render(strings.Join(parts, " • "))
}

func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(n)/(1024*1024*1024))
}
