package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netshield/internal/capture"
	"netshield/internal/models"
	"netshield/internal/notify"
	"netshield/internal/session"
	"netshield/internal/view"
)

type focus int

const (
	focusTable focus = iota
	focusDetail
)

// changeMsg carries one session change into the update loop.
type changeMsg session.Change

// closedMsg is sent once the session subscription ends.
type closedMsg struct{}

// Model is the terminal dashboard over one session.
type Model struct {
	sess *session.Session
	sub  *notify.Subscription[session.Change]

	width, height int
	focus         focus
	row           int
	line          int
	filterMode    bool
	filterInput   textinput.Model
	progress      progress.Model
	notice        string
	quitting      bool
}

// NewModel subscribes to sess. The subscription ends when the program quits.
func NewModel(sess *session.Session) Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search source, destination, protocol, info"
	ti.CharLimit = 128

	return Model{
		sess:        sess,
		sub:         sess.Subscribe(64),
		filterInput: ti,
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (m Model) waitForChange() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		ch, ok := <-sub.C()
		if !ok {
			return closedMsg{}
		}
		return changeMsg(ch)
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filterMode {
			return m.handleFilterInput(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changeMsg:
		if msg.Kind == session.ChangeNotice {
			m.notice = msg.Message
		}
		m.clamp()
		return m, m.waitForChange()

	case closedMsg:
		// The session went away underneath us.
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.sub.Unsubscribe()
		return m, tea.Quit

	case "s":
		m.report(m.sess.Start())
	case "x":
		m.report(m.sess.Stop())
	case "r":
		m.sess.Reload()
		m.row, m.line = 0, 0
		m.notice = ""

	case "/":
		m.filterMode = true
		m.filterInput.SetValue(m.sess.PendingFilter())
		m.filterInput.CursorEnd()
		cmd := m.filterInput.Focus()
		return m, cmd

	case "f":
		m.report(m.sess.Follow())
	case "F":
		m.sess.ClearFollow()

	case "tab":
		if m.focus == focusTable {
			m.focus = focusDetail
		} else {
			m.focus = focusTable
		}

	case "j", "down":
		if m.focus == focusTable {
			m.row++
		} else {
			m.line++
		}
		m.clamp()
	case "k", "up":
		if m.focus == focusTable {
			m.row--
		} else {
			m.line--
		}
		m.clamp()

	case "enter", " ":
		if m.focus == focusTable {
			m.report(m.sess.SelectIndex(m.row + 1))
			m.line = 0
		} else {
			tree := m.sess.Detail().Tree
			if m.line < len(tree) && tree[m.line].Composite {
				m.sess.Toggle(tree[m.line].Path)
			}
		}
	}
	return m, nil
}

// handleFilterInput edits the filter. Every keystroke feeds the debounced
// search; enter commits at once.
func (m Model) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.sess.CommitFilter(m.filterInput.Value())
		m.filterMode = false
		m.filterInput.Blur()
		m.row = 0
		return m, nil
	case "esc", "ctrl+c":
		m.filterMode = false
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	before := m.filterInput.Value()
	m.filterInput, cmd = m.filterInput.Update(msg)
	if v := m.filterInput.Value(); v != before {
		m.sess.SetFilter(v)
	}
	return m, cmd
}

func (m *Model) report(err error) {
	switch {
	case err == nil:
		m.notice = ""
	case errors.Is(err, capture.ErrExhausted),
		errors.Is(err, capture.ErrAlreadyCapturing),
		errors.Is(err, capture.ErrNotCapturing),
		errors.Is(err, session.ErrNoSelection):
		m.notice = err.Error()
	default:
		m.notice = "error: " + err.Error()
	}
}

// clamp keeps the row and tree cursors inside their lists.
func (m *Model) clamp() {
	if n := len(m.sess.Visible()); m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
	if n := len(m.sess.Detail().Tree); m.line >= n {
		m.line = n - 1
	}
	if m.line < 0 {
		m.line = 0
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.filterView())
	b.WriteString("\n\n")

	tableWidth := m.width*3/5 - 4
	detailWidth := m.width - tableWidth - 8
	if m.width == 0 {
		tableWidth, detailWidth = 90, 50
	}

	tablePane, detailPane := paneStyle, paneStyle
	if m.focus == focusTable {
		tablePane = focusedPaneStyle
	} else {
		detailPane = focusedPaneStyle
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tablePane.Width(tableWidth).Render(m.tableView()),
		detailPane.Width(detailWidth).Render(m.detailView()),
	))
	b.WriteString("\n")
	b.WriteString(paneStyle.Render(m.sess.Diagram().String()))
	b.WriteString("\n")
	b.WriteString(m.summaryView())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("s start · x stop · r reload · / filter · enter select · f follow · F clear · tab detail · q quit"))
	return b.String()
}

func (m Model) headerView() string {
	cursor, total := m.sess.Progress()
	pct := 0.0
	if total > 0 {
		pct = float64(cursor) / float64(total)
	}
	state := m.sess.State().String()
	return fmt.Sprintf("%s  %s  %s %d/%d",
		titleStyle.Render("NetShield"),
		state,
		m.progress.ViewAs(pct),
		cursor, total)
}

func (m Model) filterView() string {
	if m.filterMode {
		return m.filterInput.View()
	}
	parts := []string{}
	if f := m.sess.FilterText(); f != "" {
		parts = append(parts, fmt.Sprintf("filter: %q", f))
	}
	if conv := m.sess.Conversation(); conv != nil {
		parts = append(parts, "conversation: "+conv.String())
	}
	if len(parts) == 0 {
		return dimStyle.Render("no filter")
	}
	return strings.Join(parts, "  ")
}

func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusGood:
		return goodStyle
	case models.StatusWarning:
		return warningStyle
	case models.StatusError:
		return errorStyle
	}
	return lipgloss.NewStyle()
}

func (m Model) tableView() string {
	rows := m.sess.Rows()
	var b strings.Builder
	b.WriteString(headStyle.Render(fmt.Sprintf("%-4s %-26s %-16s %-16s %-6s %6s  %s",
		"No.", "Time", "Source", "Destination", "Proto", "Length", "Info")))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("no packets"))
		return b.String()
	}

	limit := m.height - 16
	if limit < 5 {
		limit = 10
	}
	start := 0
	if m.row >= limit {
		start = m.row - limit + 1
	}
	for i := start; i < len(rows) && i < start+limit; i++ {
		r := rows[i]
		line := fmt.Sprintf("%-4d %-26s %-16s %-16s %-6s %6d  %s",
			r.Index, r.Timestamp, r.Source, r.Destination, r.Protocol, r.Length, r.Info)
		style := statusStyle(r.Status)
		if r.Selected {
			style = style.Inherit(selectedStyle)
		}
		prefix := "  "
		if i == m.row && m.focus == focusTable {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + style.Render(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) detailView() string {
	d := m.sess.Detail()
	if d.Empty {
		return dimStyle.Render(d.Placeholder)
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(d.Title))
	b.WriteString("\n")
	for _, f := range d.Fields {
		fmt.Fprintf(&b, "%-12s %s\n", f.Name+":", f.Value)
	}
	for i, l := range d.Tree {
		prefix := "  "
		if i == m.line && m.focus == focusDetail {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + strings.Repeat("  ", l.Depth) + treeLine(l) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func treeLine(l view.TreeLine) string {
	if !l.Composite {
		return l.Name + ": " + l.Value
	}
	marker := "▸ "
	if l.Expanded {
		marker = "▾ "
	}
	if l.Expanded {
		return marker + l.Name
	}
	return marker + l.Name + " " + dimStyle.Render(l.Value)
}

func (m Model) summaryView() string {
	sum := m.sess.Summary()
	parts := make([]string, 0, len(sum.Protocols))
	for _, p := range sum.Protocols {
		parts = append(parts, fmt.Sprintf("%s: %d (%s)", p.Protocol, p.Count, p.PercentText()))
	}
	return fmt.Sprintf("Total: %d  Bytes: %d  Avg: %.1f  %.3f Mbit/s  %s",
		sum.Total, sum.TotalBytes, sum.AverageLength, sum.ThroughputMbps, strings.Join(parts, "  "))
}
