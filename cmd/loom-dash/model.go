package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickMsg triggers a periodic journal refresh.
type tickMsg time.Time

// snapshotMsg carries a freshly folded run snapshot.
type snapshotMsg struct {
	snapshot *RunSnapshot
	err      error
}

// tickCmd returns a command that sends a tickMsg after 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshotCmd returns a tea.Cmd that reads the journal.
func fetchSnapshotCmd(path string) tea.Cmd {
	return func() tea.Msg {
		snapshot, err := fetchSnapshot(path)
		return snapshotMsg{snapshot: snapshot, err: err}
	}
}

// Model is the Bubble Tea model for the loom dashboard.
type Model struct {
	journalPath string
	snapshot    *RunSnapshot
	items       table.Model
	err         error

	width  int
	height int
}

// newModel creates a dashboard model reading the journal at path.
func newModel(path string) Model {
	columns := []table.Column{
		{Title: "Item", Width: 14},
		{Title: "Phase", Width: 5},
		{Title: "State", Width: 24},
		{Title: "Detail", Width: 48},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	theme := DefaultTheme()
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(theme.Primary)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#ffffff")).Background(theme.Primary)
	t.SetStyles(styles)

	return Model{journalPath: path, items: t}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{fetchSnapshotCmd(m.journalPath), tickCmd()}
	if watch := watchJournal(m.journalPath); watch != nil {
		cmds = append(cmds, watch)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchSnapshotCmd(m.journalPath)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.items.SetHeight(maxInt(4, msg.Height-14))

	case snapshotMsg:
		m.err = msg.err
		if msg.snapshot != nil {
			m.snapshot = msg.snapshot
			m.items.SetRows(itemRows(msg.snapshot))
		}

	case tickMsg:
		return m, tea.Batch(fetchSnapshotCmd(m.journalPath), tickCmd())

	case fsChangeMsg:
		// Journal changed on disk: refresh now and re-arm the watcher.
		return m, tea.Batch(fetchSnapshotCmd(m.journalPath), watchJournal(m.journalPath))
	}

	var cmd tea.Cmd
	m.items, cmd = m.items.Update(msg)
	return m, cmd
}

// itemRows converts snapshot items into table rows.
func itemRows(snapshot *RunSnapshot) []table.Row {
	rows := make([]table.Row, 0, len(snapshot.Items))
	for _, it := range snapshot.Items {
		rows = append(rows, table.Row{
			it.ID,
			fmt.Sprintf("%d", it.Phase),
			it.State,
			it.Detail,
		})
	}
	return rows
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")
	b.WriteString(m.items.View())
	b.WriteString("\n\n")
	b.WriteString(m.renderEventLog())
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(DefaultTheme().Muted).Render("j/k navigate · r refresh · q quit"))
	return b.String()
}

// renderStatusBar renders run identity and rollup state.
func (m Model) renderStatusBar() string {
	theme := DefaultTheme()

	if m.err != nil {
		return lipgloss.NewStyle().Foreground(theme.Error).Render(fmt.Sprintf("journal error: %v", m.err))
	}
	if m.snapshot == nil || m.snapshot.RunID == "" {
		return lipgloss.NewStyle().Foreground(theme.Muted).Render("no runs recorded yet")
	}

	state := lipgloss.NewStyle().Foreground(theme.Warning).Render("running")
	switch {
	case m.snapshot.Halted:
		state = lipgloss.NewStyle().Foreground(theme.Error).Render("halted")
	case m.snapshot.Done:
		state = lipgloss.NewStyle().Foreground(theme.Success).Render("done")
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		lipgloss.NewStyle().Foreground(theme.Primary).Render("run "+m.snapshot.RunID),
		lipgloss.NewStyle().Render(" | "),
		state,
		lipgloss.NewStyle().Render(" | "),
		lipgloss.NewStyle().Foreground(theme.Muted).Render(m.snapshot.Summary),
	)
}

// renderEventLog renders the tail of the run's event stream.
func (m Model) renderEventLog() string {
	theme := DefaultTheme()
	if m.snapshot == nil || len(m.snapshot.Events) == 0 {
		return ""
	}

	const tail = 8
	events := m.snapshot.Events
	if len(events) > tail {
		events = events[len(events)-tail:]
	}

	muted := lipgloss.NewStyle().Foreground(theme.Muted)
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Render("Events"))
	b.WriteString("\n")
	for _, ev := range events {
		line := fmt.Sprintf("%s %-16s %s %s", ev.CreatedAt.Format("15:04:05"), ev.Type, ev.ItemID, ev.Detail)
		b.WriteString(muted.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// maxInt returns the larger of two ints.
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
