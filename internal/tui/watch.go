// Package tui provides the live queue status view behind `status --watch`.
package tui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentsync/internal/cli"
	"agentsync/internal/queue"
)

const pollInterval = 2 * time.Second

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Watch is the bubbletea model polling queue summaries.
type Watch struct {
	q       *queue.Queue
	tbl     table.Model
	lastErr error
}

// NewWatch creates the watch model over the given queue.
func NewWatch(q *queue.Queue) Watch {
	columns := []table.Column{
		{Title: "Session", Width: 38},
		{Title: "Pending", Width: 8},
		{Title: "Synced", Width: 8},
		{Title: "Failed", Width: 8},
		{Title: "Last sync", Width: 12},
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Bold(true).
		Foreground(cli.ColorAccent).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(cli.ColorBorder).
		BorderBottom(true)
	styles.Selected = styles.Selected.
		Foreground(cli.ColorText).
		Background(cli.ColorBorder)
	tbl.SetStyles(styles)

	w := Watch{q: q, tbl: tbl}
	w.refresh()
	return w
}

// Init implements tea.Model.
func (w Watch) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (w Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return w, tea.Quit
		}
	case tickMsg:
		w.refresh()
		return w, tick()
	}

	var cmd tea.Cmd
	w.tbl, cmd = w.tbl.Update(msg)
	return w, cmd
}

func (w *Watch) refresh() {
	sessions, err := w.q.Sessions()
	if err != nil {
		w.lastErr = err
		return
	}

	rows := make([]table.Row, 0, len(sessions))
	for _, id := range sessions {
		s, err := w.q.Summarize(id)
		if err != nil {
			w.lastErr = err
			continue
		}
		rows = append(rows, table.Row{
			cli.Truncate(id, 38),
			strconv.Itoa(s.Pending),
			strconv.Itoa(s.Synced),
			strconv.Itoa(s.Failed),
			cli.FormatAge(s.LastSync),
		})
	}
	w.tbl.SetRows(rows)
	w.lastErr = nil
}

// View implements tea.Model.
func (w Watch) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(cli.ColorAccent).
		Render("agentsync queues")
	help := lipgloss.NewStyle().Foreground(cli.ColorTextDim).
		Render(fmt.Sprintf("q quit · refreshes every %s", pollInterval))

	view := "\n  " + title + "\n\n" + w.tbl.View() + "\n\n  " + help + "\n"
	if w.lastErr != nil {
		view += lipgloss.NewStyle().Foreground(cli.ColorRed).
			Render(fmt.Sprintf("  error: %v", w.lastErr)) + "\n"
	}
	return view
}
