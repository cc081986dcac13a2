package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xiy/triage-agent/internal/store"
	"github.com/xiy/triage-agent/pkg/types"
)

type tickMsg time.Time
type dashboardMsg struct {
	stats    store.Stats
	turns    []store.TurnLog
	memories []types.MemoryEntry
	err      error
	duration time.Duration
}

type dashboardStore interface {
	Stats(ctx context.Context) (store.Stats, error)
	RecentTurnLogs(ctx context.Context, limit int) ([]store.TurnLog, error)
	RecentMemories(ctx context.Context, limit int) ([]types.MemoryEntry, error)
}

type model struct {
	ctx           context.Context
	st            dashboardStore
	stats         store.Stats
	turns         []store.TurnLog
	memories      []types.MemoryEntry
	lastErr       error
	lastTick      time.Time
	logLines      []string
	maxLogs       int
	turnsLimit    int
	memoriesLimit int
	width         int
	height        int
}

// Run starts a lightweight local admin dashboard over the agent's store.
func Run(ctx context.Context, st dashboardStore) error {
	m := model{
		ctx:           ctx,
		st:            st,
		maxLogs:       10,
		turnsLimit:    8,
		memoriesLimit: 8,
	}
	m = m.appendLog("admin UI started")
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchDashboardCmd(m.ctx, m.st, m.turnsLimit, m.memoriesLimit), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m = m.appendLog("received quit signal")
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.lastTick = time.Time(msg)
		return m, tea.Batch(fetchDashboardCmd(m.ctx, m.st, m.turnsLimit, m.memoriesLimit), tickCmd())
	case dashboardMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.turns = msg.turns
			m.memories = msg.memories
			m = m.appendLog(fmt.Sprintf(
				"refresh ok active=%d archived=%d turns=%d mem=%d (%s)",
				msg.stats.Active,
				msg.stats.Archived,
				len(msg.turns),
				len(msg.memories),
				formatDuration(msg.duration),
			))
		} else {
			m = m.appendLog(fmt.Sprintf("refresh error: %v", msg.err))
		}
	}
	return m, nil
}

func (m model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("triage-agent admin")
	meta := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("q to quit • refresh every 2s")

	statsBody := m.renderStats()
	logBody := "(no log events yet)"
	if len(m.logLines) > 0 {
		logBody = strings.Join(m.logLines, "\n")
	}

	paneWidth := 54
	if m.width > 0 {
		paneWidth = max(38, (m.width-3)/2)
	}
	paneHeight := 9
	if m.height > 0 {
		paneHeight = max(8, (m.height-8)/2)
	}

	topRow := joinColumns(
		renderPane("Memory Stats", statsBody, paneWidth, paneHeight),
		renderPane("General Logs", logBody, paneWidth, paneHeight),
	)
	bottomRow := joinColumns(
		renderPane("Recent Turns", formatTurnPane(m.turns), paneWidth, paneHeight),
		renderPane("Recent Memories", formatRecentMemoriesPane(m.memories), paneWidth, paneHeight),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		meta,
		"",
		topRow,
		bottomRow,
	)
}

func (m model) renderStats() string {
	body := fmt.Sprintf(
		"Total memories:  %d\nActive:          %d\nArchived:        %d\nLast refresh:    %s",
		m.stats.Total,
		m.stats.Active,
		m.stats.Archived,
		formatTime(m.lastTick),
	)
	if m.lastErr != nil {
		body += "\n\nLast error: " + truncateText(compactWhitespace(m.lastErr.Error()), 120)
	}
	return body
}

func fetchDashboardCmd(ctx context.Context, st dashboardStore, turnLimit, memLimit int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		s, err := st.Stats(ctx)
		if err != nil {
			return dashboardMsg{err: err, duration: time.Since(start)}
		}

		turns, err := st.RecentTurnLogs(ctx, turnLimit)
		if err != nil {
			return dashboardMsg{stats: s, err: err, duration: time.Since(start)}
		}

		memories, err := st.RecentMemories(ctx, memLimit)
		if err != nil {
			return dashboardMsg{stats: s, turns: turns, err: err, duration: time.Since(start)}
		}

		return dashboardMsg{
			stats:    s,
			turns:    turns,
			memories: memories,
			duration: time.Since(start),
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func (m model) appendLog(line string) model {
	if strings.TrimSpace(line) == "" {
		return m
	}
	entry := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05"), line)
	m.logLines = append(m.logLines, entry)
	if m.maxLogs <= 0 {
		m.maxLogs = 10
	}
	if len(m.logLines) > m.maxLogs {
		m.logLines = m.logLines[len(m.logLines)-m.maxLogs:]
	}
	return m
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

func renderPane(title, body string, width, height int) string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	if width > 0 {
		style = style.Width(width)
	}
	if height > 0 {
		style = style.Height(height)
	}
	return style.Render(title + "\n\n" + body)
}

func joinColumns(left, right string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func formatTurnPane(rows []store.TurnLog) string {
	if len(rows) == 0 {
		return "(no turns yet)"
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		wrote := " "
		if row.MemoryWritten {
			wrote = "M"
		}
		line := fmt.Sprintf(
			"[%s] %-18s %s %4dms %s",
			formatClock(row.CreatedAt),
			truncateText(row.Phase, 18),
			wrote,
			max(0, row.DurationMS),
			truncateText(compactWhitespace(row.UserQuery), 36),
		)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatRecentMemoriesPane(rows []types.MemoryEntry) string {
	if len(rows) == 0 {
		return "(no memories yet)"
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		state := "A"
		if row.IsArchived {
			state = "Z"
		}
		content := truncateText(compactWhitespace(row.Content), 60)
		line := fmt.Sprintf(
			"[%s] %s %4.1f :: %s",
			formatClock(row.Timestamp),
			state,
			row.ImportanceScore,
			content,
		)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.UTC().Format("15:04:05")
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func compactWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
