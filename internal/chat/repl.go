// Package chat is the terminal front end: a line-oriented REPL that
// feeds turns into the orchestration graph and handles the
// administrative slash commands locally, without touching the graph.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/xiy/triage-agent/internal/agent"
	"github.com/xiy/triage-agent/internal/config"
	"github.com/xiy/triage-agent/internal/store"
	"github.com/xiy/triage-agent/pkg/types"
)

// Mode selects the graph topology driven by the REPL.
type Mode int

const (
	ModeSimple Mode = iota
	ModeTriage
)

var (
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	responseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// MemoryAdmin is the slice of the memory service the slash commands use.
type MemoryAdmin interface {
	Stats(ctx context.Context) (types.MemoryStats, error)
	IndexSize() int
	ClearAll(ctx context.Context) error
}

// MemoryBrowser lists stored entries for /memories.
type MemoryBrowser interface {
	RecentMemories(ctx context.Context, limit int) ([]types.MemoryEntry, error)
	InsertTurnLog(ctx context.Context, rec store.TurnLog) error
}

// KnowledgeInfo backs /vectorstats.
type KnowledgeInfo interface {
	Size() int
}

// REPL owns one interactive session. Turns are strictly single-flight:
// the loop blocks on the graph before reading the next line.
type REPL struct {
	graph     *agent.Graph
	mode      Mode
	mem       MemoryAdmin
	browser   MemoryBrowser
	kb        KnowledgeInfo
	cfg       config.Config
	logger    *log.Logger
	in        io.Reader
	out       io.Writer
	sessionID string
}

func New(graph *agent.Graph, mode Mode, mem MemoryAdmin, browser MemoryBrowser, knowledge KnowledgeInfo, cfg config.Config, logger *log.Logger, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		graph:     graph,
		mode:      mode,
		mem:       mem,
		browser:   browser,
		kb:        knowledge,
		cfg:       cfg,
		logger:    logger,
		in:        in,
		out:       out,
		sessionID: uuid.NewString(),
	}
}

// Run drives the session until /quit, /exit, EOF, or context
// cancellation. Final memory statistics are printed on the way out.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, promptStyle.Render(r.cfg.AgentName))
	fmt.Fprintln(r.out, infoStyle.Render("Type /help for commands."))

	state := agent.State{}
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprint(r.out, promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.handleCommand(ctx, line); quit {
				break
			}
			continue
		}

		state = r.runTurn(ctx, state, line)
	}

	r.printFinalStats(ctx)
	return scanner.Err()
}

func (r *REPL) runTurn(ctx context.Context, state agent.State, input string) agent.State {
	state.UserQuery = input
	start := time.Now()

	before, err := r.mem.Stats(ctx)
	if err != nil {
		r.logger.Warn("memory stats read failed", "error", err)
	}
	switch r.mode {
	case ModeTriage:
		state = r.graph.RunTriage(ctx, state)
	default:
		state = r.graph.RunSimple(ctx, state)
	}
	after := state.MemoryStats

	fmt.Fprintln(r.out, responseStyle.Render(state.AgentResponse))
	fmt.Fprintln(r.out)

	rec := store.TurnLog{
		SessionID:     r.sessionID,
		Phase:         state.Phase.String(),
		UserQuery:     input,
		ResponseChars: len(state.AgentResponse),
		MemoryWritten: after.TotalCount > before.TotalCount,
		DurationMS:    time.Since(start).Milliseconds(),
	}
	if err := r.browser.InsertTurnLog(ctx, rec); err != nil {
		r.logger.Warn("turn log write failed", "error", err)
	}
	return state
}

// handleCommand services a slash command and reports whether the
// session should end.
func (r *REPL) handleCommand(ctx context.Context, line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/help":
		fmt.Fprintln(r.out, infoStyle.Render(helpText))
	case "/stats":
		r.printStats(ctx)
	case "/memories":
		r.printMemories(ctx)
	case "/vectorstats":
		fmt.Fprintln(r.out, infoStyle.Render(fmt.Sprintf(
			"knowledge chunks: %d, recall index entries: %d",
			r.kb.Size(), r.mem.IndexSize())))
	case "/clear":
		if err := r.mem.ClearAll(ctx); err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("clear failed: "+err.Error()))
		} else {
			fmt.Fprintln(r.out, infoStyle.Render("all memories cleared"))
		}
	case "/quit", "/exit":
		return true
	default:
		fmt.Fprintln(r.out, errorStyle.Render("unknown command; try /help"))
	}
	return false
}

const helpText = `commands:
  /help         show this help
  /stats        memory statistics
  /memories     recently stored memories
  /vectorstats  vector index sizes
  /clear        delete all memories
  /quit, /exit  end the session`

func (r *REPL) printStats(ctx context.Context) {
	stats, err := r.mem.Stats(ctx)
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render("stats unavailable: "+err.Error()))
		return
	}
	fmt.Fprintln(r.out, infoStyle.Render(fmt.Sprintf(
		"memories: %d active, %d archived, %d total | ~%d tokens (%.0f%% of context)",
		stats.ActiveCount, stats.ArchivedCount, stats.TotalCount,
		stats.ActiveTokenEstimate, stats.ContextUtilization*100)))
}

func (r *REPL) printMemories(ctx context.Context) {
	entries, err := r.browser.RecentMemories(ctx, 10)
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render("memories unavailable: "+err.Error()))
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, infoStyle.Render("(no memories yet)"))
		return
	}
	for _, entry := range entries {
		state := "active"
		if entry.IsArchived {
			state = "archived"
		}
		fmt.Fprintln(r.out, infoStyle.Render(fmt.Sprintf(
			"[%s] %.1f %-8s %s",
			entry.Timestamp.Format("2006-01-02 15:04"),
			entry.ImportanceScore, state, entry.Content)))
	}
}

func (r *REPL) printFinalStats(ctx context.Context) {
	stats, err := r.mem.Stats(ctx)
	if err != nil {
		return
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, infoStyle.Render(fmt.Sprintf(
		"session ended: %d memories (%d active, %d archived)",
		stats.TotalCount, stats.ActiveCount, stats.ArchivedCount)))
}
