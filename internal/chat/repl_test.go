package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/xiy/triage-agent/internal/agent"
	"github.com/xiy/triage-agent/internal/config"
	"github.com/xiy/triage-agent/internal/store"
	"github.com/xiy/triage-agent/pkg/types"
)

type stubGen struct{ calls int }

func (s *stubGen) Complete(context.Context, string, []types.Message) (string, error) {
	s.calls++
	return "stub answer", nil
}

type stubMem struct {
	cleared  bool
	statsErr error
}

func (s *stubMem) RecordInteraction(context.Context, string, string, map[string]any) (*types.MemoryEntry, error) {
	return nil, nil
}
func (s *stubMem) GetContext(context.Context, string, int) ([]types.MemoryEntry, []types.MemoryEntry, error) {
	return nil, nil, nil
}
func (s *stubMem) FormatForPrompt([]types.MemoryEntry, []types.MemoryEntry) string { return "" }
func (s *stubMem) Stats(context.Context) (types.MemoryStats, error) {
	if s.statsErr != nil {
		return types.MemoryStats{}, s.statsErr
	}
	return types.MemoryStats{ActiveCount: 2, TotalCount: 3, ArchivedCount: 1}, nil
}
func (s *stubMem) IndexSize() int                 { return 1 }
func (s *stubMem) ClearAll(context.Context) error { s.cleared = true; return nil }

type stubBrowser struct{ turnLogs int }

func (s *stubBrowser) RecentMemories(context.Context, int) ([]types.MemoryEntry, error) {
	return nil, nil
}
func (s *stubBrowser) InsertTurnLog(context.Context, store.TurnLog) error {
	s.turnLogs++
	return nil
}

type stubKB struct{}

func (stubKB) Search(context.Context, string, int) ([]types.Document, error) { return nil, nil }
func (stubKB) Size() int                                                     { return 4 }

func newTestREPL(input string, gen *stubGen, mem *stubMem, browser *stubBrowser) (*REPL, *strings.Builder) {
	cfg := config.Default()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	graph := agent.New(gen, mem, stubKB{}, cfg, logger)
	var out strings.Builder
	r := New(graph, ModeSimple, mem, browser, stubKB{}, cfg, logger, strings.NewReader(input), &out)
	return r, &out
}

func TestRun_SlashCommandsBypassGraph(t *testing.T) {
	t.Parallel()
	gen := &stubGen{}
	mem := &stubMem{}
	browser := &stubBrowser{}
	r, out := newTestREPL("/stats\n/vectorstats\n/quit\n", gen, mem, browser)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("slash commands must not invoke the graph, got %d generation calls", gen.calls)
	}
	if !strings.Contains(out.String(), "2 active") {
		t.Fatalf("missing stats output:\n%s", out.String())
	}
}

func TestRun_EmptyInputIgnored(t *testing.T) {
	t.Parallel()
	gen := &stubGen{}
	mem := &stubMem{}
	browser := &stubBrowser{}
	r, _ := newTestREPL("\n   \n/exit\n", gen, mem, browser)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gen.calls != 0 || browser.turnLogs != 0 {
		t.Fatalf("empty lines should be ignored: calls=%d logs=%d", gen.calls, browser.turnLogs)
	}
}

func TestRun_TurnInvokesGraphAndLogs(t *testing.T) {
	t.Parallel()
	gen := &stubGen{}
	mem := &stubMem{}
	browser := &stubBrowser{}
	r, out := newTestREPL("why is the printer offline?\n/quit\n", gen, mem, browser)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", gen.calls)
	}
	if browser.turnLogs != 1 {
		t.Fatalf("expected one turn log, got %d", browser.turnLogs)
	}
	if !strings.Contains(out.String(), "stub answer") {
		t.Fatalf("response not printed:\n%s", out.String())
	}
}

func TestRun_TurnSurvivesStatsFailure(t *testing.T) {
	t.Parallel()
	gen := &stubGen{}
	mem := &stubMem{statsErr: errors.New("db locked")}
	browser := &stubBrowser{}
	r, out := newTestREPL("my vpn keeps dropping\n/quit\n", gen, mem, browser)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", gen.calls)
	}
	if browser.turnLogs != 1 {
		t.Fatalf("expected the turn log to be recorded, got %d", browser.turnLogs)
	}
	if !strings.Contains(out.String(), "stub answer") {
		t.Fatalf("response not printed:\n%s", out.String())
	}
}

func TestRun_ClearCommand(t *testing.T) {
	t.Parallel()
	gen := &stubGen{}
	mem := &stubMem{}
	browser := &stubBrowser{}
	r, _ := newTestREPL("/clear\n/quit\n", gen, mem, browser)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !mem.cleared {
		t.Fatal("expected /clear to clear memories")
	}
}

func TestRun_FinalStatsOnEOF(t *testing.T) {
	t.Parallel()
	r, out := newTestREPL("", &stubGen{}, &stubMem{}, &stubBrowser{})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "session ended") {
		t.Fatalf("missing final stats:\n%s", out.String())
	}
}
