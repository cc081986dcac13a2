package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/triage-agent/internal/config"
	"github.com/xiy/triage-agent/pkg/types"
)

// fakeGen routes by system prompt so one fake serves every node.
type fakeGen struct {
	conversation string
	extraction   string
	categories   string
	priority     string
	failAll      bool
	failPriority bool
	calls        []string
}

func (f *fakeGen) Complete(_ context.Context, system string, _ []types.Message) (string, error) {
	if f.failAll {
		return "", errors.New("generation unavailable")
	}
	switch {
	case strings.Contains(system, "Extract ticket fields"):
		f.calls = append(f.calls, "extraction")
		return f.extraction, nil
	case strings.Contains(system, "Classify this support issue"):
		f.calls = append(f.calls, "categorization")
		return f.categories, nil
	case strings.Contains(system, "priority and urgency"):
		f.calls = append(f.calls, "priority")
		if f.failPriority {
			return "", errors.New("generation unavailable")
		}
		return f.priority, nil
	default:
		f.calls = append(f.calls, "conversation")
		return f.conversation, nil
	}
}

type recordedWrite struct {
	userText string
	metadata map[string]any
}

type fakeMem struct {
	active   []types.MemoryEntry
	recalled []types.MemoryEntry
	writes   []recordedWrite
	stats    types.MemoryStats
}

func (f *fakeMem) RecordInteraction(_ context.Context, userText, _ string, metadata map[string]any) (*types.MemoryEntry, error) {
	f.writes = append(f.writes, recordedWrite{userText: userText, metadata: metadata})
	return nil, nil
}

func (f *fakeMem) GetContext(_ context.Context, _ string, _ int) ([]types.MemoryEntry, []types.MemoryEntry, error) {
	return f.active, f.recalled, nil
}

func (f *fakeMem) FormatForPrompt(active, recalled []types.MemoryEntry) string {
	if len(active) == 0 && len(recalled) == 0 {
		return ""
	}
	return "memory block"
}

func (f *fakeMem) Stats(_ context.Context) (types.MemoryStats, error) {
	return f.stats, nil
}

type fakeKB struct {
	docs []types.Document
	ks   []int
}

func (f *fakeKB) Search(_ context.Context, _ string, k int) ([]types.Document, error) {
	f.ks = append(f.ks, k)
	return f.docs, nil
}

func newTestGraph(gen *fakeGen, mem *fakeMem, retriever *fakeKB) *Graph {
	cfg := config.Default()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	g := New(gen, mem, retriever, cfg, logger)
	g.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestRunSimple_ProducesResponseAndHistory(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{conversation: "The VPN requires a hardware token."}
	mem := &fakeMem{stats: types.MemoryStats{ActiveCount: 1, TotalCount: 1}}
	retriever := &fakeKB{docs: []types.Document{{Content: "VPN doc"}}}
	g := newTestGraph(gen, mem, retriever)

	out := g.RunSimple(context.Background(), State{UserQuery: "  how do I use the VPN?  "})

	if out.ProcessedQuery != "how do I use the VPN?" {
		t.Fatalf("query not trimmed: %q", out.ProcessedQuery)
	}
	if out.AgentResponse != "The VPN requires a hardware token." {
		t.Fatalf("unexpected response %q", out.AgentResponse)
	}
	if out.IterationCount != 1 {
		t.Fatalf("iteration count = %d", out.IterationCount)
	}
	if len(out.History) != 2 || out.History[0].Role != types.RoleUser || out.History[1].Role != types.RoleAssistant {
		t.Fatalf("history not appended as one exchange: %+v", out.History)
	}
	if len(mem.writes) != 1 {
		t.Fatalf("expected one memory write, got %d", len(mem.writes))
	}
	if out.MemoryStats.TotalCount != 1 {
		t.Fatalf("stats not refreshed: %+v", out.MemoryStats)
	}
	if len(retriever.ks) != 1 || retriever.ks[0] != config.Default().RetrievalK {
		t.Fatalf("expected single retrieval with k=%d, got %v", config.Default().RetrievalK, retriever.ks)
	}
}

func TestRunSimple_GenerationFailureUsesFallback(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{failAll: true}
	g := newTestGraph(gen, &fakeMem{}, &fakeKB{})

	out := g.RunSimple(context.Background(), State{UserQuery: "hello"})
	if out.AgentResponse != fallbackResponse {
		t.Fatalf("expected fallback response, got %q", out.AgentResponse)
	}
}

func TestRunTriage_FirstTurnAdvancesToGathering(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{
		conversation: "What happens when you try to connect?",
		extraction:   `{"title":"VPN failure"}`,
		categories:   `[]`,
	}
	g := newTestGraph(gen, &fakeMem{}, &fakeKB{})

	out := g.RunTriage(context.Background(), State{UserQuery: "my VPN is broken"})

	if out.Phase != PhaseGatheringDetails {
		t.Fatalf("phase = %v, want gathering_details", out.Phase)
	}
	if out.TicketFields.Title != "VPN failure" {
		t.Fatalf("extraction not merged: %+v", out.TicketFields)
	}
	// First turn starts in initial_assessment, so the reply is not a
	// gathering question yet.
	if out.QuestionCount != 0 {
		t.Fatalf("question count = %d on first turn", out.QuestionCount)
	}
}

func TestRunTriage_GatheringCountsQuestions(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{
		conversation: "Could you share your email?",
		extraction:   `{}`,
		categories:   `[]`,
	}
	g := newTestGraph(gen, &fakeMem{}, &fakeKB{})

	out := g.RunTriage(context.Background(), State{
		UserQuery: "it errors with code 789",
		Phase:     PhaseGatheringDetails,
	})
	if out.QuestionCount != 1 {
		t.Fatalf("question count = %d, want 1", out.QuestionCount)
	}
	if len(out.QuestionsAsked) != 1 || out.QuestionsAsked[0] != "Could you share your email?" {
		t.Fatalf("questions asked = %v", out.QuestionsAsked)
	}
}

func TestRunTriage_CompletesTicketWhenReady(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{
		conversation: "Thanks, I have everything I need.",
		extraction:   `{"description":"VPN client fails with error 789 on every connect attempt from home."}`,
		categories:   `[{"category":"Network","subcategory":"VPN","confidence":0.92,"reasoning":"connectivity"}]`,
		priority:     `{"priority":"high","urgency":"medium","rationale":"User cannot work remotely."}`,
	}
	mem := &fakeMem{}
	retriever := &fakeKB{docs: []types.Document{{Content: "VPN troubleshooting guide"}}}
	g := newTestGraph(gen, mem, retriever)

	in := State{
		UserQuery: "that is all the info I have",
		Phase:     PhaseGatheringDetails,
		TicketFields: TicketFields{
			Title:       "VPN failure",
			Description: "VPN broken",
			UserDetails: UserDetails{Name: "Dana Field", Email: "dana@example.com"},
		},
		QuestionCount: 3,
	}
	out := g.RunTriage(context.Background(), in)

	if out.Phase != PhaseComplete {
		t.Fatalf("phase = %v, want complete", out.Phase)
	}
	if out.FormattedTicket == "" {
		t.Fatal("expected a formatted ticket")
	}
	for _, want := range []string{"=== SUPPORT TICKET ===", "Dana Field", "dana@example.com", "Priority: high", "Network / VPN"} {
		if !strings.Contains(out.FormattedTicket, want) {
			t.Fatalf("ticket missing %q:\n%s", want, out.FormattedTicket)
		}
	}
	if out.TicketFields.Priority != "high" || out.TicketFields.Urgency != "medium" {
		t.Fatalf("assessment not merged into fields: %+v", out.TicketFields)
	}

	// Completing a ticket writes three memories: the exchange, the
	// ticket record, and the collected user details.
	if len(mem.writes) != 3 {
		t.Fatalf("expected 3 memory writes, got %d: %+v", len(mem.writes), mem.writes)
	}
	if mem.writes[1].metadata["kind"] != "ticket_created" {
		t.Fatalf("second write should be the ticket record: %+v", mem.writes[1])
	}
	if mem.writes[2].metadata["kind"] != "user_details" {
		t.Fatalf("third write should be user details: %+v", mem.writes[2])
	}
	if !strings.Contains(mem.writes[2].userText, "dana@example.com") {
		t.Fatalf("user details summary missing email: %q", mem.writes[2].userText)
	}

	// Categorization widens retrieval relative to the simple path.
	found := false
	for _, k := range retriever.ks {
		if k == config.Default().CategorizationK {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a k=%d categorization retrieval, got %v", config.Default().CategorizationK, retriever.ks)
	}
}

func TestRunTriage_TicketFailureRegressesPhase(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{
		conversation: "Thanks.",
		extraction:   `{}`,
		categories:   `[]`,
		failPriority: true,
	}
	g := newTestGraph(gen, &fakeMem{}, &fakeKB{})

	in := State{
		UserQuery:     "ready",
		Phase:         PhaseGatheringDetails,
		TicketFields:  completeFields(),
		QuestionCount: 3,
	}
	out := g.RunTriage(context.Background(), in)

	if out.Phase != PhaseGatheringDetails {
		t.Fatalf("phase = %v, want regression to gathering_details", out.Phase)
	}
	if out.FormattedTicket != "" {
		t.Fatalf("no ticket should exist after failure, got %q", out.FormattedTicket)
	}
	if out.AgentResponse != ticketFailureResponse {
		t.Fatalf("expected apologetic response, got %q", out.AgentResponse)
	}
}

func TestRunTriage_MalformedExtractionKeepsPriorFields(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{
		conversation: "Understood.",
		extraction:   "sorry, I can't produce JSON",
		categories:   `[]`,
	}
	g := newTestGraph(gen, &fakeMem{}, &fakeKB{})

	in := State{
		UserQuery:    "still broken",
		Phase:        PhaseGatheringDetails,
		TicketFields: TicketFields{Title: "Existing title"},
	}
	out := g.RunTriage(context.Background(), in)
	if out.TicketFields.Title != "Existing title" {
		t.Fatalf("malformed extraction disturbed fields: %+v", out.TicketFields)
	}
}

func TestRunTriage_RecallsUserDetailsFromMemory(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{conversation: "Hello again, Dana.", extraction: `{}`, categories: `[]`}
	mem := &fakeMem{
		active: []types.MemoryEntry{
			{Content: "User's name is Dana Field, email is dana@example.com"},
		},
	}
	g := newTestGraph(gen, mem, &fakeKB{})

	out := g.RunTriage(context.Background(), State{UserQuery: "hi, my laptop died"})
	if out.TicketFields.UserDetails.Name != "Dana Field" {
		t.Fatalf("name not recalled from memory: %+v", out.TicketFields.UserDetails)
	}
	if out.TicketFields.UserDetails.Email != "dana@example.com" {
		t.Fatalf("email not recalled from memory: %+v", out.TicketFields.UserDetails)
	}
}

func TestRunTriage_FallbackResponseIsNotAQuestion(t *testing.T) {
	t.Parallel()
	gen := &fakeGen{failAll: true}
	g := newTestGraph(gen, &fakeMem{}, &fakeKB{})

	out := g.RunTriage(context.Background(), State{
		UserQuery:     "still broken",
		Phase:         PhaseGatheringDetails,
		QuestionCount: 2,
	})

	if out.AgentResponse != fallbackResponse {
		t.Fatalf("expected fallback response, got %q", out.AgentResponse)
	}
	if out.QuestionCount != 2 {
		t.Fatalf("failed generation must not advance question count, got %d", out.QuestionCount)
	}
	if len(out.QuestionsAsked) != 0 {
		t.Fatalf("apology recorded as a question: %v", out.QuestionsAsked)
	}
}
