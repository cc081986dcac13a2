package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/triage-agent/internal/config"
	"github.com/xiy/triage-agent/pkg/types"
)

// Generator is the text-generation collaborator. Failures never cross a
// node boundary; each call site degrades on error.
type Generator interface {
	Complete(ctx context.Context, system string, msgs []types.Message) (string, error)
}

// Memories is the slice of the memory service the graph consumes.
type Memories interface {
	RecordInteraction(ctx context.Context, userText, assistantText string, metadata map[string]any) (*types.MemoryEntry, error)
	GetContext(ctx context.Context, query string, maxCount int) (active, recalled []types.MemoryEntry, err error)
	FormatForPrompt(active, recalled []types.MemoryEntry) string
	Stats(ctx context.Context) (types.MemoryStats, error)
}

// Retriever is the knowledge-base similarity search collaborator.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]types.Document, error)
}

const fallbackResponse = "I'm having trouble reaching the assistant service right now. Please try again in a moment."

// Graph runs the per-turn node sequence. Two topologies share the same
// nodes: the simple linear Q&A flow and the phase-routed triage flow.
type Graph struct {
	gen    Generator
	mem    Memories
	kb     Retriever
	cfg    config.Config
	logger *log.Logger
	now    func() time.Time
}

func New(gen Generator, mem Memories, retriever Retriever, cfg config.Config, logger *log.Logger) *Graph {
	return &Graph{gen: gen, mem: mem, kb: retriever, cfg: cfg, logger: logger, now: time.Now}
}

// RunSimple executes one turn of the linear topology:
// queryProcessor, memoryRetrieval, ragRetrieval, generateResponse,
// memoryUpdate. It always returns a usable state with a response set.
func (g *Graph) RunSimple(ctx context.Context, state State) State {
	s := state
	s.apply(g.queryProcessor(&s))
	s.apply(g.memoryRetrieval(ctx, &s, false))
	s.apply(g.ragRetrieval(ctx, &s))
	patch, _ := g.generateResponse(ctx, &s, simpleSystemPrompt)
	s.apply(patch)
	s.apply(g.memoryUpdate(ctx, &s, s.Phase))
	return s
}

// RunTriage executes one turn of the phase-routed topology. Routing is
// evaluated after extraction and categorization so the decision sees
// this turn's fields; the ticket generator only runs when routing
// landed the conversation in the generating phase.
func (g *Graph) RunTriage(ctx context.Context, state State) State {
	s := state
	phaseBefore := s.Phase

	s.apply(g.queryProcessor(&s))
	s.apply(g.memoryRetrieval(ctx, &s, true))
	s.apply(g.conversationNode(ctx, &s))
	s.apply(g.extractionNode(ctx, &s))
	s.apply(g.categorizationNode(ctx, &s))
	s.apply(g.routingDecision(&s))
	if s.Phase == PhaseGeneratingTicket {
		s.apply(g.ticketGenerator(ctx, &s))
	}
	s.apply(g.memoryUpdate(ctx, &s, phaseBefore))
	return s
}

// queryProcessor trims the input and advances the turn counter. It is
// the only node with no collaborator and it never fails.
func (g *Graph) queryProcessor(s *State) Patch {
	return Patch{
		ProcessedQuery: strPtr(strings.TrimSpace(s.UserQuery)),
		IterationDelta: 1,
	}
}

// memoryRetrieval loads active and recalled memory context. The triage
// variant also scans memory content for requester details disclosed in
// earlier sessions, filling only fields not already known.
func (g *Graph) memoryRetrieval(ctx context.Context, s *State, scanDetails bool) Patch {
	active, recalled, err := g.mem.GetContext(ctx, s.ProcessedQuery, g.cfg.MemoryContextCount)
	if err != nil {
		g.logger.Warn("memory retrieval failed, continuing without context", "error", err)
		active, recalled = nil, nil
	}
	if active == nil {
		active = []types.MemoryEntry{}
	}
	if recalled == nil {
		recalled = []types.MemoryEntry{}
	}

	patch := Patch{ActiveMemories: active, RecalledMemories: recalled}
	if scanDetails {
		combined := make([]types.MemoryEntry, 0, len(active)+len(recalled))
		combined = append(combined, active...)
		combined = append(combined, recalled...)
		details := scanMemoriesForUserDetails(s.TicketFields.UserDetails, combined)
		patch.UserDetails = &details
	}
	return patch
}

// ragRetrieval fetches supporting documents for the answer. Retriever
// errors degrade to an empty result set.
func (g *Graph) ragRetrieval(ctx context.Context, s *State) Patch {
	docs, err := g.kb.Search(ctx, s.ProcessedQuery, g.cfg.RetrievalK)
	if err != nil {
		g.logger.Warn("knowledge retrieval failed", "error", err)
		docs = nil
	}
	if docs == nil {
		docs = []types.Document{}
	}
	return Patch{RetrievedDocuments: docs}
}

// generateResponse makes the single generation call for the turn. The
// returned flag reports whether the response came from the model; a
// failed call yields the fallback text and false.
func (g *Graph) generateResponse(ctx context.Context, s *State, systemPrompt string) (Patch, bool) {
	memoryBlock := g.mem.FormatForPrompt(s.ActiveMemories, s.RecalledMemories)
	system := systemPrompt + buildConversationContext(s, memoryBlock)

	msgs := append([]types.Message{}, s.History...)
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: s.ProcessedQuery})

	text, err := g.gen.Complete(ctx, system, msgs)
	if err != nil {
		g.logger.Warn("generation failed, using fallback response", "error", err)
		return Patch{AgentResponse: strPtr(fallbackResponse)}, false
	}
	return Patch{AgentResponse: strPtr(strings.TrimSpace(text))}, true
}

// conversationNode is generateResponse plus question accounting: while
// gathering details, each assistant reply counts as one question asked.
// A fallback apology is not a question, so failed calls do not advance
// the count toward the routing threshold.
func (g *Graph) conversationNode(ctx context.Context, s *State) Patch {
	patch, ok := g.generateResponse(ctx, s, triageSystemPrompt)
	if ok && s.Phase == PhaseGatheringDetails && patch.AgentResponse != nil {
		patch.QuestionDelta = 1
		patch.QuestionsAsked = []string{*patch.AgentResponse}
	}
	return patch
}

// extractionNode asks for a structured read of the conversation and
// merges it into the accumulated ticket fields. A malformed response
// contributes nothing this turn.
func (g *Graph) extractionNode(ctx context.Context, s *State) Patch {
	if s.Phase == PhaseComplete {
		return Patch{}
	}

	transcript := renderTranscript(s.History, s.ProcessedQuery, s.AgentResponse)
	raw, err := g.gen.Complete(ctx, extractionPrompt, []types.Message{
		{Role: types.RoleUser, Content: transcript},
	})
	if err != nil {
		g.logger.Warn("field extraction failed", "error", err)
		return Patch{}
	}
	fields, ok := parseTicketFields(raw)
	if !ok {
		g.logger.Warn("field extraction returned malformed JSON, keeping prior fields")
		return Patch{}
	}
	return Patch{TicketFields: &fields}
}

// categorizationNode retrieves a wider document set than the answer
// path and asks for candidate classifications.
func (g *Graph) categorizationNode(ctx context.Context, s *State) Patch {
	if s.Phase == PhaseComplete {
		return Patch{}
	}

	docs, err := g.kb.Search(ctx, s.ProcessedQuery, g.cfg.CategorizationK)
	if err != nil {
		g.logger.Warn("categorization retrieval failed", "error", err)
		docs = nil
	}

	var sb strings.Builder
	sb.WriteString("Issue: ")
	sb.WriteString(valueOr(s.TicketFields.Title, s.ProcessedQuery))
	if s.TicketFields.Description != "" {
		sb.WriteString("\nDescription: ")
		sb.WriteString(s.TicketFields.Description)
	}
	if len(docs) > 0 {
		sb.WriteString("\n\nReference excerpts:\n")
		for _, doc := range docs {
			fmt.Fprintf(&sb, "- %s\n", doc.Content)
		}
	}

	raw, err := g.gen.Complete(ctx, categorizationPrompt, []types.Message{
		{Role: types.RoleUser, Content: sb.String()},
	})
	if err != nil {
		g.logger.Warn("categorization failed", "error", err)
		return Patch{}
	}
	suggestions, ok := parseCategorySuggestions(raw)
	if !ok || len(suggestions) == 0 {
		return Patch{}
	}
	return Patch{SuggestedCategories: suggestions}
}

// routingDecision applies the phase transition table.
func (g *Graph) routingDecision(s *State) Patch {
	next := nextPhase(s.Phase, s.TicketFields, s.QuestionCount, g.cfg.MaxQuestionsBeforeForcedTicket)
	return Patch{Phase: phasePtr(next)}
}

// ticketGenerator produces the final ticket document. On generation
// failure the phase regresses to gathering_details and the user gets an
// apology instead of a ticket; the next turn retries the whole path.
func (g *Graph) ticketGenerator(ctx context.Context, s *State) Patch {
	raw, err := g.gen.Complete(ctx, priorityPrompt, []types.Message{
		{Role: types.RoleUser, Content: summarizeTicketFields(s.TicketFields)},
	})
	if err != nil {
		g.logger.Warn("ticket generation failed, returning to detail gathering", "error", err)
		return Patch{
			Phase:         phasePtr(PhaseGatheringDetails),
			AgentResponse: strPtr(ticketFailureResponse),
		}
	}

	assessment := parsePriorityAssessment(raw)
	ticket := renderTicket(s.TicketFields, s.SuggestedCategories, assessment, g.now().UTC())
	response := "Your ticket has been created:\n\n" + ticket

	return Patch{
		Phase:           phasePtr(PhaseComplete),
		FormattedTicket: strPtr(ticket),
		AgentResponse:   strPtr(response),
		TicketFields: &TicketFields{
			Priority: assessment.Priority,
			Urgency:  assessment.Urgency,
		},
	}
}

// memoryUpdate is the always-last node: it feeds the turn through the
// memory write pipeline, appends the exchange to the transcript, and
// refreshes the stats snapshot. Each memory write is independently
// subject to the personal-content filter, so any of the three may
// legitimately store nothing.
func (g *Graph) memoryUpdate(ctx context.Context, s *State, phaseBefore Phase) Patch {
	meta := map[string]any{"turn": s.IterationCount, "phase": s.Phase.String()}
	if _, err := g.mem.RecordInteraction(ctx, s.UserQuery, s.AgentResponse, meta); err != nil {
		g.logger.Warn("memory write failed for exchange", "error", err)
	}

	if phaseBefore != PhaseComplete && s.Phase == PhaseComplete {
		summary := fmt.Sprintf("Created support ticket %q for %s (%s)",
			valueOr(s.TicketFields.Title, "untitled"),
			valueOr(s.TicketFields.UserDetails.Name, "unknown user"),
			valueOr(s.TicketFields.Category, "uncategorized"))
		if _, err := g.mem.RecordInteraction(ctx, summary, "", map[string]any{"kind": "ticket_created"}); err != nil {
			g.logger.Warn("memory write failed for ticket record", "error", err)
		}
	}

	if !s.TicketFields.UserDetails.Empty() {
		d := s.TicketFields.UserDetails
		var parts []string
		if d.Name != "" {
			parts = append(parts, "name is "+d.Name)
		}
		if d.Email != "" {
			parts = append(parts, "email is "+d.Email)
		}
		if d.Department != "" {
			parts = append(parts, "works in the "+d.Department+" department")
		}
		if d.Location != "" {
			parts = append(parts, "located in "+d.Location)
		}
		summary := "User's " + strings.Join(parts, ", ")
		if _, err := g.mem.RecordInteraction(ctx, summary, "", map[string]any{"kind": "user_details"}); err != nil {
			g.logger.Warn("memory write failed for user details", "error", err)
		}
	}

	patch := Patch{
		History: []types.Message{
			{Role: types.RoleUser, Content: s.UserQuery},
			{Role: types.RoleAssistant, Content: s.AgentResponse},
		},
	}
	if stats, err := g.mem.Stats(ctx); err != nil {
		g.logger.Warn("stats refresh failed", "error", err)
	} else {
		patch.MemoryStats = &stats
	}
	return patch
}

func renderTranscript(history []types.Message, userQuery, agentResponse string) string {
	var sb strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&sb, "%s: %s\n", types.RoleUser, userQuery)
	if agentResponse != "" {
		fmt.Fprintf(&sb, "%s: %s\n", types.RoleAssistant, agentResponse)
	}
	return sb.String()
}
