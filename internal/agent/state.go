// Package agent implements the conversation orchestration graph: a fixed
// sequence of nodes executed once per turn, each reading the running
// state and contributing a patch that the runner folds back in. Nodes
// never fail a turn; every collaborator error degrades to an empty or
// fallback result.
package agent

import (
	"fmt"
	"strings"

	"github.com/xiy/triage-agent/pkg/types"
)

// Phase names the stage of a structured triage conversation.
type Phase int

const (
	PhaseInitialAssessment Phase = iota
	PhaseGatheringDetails
	PhaseGeneratingTicket
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialAssessment:
		return "initial_assessment"
	case PhaseGatheringDetails:
		return "gathering_details"
	case PhaseGeneratingTicket:
		return "generating_ticket"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// UserDetails identifies the person the ticket is filed for.
type UserDetails struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Location   string `json:"location,omitempty"`
}

// Empty reports whether no detail has been collected yet.
func (u UserDetails) Empty() bool {
	return u.Name == "" && u.Email == "" && u.Department == "" && u.Location == ""
}

// TicketFields is the partially-filled ticket record accumulated across
// turns. Extraction merges into it without regressing known values.
type TicketFields struct {
	Title            string      `json:"title,omitempty"`
	Description      string      `json:"description,omitempty"`
	Category         string      `json:"category,omitempty"`
	Subcategory      string      `json:"subcategory,omitempty"`
	Priority         string      `json:"priority,omitempty"`
	Urgency          string      `json:"urgency,omitempty"`
	UserDetails      UserDetails `json:"userDetails,omitempty"`
	ImpactDetails    string      `json:"impactDetails,omitempty"`
	TechnicalDetails string      `json:"technicalDetails,omitempty"`
}

// CategorySuggestion is one candidate classification for the ticket.
type CategorySuggestion struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// State is the single record threaded through one orchestration run.
// The caller owns it between turns and hands it back in for the next.
type State struct {
	UserQuery           string
	ProcessedQuery      string
	ActiveMemories      []types.MemoryEntry
	RecalledMemories    []types.MemoryEntry
	RetrievedDocuments  []types.Document
	AgentResponse       string
	MemoryStats         types.MemoryStats
	IterationCount      int
	Phase               Phase
	TicketFields        TicketFields
	QuestionsAsked      []string
	QuestionCount       int
	SuggestedCategories []CategorySuggestion
	FormattedTicket     string
	History             []types.Message
}

// Patch is one node's contribution to the turn. Nil pointer fields and
// nil slices leave the corresponding state untouched; QuestionsAsked and
// History are append-only.
type Patch struct {
	ProcessedQuery      *string
	ActiveMemories      []types.MemoryEntry
	RecalledMemories    []types.MemoryEntry
	RetrievedDocuments  []types.Document
	AgentResponse       *string
	MemoryStats         *types.MemoryStats
	IterationDelta      int
	Phase               *Phase
	TicketFields        *TicketFields
	UserDetails         *UserDetails
	QuestionsAsked      []string
	QuestionDelta       int
	SuggestedCategories []CategorySuggestion
	FormattedTicket     *string
	History             []types.Message
}

// apply folds a patch into the state. TicketFields and UserDetails go
// through the non-regressing merge; everything else is replace or append.
func (s *State) apply(p Patch) {
	if p.ProcessedQuery != nil {
		s.ProcessedQuery = *p.ProcessedQuery
	}
	if p.ActiveMemories != nil {
		s.ActiveMemories = p.ActiveMemories
	}
	if p.RecalledMemories != nil {
		s.RecalledMemories = p.RecalledMemories
	}
	if p.RetrievedDocuments != nil {
		s.RetrievedDocuments = p.RetrievedDocuments
	}
	if p.AgentResponse != nil {
		s.AgentResponse = *p.AgentResponse
	}
	if p.MemoryStats != nil {
		s.MemoryStats = *p.MemoryStats
	}
	s.IterationCount += p.IterationDelta
	if p.Phase != nil {
		s.Phase = *p.Phase
	}
	if p.TicketFields != nil {
		s.TicketFields = mergeTicketFields(s.TicketFields, *p.TicketFields)
	}
	if p.UserDetails != nil {
		s.TicketFields.UserDetails = mergeUserDetails(s.TicketFields.UserDetails, *p.UserDetails)
	}
	s.QuestionsAsked = append(s.QuestionsAsked, p.QuestionsAsked...)
	s.QuestionCount += p.QuestionDelta
	if p.SuggestedCategories != nil {
		s.SuggestedCategories = p.SuggestedCategories
	}
	if p.FormattedTicket != nil {
		s.FormattedTicket = *p.FormattedTicket
	}
	s.History = append(s.History, p.History...)
}

func phasePtr(p Phase) *Phase { return &p }
func strPtr(s string) *string { return &s }

func requiredFieldsPresent(f TicketFields) bool {
	return strings.TrimSpace(f.Title) != "" &&
		strings.TrimSpace(f.Description) != "" &&
		strings.TrimSpace(f.UserDetails.Name) != "" &&
		strings.TrimSpace(f.UserDetails.Email) != ""
}
