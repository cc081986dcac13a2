package agent

import (
	"fmt"
	"strings"
)

const simpleSystemPrompt = `You are a helpful assistant for an internal IT helpdesk.
Answer using the knowledge base excerpts and remembered user context when they are relevant.
If the knowledge base does not cover the question, say so plainly instead of guessing.
Keep answers short and concrete.`

const triageSystemPrompt = `You are an IT support triage assistant. You help users report
problems and turn the conversation into a well-formed support ticket.

Conversation phases:
- initial_assessment: understand what the user is reporting.
- gathering_details: ask focused follow-up questions. You need a problem title,
  a description, and the user's name and email before a ticket can be created.
  Ask for at most one or two things per message.
- generating_ticket: the ticket is being created; confirm and summarize.
- complete: the ticket exists; answer follow-ups and offer further help.

Never invent user details. Use remembered context when it is available.`

const extractionPrompt = `Extract ticket fields from the conversation so far.
Respond with ONLY a JSON object, no prose, using exactly this schema (omit unknown fields):
{
  "title": "short problem title",
  "description": "what is broken and how it manifests",
  "category": "", "subcategory": "",
  "userDetails": {"name": "", "email": "", "department": "", "location": ""},
  "impactDetails": "who/what is affected",
  "technicalDetails": "error messages, systems, versions"
}
Only include values the user actually stated. Never guess.`

const categorizationPrompt = `Classify this support issue. Using the reference excerpts,
respond with ONLY a JSON array of up to 3 candidates, best first:
[{"category": "...", "subcategory": "...", "confidence": 0.0, "reasoning": "..."}]
Confidence is between 0 and 1. No prose outside the JSON.`

const priorityPrompt = `Assess this ticket's priority and urgency.
Respond with ONLY a JSON object:
{"priority": "low|medium|high|critical", "urgency": "low|medium|high", "rationale": "one sentence"}`

// buildConversationContext renders memory, retrieval, and ticket
// progress into the system prompt suffix for the generation call.
func buildConversationContext(s *State, memoryBlock string) string {
	var sb strings.Builder

	if memoryBlock != "" {
		sb.WriteString("\n\n## Remembered user context\n")
		sb.WriteString(memoryBlock)
	}

	if len(s.RetrievedDocuments) > 0 {
		sb.WriteString("\n\n## Knowledge base excerpts\n")
		for _, doc := range s.RetrievedDocuments {
			fmt.Fprintf(&sb, "- %s\n", doc.Content)
		}
	}

	if s.Phase != PhaseInitialAssessment || !s.TicketFields.UserDetails.Empty() {
		if summary := summarizeTicketFields(s.TicketFields); summary != "" {
			sb.WriteString("\n\n## Ticket progress\n")
			sb.WriteString(summary)
		}
	}

	if len(s.SuggestedCategories) > 0 {
		sb.WriteString("\n\n## Category candidates\n")
		for _, c := range s.SuggestedCategories {
			fmt.Fprintf(&sb, "- %s / %s (%.2f): %s\n", c.Category, c.Subcategory, c.Confidence, c.Reasoning)
		}
	}

	if s.Phase != PhaseInitialAssessment {
		fmt.Fprintf(&sb, "\n\nCurrent phase: %s", s.Phase)
	}
	return sb.String()
}

func summarizeTicketFields(f TicketFields) string {
	var lines []string
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Title", f.Title)
	add("Description", f.Description)
	add("Category", f.Category)
	add("Name", f.UserDetails.Name)
	add("Email", f.UserDetails.Email)
	add("Department", f.UserDetails.Department)
	add("Location", f.UserDetails.Location)
	add("Impact", f.ImpactDetails)
	add("Technical", f.TechnicalDetails)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
