package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type priorityAssessment struct {
	Priority  string `json:"priority"`
	Urgency   string `json:"urgency"`
	Rationale string `json:"rationale"`
}

const ticketFailureResponse = "I wasn't able to create the ticket just now. " +
	"Let's double-check the details and I'll try again. Could you confirm the information you've given me is complete?"

// renderTicket produces the final fixed-section ticket document.
func renderTicket(f TicketFields, suggestions []CategorySuggestion, assessment priorityAssessment, createdAt time.Time) string {
	var sb strings.Builder

	sb.WriteString("=== SUPPORT TICKET ===\n")
	fmt.Fprintf(&sb, "Created: %s\n\n", createdAt.Format(time.RFC3339))

	fmt.Fprintf(&sb, "Summary: %s\n\n", valueOr(f.Title, "(untitled)"))
	fmt.Fprintf(&sb, "Description:\n%s\n\n", valueOr(f.Description, "(none provided)"))

	sb.WriteString("Requester:\n")
	fmt.Fprintf(&sb, "  Name:       %s\n", valueOr(f.UserDetails.Name, "-"))
	fmt.Fprintf(&sb, "  Email:      %s\n", valueOr(f.UserDetails.Email, "-"))
	fmt.Fprintf(&sb, "  Department: %s\n", valueOr(f.UserDetails.Department, "-"))
	fmt.Fprintf(&sb, "  Location:   %s\n\n", valueOr(f.UserDetails.Location, "-"))

	if f.ImpactDetails != "" || f.TechnicalDetails != "" {
		sb.WriteString("Details:\n")
		if f.ImpactDetails != "" {
			fmt.Fprintf(&sb, "  Impact:    %s\n", f.ImpactDetails)
		}
		if f.TechnicalDetails != "" {
			fmt.Fprintf(&sb, "  Technical: %s\n", f.TechnicalDetails)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Categorization:\n")
	if len(suggestions) == 0 {
		fmt.Fprintf(&sb, "  %s / %s\n", valueOr(f.Category, "uncategorized"), valueOr(f.Subcategory, "-"))
	}
	for i, c := range suggestions {
		if i >= 3 {
			break
		}
		marker := "  "
		if i == 0 {
			marker = "* "
		}
		fmt.Fprintf(&sb, "  %s%s / %s (confidence %.2f)\n", marker, c.Category, c.Subcategory, c.Confidence)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Priority: %s (urgency: %s)\n", valueOr(assessment.Priority, "medium"), valueOr(assessment.Urgency, "medium"))
	if assessment.Rationale != "" {
		fmt.Fprintf(&sb, "Rationale: %s\n", assessment.Rationale)
	}
	sb.WriteString("======================")
	return sb.String()
}

func parsePriorityAssessment(raw string) priorityAssessment {
	var assessment priorityAssessment
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return assessment
	}
	// Malformed output falls back to zero values; renderTicket fills
	// "medium" defaults.
	_ = json.Unmarshal([]byte(cleaned), &assessment)
	return assessment
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
