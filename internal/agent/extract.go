package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/xiy/triage-agent/pkg/types"
)

// parseTicketFields decodes a model response that should be a strict
// JSON object matching the ticket schema. Models wrap JSON in code
// fences often enough that stripping them first is table stakes. Any
// parse failure returns ok=false; the caller treats that as "no new
// information this turn".
func parseTicketFields(raw string) (TicketFields, bool) {
	var fields TicketFields
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return fields, false
	}
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return TicketFields{}, false
	}
	return fields, true
}

// parseCategorySuggestions decodes the categorization response, a JSON
// array of candidates. Same fence handling and failure contract as
// parseTicketFields.
func parseCategorySuggestions(raw string) ([]CategorySuggestion, bool) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil, false
	}
	var suggestions []CategorySuggestion
	if err := json.Unmarshal([]byte(cleaned), &suggestions); err != nil {
		return nil, false
	}
	return suggestions, true
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

var (
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	namePattern       = regexp.MustCompile(`name is ([A-Z][a-zA-Z'-]+(?: [A-Z][a-zA-Z'-]+)*)`)
	departmentPattern = regexp.MustCompile(`(?i)(?:works? in|department is|from) the ([A-Z][a-zA-Z ]+?) (?:department|team)`)
	locationPattern   = regexp.MustCompile(`(?i)(?:located in|based in|location is) ([A-Z][a-zA-Z ,'-]+)`)
)

// scanMemoriesForUserDetails pattern-matches stored memory content to
// opportunistically pre-fill requester details the user disclosed in
// earlier sessions. It only fills blanks: a detail collected this
// conversation is never overwritten by an old memory.
func scanMemoriesForUserDetails(known UserDetails, memories []types.MemoryEntry) UserDetails {
	found := UserDetails{}
	for _, entry := range memories {
		content := entry.Content
		if found.Email == "" {
			if m := emailPattern.FindString(content); m != "" {
				found.Email = m
			}
		}
		if found.Name == "" {
			if m := namePattern.FindStringSubmatch(content); len(m) > 1 {
				found.Name = strings.TrimSpace(m[1])
			}
		}
		if found.Department == "" {
			if m := departmentPattern.FindStringSubmatch(content); len(m) > 1 {
				found.Department = strings.TrimSpace(m[1])
			}
		}
		if found.Location == "" {
			if m := locationPattern.FindStringSubmatch(content); len(m) > 1 {
				found.Location = strings.TrimSpace(strings.TrimRight(m[1], ".,"))
			}
		}
	}
	// known wins: merge fills only the blanks.
	return mergeUserDetails(found, known)
}
