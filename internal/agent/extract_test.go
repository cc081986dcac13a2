package agent

import (
	"testing"

	"github.com/xiy/triage-agent/pkg/types"
)

func TestParseTicketFields_StrictJSON(t *testing.T) {
	t.Parallel()
	raw := `{"title":"VPN down","userDetails":{"name":"Dana","email":"dana@example.com"}}`
	fields, ok := parseTicketFields(raw)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if fields.Title != "VPN down" || fields.UserDetails.Email != "dana@example.com" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestParseTicketFields_StripsCodeFence(t *testing.T) {
	t.Parallel()
	raw := "```json\n{\"title\":\"VPN down\"}\n```"
	fields, ok := parseTicketFields(raw)
	if !ok || fields.Title != "VPN down" {
		t.Fatalf("fenced JSON not handled: ok=%v fields=%+v", ok, fields)
	}
}

func TestParseTicketFields_MalformedIsNotOK(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not json at all", `{"title": unquoted}`} {
		if _, ok := parseTicketFields(raw); ok {
			t.Fatalf("expected parse failure for %q", raw)
		}
	}
}

func TestParseCategorySuggestions(t *testing.T) {
	t.Parallel()
	raw := `[{"category":"Network","subcategory":"VPN","confidence":0.9,"reasoning":"connection failure"}]`
	suggestions, ok := parseCategorySuggestions(raw)
	if !ok || len(suggestions) != 1 {
		t.Fatalf("parse failed: ok=%v n=%d", ok, len(suggestions))
	}
	if suggestions[0].Category != "Network" || suggestions[0].Confidence != 0.9 {
		t.Fatalf("unexpected suggestion: %+v", suggestions[0])
	}
}

func TestScanMemoriesForUserDetails(t *testing.T) {
	t.Parallel()
	memories := []types.MemoryEntry{
		{Content: "User's name is Dana Field and email is dana.field@example.com."},
		{Content: "User works in the Finance department."},
		{Content: "User is located in Rotterdam."},
	}

	got := scanMemoriesForUserDetails(UserDetails{}, memories)
	if got.Name != "Dana Field" {
		t.Fatalf("name not found: %+v", got)
	}
	if got.Email != "dana.field@example.com" {
		t.Fatalf("email not found: %+v", got)
	}
	if got.Department != "Finance" {
		t.Fatalf("department not found: %+v", got)
	}
	if got.Location != "Rotterdam" {
		t.Fatalf("location not found: %+v", got)
	}
}

func TestScanMemoriesForUserDetails_NeverOverwritesKnown(t *testing.T) {
	t.Parallel()
	known := UserDetails{Email: "current@example.com"}
	memories := []types.MemoryEntry{{Content: "User's email is old@example.com"}}

	got := scanMemoriesForUserDetails(known, memories)
	if got.Email != "current@example.com" {
		t.Fatalf("stored memory overwrote known email: %+v", got)
	}
}
