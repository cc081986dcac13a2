package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xiy/triage-agent/internal/llm"
	"github.com/xiy/triage-agent/pkg/types"
)

// noPersonalInfoMarker is the literal the extraction prompt asks for when
// the user text discloses nothing about the user.
const noPersonalInfoMarker = "NO_PERSONAL_INFO"

const extractionSystemPrompt = `You review a single user message and decide whether it discloses
personal information about the user: facts, preferences, identity details,
their environment, or anything worth remembering across conversations.

If the message contains NO personal information, reply with exactly:
NO_PERSONAL_INFO

Otherwise reply with ONE short sentence summarizing the personal
information in third person. No preamble, no quotes, no extra lines.`

const scoringSystemPrompt = `You rate how important a remembered fact about a user is for future
conversations, on a scale from 1 (trivial) to 10 (critical identity or
preference information).

Reply with ONLY the number. No words, no punctuation.`

// Oracle classifies user text and scores extracted facts. Both calls go
// through the generation client; callers own the degradation policy.
type Oracle struct {
	client llm.Client
}

func New(client llm.Client) *Oracle {
	return &Oracle{client: client}
}

// ExtractPersonal returns a normalized summary of the personal content in
// userText, or found=false when the text discloses nothing personal.
func (o *Oracle) ExtractPersonal(ctx context.Context, userText string) (string, bool, error) {
	out, err := o.client.Complete(ctx, extractionSystemPrompt, []types.Message{
		{Role: types.RoleUser, Content: userText},
	})
	if err != nil {
		return "", false, fmt.Errorf("extraction call: %w", err)
	}

	summary := strings.TrimSpace(out)
	if summary == "" || strings.Contains(summary, noPersonalInfoMarker) {
		return "", false, nil
	}
	// Keep only the first line; some models add commentary despite the prompt.
	if i := strings.IndexByte(summary, '\n'); i >= 0 {
		summary = strings.TrimSpace(summary[:i])
	}
	return summary, true, nil
}

// ScoreImportance rates a summary on the 1-10 scale.
func (o *Oracle) ScoreImportance(ctx context.Context, summary string) (float64, error) {
	out, err := o.client.Complete(ctx, scoringSystemPrompt, []types.Message{
		{Role: types.RoleUser, Content: summary},
	})
	if err != nil {
		return 0, fmt.Errorf("scoring call: %w", err)
	}

	score, err := parseScore(out)
	if err != nil {
		return 0, err
	}
	return clampScore(score), nil
}

// parseScore pulls the first numeric token out of the model reply.
func parseScore(out string) (float64, error) {
	for _, field := range strings.Fields(out) {
		field = strings.Trim(field, ".,:;!")
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no numeric score in %q", strings.TrimSpace(out))
}

func clampScore(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
