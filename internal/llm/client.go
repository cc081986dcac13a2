package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"

	"github.com/xiy/triage-agent/pkg/types"
)

// Client is the text-generation boundary consumed by the agent graph
// and the oracle. Implementations must return an error rather than
// partial output; callers decide how to degrade.
type Client interface {
	Complete(ctx context.Context, system string, msgs []types.Message) (string, error)
}

// AnthropicClient calls the Anthropic Messages API with bounded retry.
type AnthropicClient struct {
	api       anthropic.Client
	model     string
	maxTokens int64
	logger    *log.Logger

	maxRetries int
	baseDelay  time.Duration
}

// NewAnthropicClient builds a client from the environment. A missing
// API key is a startup failure, not a per-turn one.
func NewAnthropicClient(model string, maxTokens int, logger *log.Logger) (*AnthropicClient, error) {
	key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if key == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	return &AnthropicClient{
		api:        anthropic.NewClient(option.WithAPIKey(key)),
		model:      model,
		maxTokens:  int64(maxTokens),
		logger:     logger,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
	}, nil
}

// Complete sends the transcript and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, system string, msgs []types.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toMessageParams(msgs),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.api.Messages.New(ctx, params)
		if err == nil {
			return textFromResponse(resp), nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.maxRetries {
			break
		}
		c.logger.Warn("generation call failed, retrying", "attempt", attempt+1, "error", err)
		if err := c.backoff(ctx, attempt); err != nil {
			return "", lastErr
		}
	}
	return "", fmt.Errorf("generation call: %w", lastErr)
}

func toMessageParams(msgs []types.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func textFromResponse(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func isRetryable(err error) bool {
	msg := err.Error()
	for _, s := range []string{"429", "500", "502", "503", "529", "connection refused", "timeout", "deadline exceeded", "EOF", "reset by peer"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *AnthropicClient) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(c.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
