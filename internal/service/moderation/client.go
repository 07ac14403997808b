// Package moderation delegates content classification to the OpenAI
// moderations endpoint. The verdict is a bare boolean: upstream category
// names never leave this package.
package moderation

import (
	"context"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kidsafegpt/backend/internal/config"
	"github.com/kidsafegpt/backend/internal/model/chat"
)

// Verdict is the boolean outcome of a single classification call. It is not
// cached and not persisted.
type Verdict struct {
	Flagged bool
}

// Classifier is implemented by the remote moderation transport. Split out so
// tests can substitute the network call.
type Classifier interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// Client screens user-authored text before it reaches the completion
// upstream.
type Client struct {
	api Classifier
	cfg config.ModerationConfig
}

// NewClient builds a moderation client from the shared OpenAI client.
func NewClient(api Classifier, cfg config.ModerationConfig) *Client {
	return &Client{api: api, cfg: cfg}
}

// Enabled reports whether the stage participates in the pipeline at all.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.api != nil
}

// Classify screens the concatenated user-authored text of the turns, bounded
// to the configured character budget. On transport failure the verdict
// follows the configured failure policy: fail-open by default, fail-closed
// when the deployment demands it.
func (c *Client) Classify(ctx context.Context, turns []chat.Turn) Verdict {
	if !c.Enabled() {
		return Verdict{Flagged: false}
	}

	input := c.userText(turns)
	if input == "" {
		return Verdict{Flagged: false}
	}

	resp, err := c.api.Moderations(ctx, openai.ModerationRequest{
		Input: input,
		Model: c.cfg.Model,
	})
	if err != nil {
		log.Printf("[moderation] classification call failed (fail-closed=%v): %v", c.cfg.FailClosed, err)
		return Verdict{Flagged: c.cfg.FailClosed}
	}

	for _, result := range resp.Results {
		if result.Flagged {
			return Verdict{Flagged: true}
		}
	}
	return Verdict{Flagged: false}
}

// userText joins user turns and truncates to MaxChars to bound cost and
// latency.
func (c *Client) userText(turns []chat.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		if turn.Role != chat.RoleUser {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(turn.Content)
		if b.Len() >= c.cfg.MaxChars {
			break
		}
	}

	text := b.String()
	if len(text) > c.cfg.MaxChars {
		runes := []rune(text)
		if len(runes) > c.cfg.MaxChars {
			runes = runes[:c.cfg.MaxChars]
		}
		text = string(runes)
	}
	return text
}
