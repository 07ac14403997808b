// Package ai talks to the upstream completion model. It performs no retries:
// a blind retry would re-incur moderation and rate-limit cost and could
// double-answer the user.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kidsafegpt/backend/internal/config"
	"github.com/kidsafegpt/backend/internal/model/chat"
)

// ErrMissingCredential marks a request that cannot proceed because the
// upstream API key is not configured. Fatal for the request, not the process.
var ErrMissingCredential = errors.New("upstream API key is not configured")

// UpstreamError carries a non-success upstream response. The message is the
// upstream's own error text; credentials never appear in it.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// Completer is the slice of the OpenAI client the invoker needs; tests
// substitute it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Invoker sends composed conversations to the completion upstream.
type Invoker struct {
	api Completer
	cfg config.UpstreamConfig
}

// NewInvoker builds an invoker from the shared OpenAI client.
func NewInvoker(api Completer, cfg config.UpstreamConfig) *Invoker {
	return &Invoker{api: api, cfg: cfg}
}

// NewOpenAIClient constructs the shared OpenAI client, honoring an optional
// base URL override.
func NewOpenAIClient(cfg config.UpstreamConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Complete sends the system text and the cleared turns upstream and returns
// the assistant reply. Errors are never converted into fabricated answers:
// callers receive ErrMissingCredential, an *UpstreamError, or a wrapped
// transport error.
func (inv *Invoker) Complete(ctx context.Context, systemText string, turns []chat.Turn) (string, error) {
	if !inv.cfg.Enabled() {
		return "", ErrMissingCredential
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemText,
	})
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: turn.Content,
			})
		case chat.RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: turn.Content,
			})
		}
		// Client-supplied system turns are dropped: the composed policy is
		// the only system message sent upstream.
	}

	resp, err := inv.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       inv.cfg.Model,
		Messages:    messages,
		Temperature: inv.cfg.Temperature,
		MaxTokens:   inv.cfg.MaxTokens,
	})
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", &UpstreamError{StatusCode: 502, Message: "upstream returned no choices"}
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[ai] completion ok model=%s length=%d", inv.cfg.Model, len(content))
	return content, nil
}

// classifyError splits upstream rejections from transport failures so the
// handler can propagate the upstream status instead of flattening everything
// into a 500.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}

	return fmt.Errorf("contact completion upstream: %w", err)
}
