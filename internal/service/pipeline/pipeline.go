// Package pipeline runs the fixed-order safety chain for one chat turn:
// LexicalFilter -> ModerationClient -> PolicyComposer -> CompletionInvoker ->
// CitationEnforcer. Rate limiting sits in front as HTTP middleware. No stage
// may be skipped except via the documented terminal short-circuits.
package pipeline

import (
	"context"
	"log"

	"github.com/kidsafegpt/backend/internal/model/chat"
	"github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/safety/lexical"
	"github.com/kidsafegpt/backend/internal/service/citation"
	"github.com/kidsafegpt/backend/internal/service/events"
	"github.com/kidsafegpt/backend/internal/service/moderation"
	"github.com/kidsafegpt/backend/internal/service/policy"
)

// Moderator is the remote classification stage.
type Moderator interface {
	Classify(ctx context.Context, turns []chat.Turn) moderation.Verdict
}

// Completer is the upstream invocation stage.
type Completer interface {
	Complete(ctx context.Context, systemText string, turns []chat.Turn) (string, error)
}

// Result is the outcome of a mediated turn. Refused results carry the fixed
// refusal text and are deliberately shaped like normal replies.
type Result struct {
	Content string
	Refused bool
	Sources []string
}

// Pipeline wires the stages together.
type Pipeline struct {
	filter    *lexical.Filter
	moderator Moderator
	composer  *policy.Composer
	invoker   Completer
	broadcast *events.Broadcaster
}

// New assembles the pipeline. The broadcaster may be nil.
func New(filter *lexical.Filter, moderator Moderator, composer *policy.Composer, invoker Completer, broadcast *events.Broadcaster) *Pipeline {
	return &Pipeline{
		filter:    filter,
		moderator: moderator,
		composer:  composer,
		invoker:   invoker,
		broadcast: broadcast,
	}
}

// Run mediates one turn for the active profile. A policy hit is not an
// error: it yields a refused Result so callers treat it like any reply.
// Upstream and configuration failures propagate as errors untouched.
func (p *Pipeline) Run(ctx context.Context, prof profile.Profile, sessionID string, turns []chat.Turn) (Result, error) {
	if p.filter.Screen(lastUserContent(turns)) {
		log.Printf("[pipeline] lexical screen blocked turn session=%s", sessionID)
		p.publish(events.Event{Type: events.TypeRefusalLexical, SessionID: sessionID})
		return Result{Content: lexical.RefusalMessage, Refused: true}, nil
	}

	if verdict := p.moderator.Classify(ctx, turns); verdict.Flagged {
		log.Printf("[pipeline] moderation flagged turn session=%s", sessionID)
		p.publish(events.Event{Type: events.TypeRefusalModeration, SessionID: sessionID})
		return Result{Content: lexical.RefusalMessage, Refused: true}, nil
	}

	systemText := p.composer.Compose(prof)

	reply, err := p.invoker.Complete(ctx, systemText, turns)
	if err != nil {
		return Result{}, err
	}

	final := citation.Enforce(reply, prof)
	return Result{Content: final, Sources: citation.ExtractSources(final)}, nil
}

// lastUserContent mirrors the boundary screen of the original product: the
// newest user-authored text is what gets screened lexically.
func lastUserContent(turns []chat.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == chat.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

func (p *Pipeline) publish(event events.Event) {
	if p.broadcast != nil {
		p.broadcast.Publish(event)
	}
}
