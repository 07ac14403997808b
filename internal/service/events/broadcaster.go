// Package events fans conversation and approval activity out to parent
// dashboard connections.
package events

import (
	"sync"

	"github.com/kidsafegpt/backend/internal/model/chat"
)

// Event types pushed to parent dashboards.
const (
	TypeUserTurn          = "turn.user"
	TypeAssistantTurn     = "turn.assistant"
	TypeApprovalHeld      = "approval.held"
	TypeApprovalApproved  = "approval.approved"
	TypeApprovalCancelled = "approval.cancelled"
	TypeRefusalLexical    = "refusal.lexical"
	TypeRefusalModeration = "refusal.moderation"
)

// Event is one dashboard notification. Turn is set for turn.* events only;
// held prompt text is intentionally absent from approval events.
type Event struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Turn      *chat.Turn `json:"turn,omitempty"`
}

// Broadcaster delivers events to any number of subscribers. Publish never
// blocks: slow subscribers drop events rather than stalling the pipeline.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new buffered subscriber channel.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
