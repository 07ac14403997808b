// Package approval implements the parent sign-off state machine. A held turn
// exists only in process memory and is destroyed on approval, cancellation,
// or process restart; the raw text is never logged or persisted.
package approval

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kidsafegpt/backend/internal/service/events"
)

var (
	// ErrAlreadyPending rejects a second submission while one is held.
	ErrAlreadyPending = errors.New("an approval request is already pending")
	// ErrNothingPending marks approve/cancel calls with no held turn.
	ErrNothingPending = errors.New("no approval request is pending")
)

// Request is one held turn awaiting parent authorization.
type Request struct {
	ID        string
	Text      string
	ProfileID string
	Reason    string
	CreatedAt time.Time
}

// Gate tracks at most one pending request per key (conversation session, or
// rate-limit client id when the caller manages no sessions).
type Gate struct {
	mu        sync.Mutex
	pending   map[string]Request
	broadcast *events.Broadcaster
}

// NewGate returns an empty gate. The broadcaster may be nil in tests.
func NewGate(broadcast *events.Broadcaster) *Gate {
	return &Gate{pending: make(map[string]Request), broadcast: broadcast}
}

// Hold parks the turn text for the key: Idle -> PendingApproval. A second
// submission while one is pending is an error, never a second request.
func (g *Gate) Hold(key, text, profileID, reason string) (Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.pending[key]; exists {
		return Request{}, ErrAlreadyPending
	}

	req := Request{
		ID:        uuid.NewString(),
		Text:      text,
		ProfileID: profileID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	g.pending[key] = req

	g.publish(events.Event{Type: events.TypeApprovalHeld, SessionID: key, Reason: reason})
	return req, nil
}

// Approve pops the held request: PendingApproval -> Approved. The caller
// re-runs the full pipeline with the returned text exactly once; only the
// keyword pre-trigger is bypassed on that re-run, not the safety chain.
func (g *Gate) Approve(key string) (Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, exists := g.pending[key]
	if !exists {
		return Request{}, ErrNothingPending
	}
	delete(g.pending, key)

	g.publish(events.Event{Type: events.TypeApprovalApproved, SessionID: key})
	return req, nil
}

// Cancel discards the held request: PendingApproval -> Cancelled -> Idle.
func (g *Gate) Cancel(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.pending[key]; !exists {
		return ErrNothingPending
	}
	delete(g.pending, key)

	g.publish(events.Event{Type: events.TypeApprovalCancelled, SessionID: key})
	return nil
}

// Pending reports whether a request is held for the key.
func (g *Gate) Pending(key string) (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, exists := g.pending[key]
	return req, exists
}

func (g *Gate) publish(event events.Event) {
	if g.broadcast != nil {
		g.broadcast.Publish(event)
	}
}
