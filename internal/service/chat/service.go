package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kidsafegpt/backend/internal/model/chat"
)

var (
	ErrProfileRequired = errors.New("profile id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Service keeps conversation state in memory. Turns are append-only; nothing
// survives a restart, which matches the product's privacy posture.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	turns    map[string][]chat.Turn
}

// NewService bootstraps the in-memory conversation store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		turns:    make(map[string][]chat.Turn),
	}
}

// CreateSession provisions an anonymous session bound to a profile.
func (s *Service) CreateSession(_ context.Context, profileID string) (chat.Session, error) {
	if profileID == "" {
		return chat.Session{}, ErrProfileRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = make([]chat.Turn, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// AppendTurn appends a turn to the session transcript. Sessions the store
// has never seen are created implicitly so callers that manage their own
// session identifiers still get a parent log.
func (s *Service) AppendTurn(_ context.Context, sessionID string, turn chat.Turn) (chat.Turn, error) {
	if sessionID == "" {
		return chat.Turn{}, ErrSessionNotFound
	}

	turn.ID = uuid.NewString()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = chat.Session{
			ID:        sessionID,
			ProfileID: turn.ProfileID,
			CreatedAt: turn.CreatedAt,
		}
	}

	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return turn, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Transcript returns stored turns for the provided session.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// TailTranscript returns the last n turns of the session, oldest first. An
// unknown session yields an empty tail rather than an error so the parent
// log renders before the first message.
func (s *Service) TailTranscript(_ context.Context, sessionID string, n int) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	if n <= 0 || n > len(turns) {
		n = len(turns)
	}

	copied := make([]chat.Turn, n)
	copy(copied, turns[len(turns)-n:])
	return copied
}
