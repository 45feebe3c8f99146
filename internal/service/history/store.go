package history

import (
	"context"
	"sync"

	"github.com/nlin-dev/chatrelay/internal/model/chat"
)

// Store owns every session transcript. Reads return copies; only Append
// and EnsureSeeded mutate a transcript, and Delete removes it outright.
type Store interface {
	// Get returns the transcript for the session, or an empty one if the
	// session is unknown. It never creates an entry.
	Get(ctx context.Context, sessionID string) []chat.Turn
	// EnsureSeeded inserts the system preamble as the first turn of an
	// empty transcript and returns the transcript. Calling it again on a
	// seeded session is a no-op.
	EnsureSeeded(ctx context.Context, sessionID, preamble string) []chat.Turn
	// Append adds the turns to the session transcript in order, as one
	// atomic write.
	Append(ctx context.Context, sessionID string, turns ...chat.Turn)
	// Delete removes the session entirely. Unknown sessions are ignored.
	Delete(ctx context.Context, sessionID string)
}

// MemoryStore implements Store with a mutex-guarded map, suitable for a
// single-instance deployment with no restart durability.
type MemoryStore struct {
	mu       sync.RWMutex
	maxTurns int
	sessions map[string][]chat.Turn
}

// NewMemoryStore returns an empty store. maxTurns bounds the number of
// retained non-system turns per session as a sliding window; zero or
// negative disables eviction.
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		maxTurns: maxTurns,
		sessions: make(map[string][]chat.Turn),
	}
}

// Get returns a copy of the stored transcript.
func (s *MemoryStore) Get(_ context.Context, sessionID string) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied
}

// EnsureSeeded seeds the system turn exactly once per session lifetime.
func (s *MemoryStore) EnsureSeeded(_ context.Context, sessionID, preamble string) []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.sessions[sessionID]
	if !ok || len(turns) == 0 {
		turns = []chat.Turn{chat.SystemTurn(preamble)}
		s.sessions[sessionID] = turns
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied
}

// Append commits the turns in order and applies the eviction window.
func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...chat.Turn) {
	if len(turns) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := append(s.sessions[sessionID], turns...)
	s.sessions[sessionID] = s.evict(transcript)
}

// Delete drops the whole session. Safe to call on unknown sessions.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// evict trims the transcript to the last maxTurns non-system turns. The
// system turn, if present, is always retained at the head.
func (s *MemoryStore) evict(turns []chat.Turn) []chat.Turn {
	if s.maxTurns <= 0 {
		return turns
	}

	head := 0
	if len(turns) > 0 && turns[0].Role == chat.RoleSystem {
		head = 1
	}

	overflow := len(turns) - head - s.maxTurns
	if overflow <= 0 {
		return turns
	}

	trimmed := make([]chat.Turn, 0, head+s.maxTurns)
	trimmed = append(trimmed, turns[:head]...)
	trimmed = append(trimmed, turns[head+overflow:]...)
	return trimmed
}
