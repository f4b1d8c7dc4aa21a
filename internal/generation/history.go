package generation

import "sync"

// DefaultHistoryLimit is the maximum number of messages retained per session.
// At two messages per exchange this keeps the last ten exchanges.
const DefaultHistoryLimit = 20

// History is a bounded conversation log for one session. When the limit is
// exceeded the oldest messages are evicted first. Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	limit    int
	messages []Message
}

// NewHistory creates a History retaining at most limit messages. A
// non-positive limit falls back to DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Append records a completed exchange.
func (h *History) Append(query, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages,
		Message{Role: RoleUser, Content: query},
		Message{Role: RoleAssistant, Content: answer},
	)
	if n := len(h.messages); n > h.limit {
		h.messages = h.messages[n-h.limit:]
	}
}

// Messages returns a copy of the retained messages, oldest first.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Clear discards all retained messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// SessionStore maps session identifiers to their conversation histories.
// Safe for concurrent use.
type SessionStore struct {
	mu       sync.Mutex
	limit    int
	sessions map[string]*History
}

// NewSessionStore creates a SessionStore whose histories retain at most
// limit messages each.
func NewSessionStore(limit int) *SessionStore {
	return &SessionStore{
		limit:    limit,
		sessions: make(map[string]*History),
	}
}

// Get returns the history for a session, creating it on first use.
func (s *SessionStore) Get(sessionID string) *History {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		h = NewHistory(s.limit)
		s.sessions[sessionID] = h
	}
	return h
}

// Delete removes a session and its history.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
