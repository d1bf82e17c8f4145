package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions live entirely in process; persistence is a no-op.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(_ context.Context, quiz domain.Quiz, hostID string) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.uniqueCodeLocked()
	if err != nil {
		return nil, err
	}
	session := app.NewSession(code, hostID, quiz, nil)
	s.sessions[code] = session
	return session, nil
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

func (s *SessionStore) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code := app.NewSessionCode()
		if _, taken := s.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique session code")
}
