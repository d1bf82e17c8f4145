package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - It keeps a local in-memory map of live sessions: timers and
//     subscriber channels cannot round-trip through Redis.
//   - Every committed mutation writes the session's JSON snapshot under
//     quiz:session:{code} with a TTL, so a restarted process can restore
//     a room from its last snapshot on first lookup.
//   - For true distribution you'd pair this with a pub/sub projector that
//     fans out events across instances.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(ctx context.Context, quiz domain.Quiz, hostID string) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.uniqueCodeLocked(ctx)
	if err != nil {
		return nil, err
	}
	session := app.NewSession(code, hostID, quiz, s.persistFunc())
	s.sessions[code] = session
	if err := s.write(ctx, session.Snapshot()); err != nil {
		delete(s.sessions, code)
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[code]
	s.mu.RUnlock()
	if ok {
		return session, true
	}

	// Not live here; try to restore from the last snapshot.
	state, err := s.load(context.Background(), code)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[code]; ok {
		return session, true
	}
	session = app.RestoreSession(state, s.persistFunc())
	s.sessions[code] = session
	return session, true
}

// Delete drops the live in-process entry. The snapshot stays in redis until
// its TTL expires, so a later Get can still restore the room.
func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

func (s *SessionStore) persistFunc() app.PersistFunc {
	return func(ctx context.Context, state domain.SessionState) error {
		return s.write(ctx, state)
	}
}

func (s *SessionStore) write(ctx context.Context, state domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.Code, err)
	}
	if err := s.client.Set(ctx, s.key(state.Code), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist session %s: %w", state.Code, err)
	}
	return nil
}

func (s *SessionStore) load(ctx context.Context, code string) (domain.SessionState, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if err != nil {
		return domain.SessionState{}, err
	}
	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("unmarshal session %s: %w", code, err)
	}
	return state, nil
}

func (s *SessionStore) uniqueCodeLocked(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code := app.NewSessionCode()
		if _, taken := s.sessions[code]; taken {
			continue
		}
		exists, err := s.client.Exists(ctx, s.key(code)).Result()
		if err != nil {
			return "", fmt.Errorf("check session code: %w", err)
		}
		if exists == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique session code")
}

func (s *SessionStore) key(code string) string {
	return "quiz:session:" + code
}
