package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts how live sessions are stored and addressed by
// their shareable code (in-memory, Redis-backed, etc).
type SessionRepository interface {
	// Create snapshots the quiz into a new waiting session under a code
	// unique within the store's current keyspace.
	Create(ctx context.Context, quiz domain.Quiz, hostID string) (*Session, error)
	Get(code string) (*Session, bool)
	Delete(code string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizService is the front door for host and participant commands. It
// resolves session codes and delegates to the session aggregate, which
// serializes all mutation for its room; commands for different codes run
// fully in parallel.
type QuizService struct {
	sessions SessionRepository
	quizzes  QuizRepository
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository) *QuizService {
	return &QuizService{sessions: sessions, quizzes: quizzes}
}

// CreateSession snapshots the quiz definition and opens a waiting room,
// returning its shareable code. The quiz is read exactly once here; the
// session treats its copy as immutable afterwards.
func (s *QuizService) CreateSession(ctx context.Context, quizID, hostID string) (string, error) {
	if quizID == "" || hostID == "" {
		return "", domain.ErrInvalidCommand
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	session, err := s.sessions.Create(ctx, quiz, hostID)
	if err != nil {
		return "", err
	}
	return session.Code(), nil
}

func (s *QuizService) session(code string) (*Session, error) {
	session, ok := s.sessions.Get(code)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Join adds or reactivates a participant and returns their record.
func (s *QuizService) Join(ctx context.Context, code, identity, name string) (domain.Participant, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.Participant{}, err
	}
	return session.Join(ctx, identity, name)
}

// Leave deactivates a participant; their history stays for a later rejoin.
func (s *QuizService) Leave(ctx context.Context, code, identity string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.Leave(ctx, identity)
}

// StartSession moves a waiting session to active.
func (s *QuizService) StartSession(ctx context.Context, code, actorID string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.Start(ctx, actorID)
}

// StartQuestion opens a round; durationSec of zero falls back to the
// question's own limit, then the session default.
func (s *QuizService) StartQuestion(ctx context.Context, code, actorID, questionID string, durationSec int) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.StartQuestion(ctx, actorID, questionID, durationSec)
}

// EndQuestion closes the open round; racing the deadline timer is safe.
func (s *QuizService) EndQuestion(ctx context.Context, code, actorID, questionID string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.EndQuestion(ctx, actorID, questionID)
}

// PauseSession suspends an active session.
func (s *QuizService) PauseSession(ctx context.Context, code, actorID string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.Pause(ctx, actorID)
}

// ResumeSession returns a paused session to active.
func (s *QuizService) ResumeSession(ctx context.Context, code, actorID string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.Resume(ctx, actorID)
}

// EndSession finalizes a session, force-closing any open round first. Once a
// completed session has no subscribers left its live entry is evicted.
func (s *QuizService) EndSession(ctx context.Context, code, actorID string) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	if err := session.End(ctx, actorID); err != nil {
		return err
	}
	s.evictIfIdle(code, session)
	return nil
}

func (s *QuizService) evictIfIdle(code string, session *Session) {
	if session.Idle() {
		s.sessions.Delete(code)
	}
}

// UpdateSettings replaces session rules while the session is still waiting.
func (s *QuizService) UpdateSettings(ctx context.Context, code, actorID string, settings domain.QuizSettings) error {
	session, err := s.session(code)
	if err != nil {
		return err
	}
	return session.UpdateSettings(ctx, actorID, settings)
}

// SubmitAnswer records one participant's answer for the open round.
func (s *QuizService) SubmitAnswer(ctx context.Context, code, identity, questionID, optionID string) (domain.AnswerResult, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return session.SubmitAnswer(ctx, identity, questionID, optionID)
}

// HostID exposes the owning user of a session so transports can gate
// host-role connections before the command loop starts.
func (s *QuizService) HostID(code string) (string, error) {
	session, err := s.session(code)
	if err != nil {
		return "", err
	}
	return session.HostID(), nil
}

// Status answers a get_status query.
func (s *QuizService) Status(code string) (StatusView, error) {
	session, err := s.session(code)
	if err != nil {
		return StatusView{}, err
	}
	return session.Status(), nil
}

// Feedback answers a participant's get_feedback query.
func (s *QuizService) Feedback(code, identity string) (domain.Feedback, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.Feedback{}, err
	}
	return session.Feedback(identity)
}

// Leaderboard returns the current ranking for a session.
func (s *QuizService) Leaderboard(code string) (domain.Leaderboard, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(), nil
}

// FinalResults is only available once the session has completed.
func (s *QuizService) FinalResults(code string) (domain.FinalResults, error) {
	session, err := s.session(code)
	if err != nil {
		return domain.FinalResults{}, err
	}
	return session.FinalResults()
}

// Subscribe returns a channel of broadcast events for a session. The caller
// must invoke the returned cancel function to avoid leaks; cancelling the
// last subscription of a completed session evicts its live entry.
func (s *QuizService) Subscribe(code string) (<-chan Event, func(), error) {
	session, err := s.session(code)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	drop := func() {
		cancel()
		s.evictIfIdle(code, session)
	}
	return ch, drop, nil
}
