package app

import (
	"context"
	"crypto/rand"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// PersistFunc writes a session snapshot to the backing store. A nil
// PersistFunc keeps the session purely in-memory.
type PersistFunc func(ctx context.Context, state domain.SessionState) error

// Session is the live in-memory aggregate for one quiz room. All mutation
// happens under mu, so commands, joins, answers and the round deadline timer
// for one session execute one at a time; distinct sessions never contend.
type Session struct {
	mu          sync.Mutex
	now         func() time.Time
	persist     PersistFunc
	state       domain.SessionState
	timer       *time.Timer
	subscribers map[chan Event]struct{}
}

// NewSession builds a fresh waiting session around a snapshotted quiz.
func NewSession(code, hostID string, quiz domain.Quiz, persist PersistFunc) *Session {
	return NewSessionWithClock(code, hostID, quiz, persist, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(code, hostID string, quiz domain.Quiz, persist PersistFunc, now func() time.Time) *Session {
	return &Session{
		now:     now,
		persist: persist,
		state: domain.SessionState{
			ID:        uuid.NewString(),
			Code:      code,
			HostID:    hostID,
			Status:    domain.StatusWaiting,
			Quiz:      quiz,
			CreatedAt: now(),
		},
		subscribers: make(map[chan Event]struct{}),
	}
}

// RestoreSession rebuilds a session from a persisted snapshot. A round that
// was still open when the snapshot was taken is resumed with whatever time
// remains, or closed immediately if its deadline has already passed.
func RestoreSession(state domain.SessionState, persist PersistFunc) *Session {
	s := &Session{
		now:         time.Now,
		persist:     persist,
		state:       state,
		subscribers: make(map[chan Event]struct{}),
	}
	if round := s.state.CurrentRound; round != nil && round.State == domain.RoundActive {
		deadline := round.StartedAt.Add(time.Duration(round.DurationSec) * time.Second)
		remaining := time.Until(deadline)
		s.mu.Lock()
		if remaining <= 0 {
			s.closeRoundLocked(context.Background(), deadline)
		} else {
			s.scheduleCloseLocked(round.QuestionID, remaining)
		}
		s.mu.Unlock()
	}
	return s
}

// Code returns the shareable session code.
func (s *Session) Code() string {
	return s.state.Code
}

// HostID returns the owning user id.
func (s *Session) HostID() string {
	return s.state.HostID
}

// Snapshot returns a deep copy of the session state for persistence or
// inspection outside the critical section.
func (s *Session) Snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.SessionState {
	st := s.state
	st.Participants = make([]domain.Participant, len(s.state.Participants))
	for i, p := range s.state.Participants {
		answers := make([]domain.Answer, len(p.Answers))
		copy(answers, p.Answers)
		p.Answers = answers
		st.Participants[i] = p
	}
	st.QuestionResults = make([]domain.RoundSummary, len(s.state.QuestionResults))
	copy(st.QuestionResults, s.state.QuestionResults)
	if s.state.CurrentRound != nil {
		round := *s.state.CurrentRound
		st.CurrentRound = &round
	}
	return st
}

// Subscribe returns a channel that receives broadcast events for this
// session. The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked fans an event out to every subscriber without blocking on
// slow consumers: a full channel has its oldest entry dropped first.
func (s *Session) broadcastLocked(evs ...Event) {
	for _, ev := range evs {
		for ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- ev
			}
		}
	}
}

// commitLocked persists the current state and, only once that succeeds,
// broadcasts the events produced by the mutation. Broadcasting after the
// persist keeps "no partial broadcast" true even when the store fails.
func (s *Session) commitLocked(ctx context.Context, evs ...Event) error {
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.broadcastLocked(evs...)
	return nil
}

func (s *Session) persistLocked(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	return s.persist(ctx, s.snapshotLocked())
}

// Join registers a new participant or reactivates a returning one.
// Reactivation by matching identity preserves score and answer history and
// bypasses the late-join policy, since the participant was already admitted.
func (s *Session) Join(ctx context.Context, identity, name string) (domain.Participant, error) {
	if identity == "" {
		identity = name
	}
	if identity == "" {
		return domain.Participant{}, domain.ErrInvalidCommand
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == domain.StatusCompleted {
		return domain.Participant{}, domain.ErrSessionCompleted
	}

	if p := s.findParticipantLocked(identity); p != nil {
		p.Active = true
		if name != "" {
			p.Name = name
		}
		joined := *p
		return joined, s.commitLocked(ctx, s.participantUpdateLocked())
	}

	if s.state.Status != domain.StatusWaiting && !s.state.Quiz.Settings.AllowLateJoin {
		return domain.Participant{}, domain.ErrLateJoinDisabled
	}
	if limit := s.state.Quiz.Settings.MaxParticipants; limit > 0 && s.activeCountLocked() >= limit {
		return domain.Participant{}, domain.ErrSessionFull
	}

	participant := domain.Participant{
		Identity: identity,
		Name:     name,
		JoinedAt: s.now(),
		Active:   true,
	}
	s.state.Participants = append(s.state.Participants, participant)
	return participant, s.commitLocked(ctx, s.participantUpdateLocked())
}

// Leave deactivates a participant. History is never removed, so a later
// rejoin picks the score back up.
func (s *Session) Leave(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findParticipantLocked(identity)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	p.Active = false
	return s.commitLocked(ctx, s.participantUpdateLocked())
}

// Start moves the session from waiting to active.
func (s *Session) Start(ctx context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	if s.state.Status != domain.StatusWaiting {
		if s.state.Status == domain.StatusCompleted {
			return domain.ErrSessionCompleted
		}
		return domain.ErrSessionNotWaiting
	}
	s.state.Status = domain.StatusActive
	return s.commitLocked(ctx, Event{Type: EventQuizStarted, Payload: s.statusViewLocked()})
}

// Pause suspends an active session. An open round cannot survive a pause
// because its deadline keeps running, so it is force-closed first.
func (s *Session) Pause(ctx context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	if s.state.Status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}
	var evs []Event
	if closed, ev := s.closeRoundLocked(ctx, s.now()); closed {
		evs = append(evs, ev...)
	}
	s.state.Status = domain.StatusPaused
	evs = append(evs, Event{Type: EventQuizPaused, Payload: s.statusViewLocked()})
	return s.commitLocked(ctx, evs...)
}

// Resume returns a paused session to active.
func (s *Session) Resume(ctx context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	if s.state.Status != domain.StatusPaused {
		return domain.ErrSessionNotActive
	}
	s.state.Status = domain.StatusActive
	return s.commitLocked(ctx, Event{Type: EventQuizResumed, Payload: s.statusViewLocked()})
}

// UpdateSettings replaces the session rules. Allowed only while waiting; the
// quiz definition is immutable for the rest of the session's lifetime.
func (s *Session) UpdateSettings(ctx context.Context, actorID string, settings domain.QuizSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	if s.state.Status != domain.StatusWaiting {
		return domain.ErrSessionNotWaiting
	}
	s.state.Quiz.Settings = settings
	return s.commitLocked(ctx)
}

// End finalizes the session. An open round is force-closed first so its
// summary is not lost, then the final leaderboard is broadcast.
func (s *Session) End(ctx context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	if s.state.Status == domain.StatusCompleted {
		return domain.ErrSessionCompleted
	}
	var evs []Event
	if closed, ev := s.closeRoundLocked(ctx, s.now()); closed {
		evs = append(evs, ev...)
	}
	s.state.Status = domain.StatusCompleted
	evs = append(evs, Event{Type: EventQuizEnded, Payload: QuizEnded{FinalLeaderboard: s.leaderboardLocked()}})
	return s.commitLocked(ctx, evs...)
}

// Idle reports whether the session has completed and nobody is subscribed
// anymore, so its live entry can be dropped from the store.
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status == domain.StatusCompleted && len(s.subscribers) == 0
}

// Status answers a get_status query.
func (s *Session) Status() StatusView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusViewLocked()
}

func (s *Session) statusViewLocked() StatusView {
	view := StatusView{
		Code:           s.state.Code,
		Status:         s.state.Status,
		QuizTitle:      s.state.Quiz.Title,
		TotalQuestions: len(s.state.Quiz.Questions),
		AnsweredRounds: len(s.state.QuestionResults),
	}
	if round := s.state.CurrentRound; round != nil && round.State == domain.RoundActive {
		if q, ok := s.state.Quiz.Question(round.QuestionID); ok {
			qv := questionView(q, round.DurationSec)
			view.CurrentQuestion = &qv
		}
	}
	return view
}

func (s *Session) requireHostLocked(actorID string) error {
	if actorID != s.state.HostID {
		return domain.ErrNotHost
	}
	return nil
}

func (s *Session) findParticipantLocked(identity string) *domain.Participant {
	for i := range s.state.Participants {
		if s.state.Participants[i].Identity == identity {
			return &s.state.Participants[i]
		}
	}
	return nil
}

func (s *Session) activeCountLocked() int {
	n := 0
	for i := range s.state.Participants {
		if s.state.Participants[i].Active {
			n++
		}
	}
	return n
}

func (s *Session) participantUpdateLocked() Event {
	roster := make([]RosterEntry, 0, len(s.state.Participants))
	for i := range s.state.Participants {
		if p := &s.state.Participants[i]; p.Active {
			roster = append(roster, RosterEntry{Identity: p.Identity, Name: p.Name})
		}
	}
	return Event{Type: EventParticipantUpdate, Payload: ParticipantUpdate{Count: len(roster), Roster: roster}}
}

const sessionCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewSessionCode produces a short human-shareable code. Stores re-roll on the
// rare collision against their current keyspace.
func NewSessionCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("session code entropy unavailable, falling back to uuid: %v", err)
		return uuid.NewString()[:6]
	}
	for i, b := range buf {
		buf[i] = sessionCodeAlphabet[int(b)%len(sessionCodeAlphabet)]
	}
	return string(buf)
}
