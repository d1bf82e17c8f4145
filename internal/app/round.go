package app

import (
	"context"
	"log"
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// StartQuestion opens a round for the given question and broadcasts its
// sanitized payload. The round's deadline timer is scheduled here; expiry and
// an explicit host close race safely because closing is idempotent.
func (s *Session) StartQuestion(ctx context.Context, actorID, questionID string, durationSec int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	if s.state.Status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}
	if round := s.state.CurrentRound; round != nil && round.State == domain.RoundActive {
		return domain.ErrRoundInProgress
	}
	question, ok := s.state.Quiz.Question(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}

	duration := s.resolveDurationLocked(question, durationSec)
	s.state.CurrentRound = &domain.Round{
		QuestionID:  questionID,
		DurationSec: duration,
		StartedAt:   s.now(),
		State:       domain.RoundActive,
	}
	if err := s.commitLocked(ctx, Event{Type: EventQuestion, Payload: questionView(question, duration)}); err != nil {
		s.state.CurrentRound = nil
		return err
	}
	s.scheduleCloseLocked(questionID, time.Duration(duration)*time.Second)
	return nil
}

// resolveDurationLocked picks the round duration: explicit request value,
// else the question's own limit, else the session default.
func (s *Session) resolveDurationLocked(q domain.Question, requested int) int {
	if requested > 0 {
		return requested
	}
	if q.TimeLimitSec > 0 {
		return q.TimeLimitSec
	}
	if d := s.state.Quiz.Settings.DefaultQuestionSec; d > 0 {
		return d
	}
	return 30
}

// scheduleCloseLocked arms the deadline timer for the open round. The timer
// is stopped best-effort on manual close; a late firing is harmless because
// autoClose re-checks the round sub-state under the session lock.
func (s *Session) scheduleCloseLocked(questionID string, d time.Duration) {
	s.timer = time.AfterFunc(d, func() {
		s.autoClose(questionID)
	})
}

// autoClose is the timer path into closeRoundLocked. A persist failure here
// must not lose the round summary: the write is retried once and otherwise
// only logged, leaving the summary in memory for the next commit to carry.
func (s *Session) autoClose(questionID string) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.state.CurrentRound
	if round == nil || round.State != domain.RoundActive || round.QuestionID != questionID {
		return
	}
	_, evs := s.closeRoundLocked(ctx, s.now())
	if err := s.persistLocked(ctx); err != nil {
		log.Printf("session %s: persist after auto-close failed, retrying: %v", s.state.Code, err)
		if err := s.persistLocked(ctx); err != nil {
			log.Printf("session %s: persist retry failed, keeping summary in memory: %v", s.state.Code, err)
		}
	}
	s.broadcastLocked(evs...)
}

// EndQuestion closes the open round on behalf of the host. If the deadline
// timer won the race the round is already ended and this is a no-op success.
func (s *Session) EndQuestion(ctx context.Context, actorID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(actorID); err != nil {
		return err
	}
	round := s.state.CurrentRound
	if round == nil || round.QuestionID != questionID {
		if round == nil {
			return domain.ErrRoundNotActive
		}
		return domain.ErrStaleQuestion
	}
	closed, evs := s.closeRoundLocked(ctx, s.now())
	if !closed {
		// Timer got there first; the summary already exists.
		return nil
	}
	return s.commitLocked(ctx, evs...)
}

// closeRoundLocked transitions the open round to ended exactly once,
// computing its summary and building the reveal broadcasts. Callers that
// find the round already ended get closed=false and must not re-broadcast.
func (s *Session) closeRoundLocked(_ context.Context, at time.Time) (bool, []Event) {
	round := s.state.CurrentRound
	if round == nil || round.State != domain.RoundActive {
		return false, nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	ended := at
	round.EndedAt = &ended
	round.State = domain.RoundEnded

	summary := s.computeSummaryLocked(round.QuestionID)
	s.upsertSummaryLocked(summary)

	evs := []Event{}
	question, _ := s.state.Quiz.Question(round.QuestionID)
	evs = append(evs, Event{Type: EventQuestionEnded, Payload: QuestionEnded{
		QuestionID:       round.QuestionID,
		CorrectOptionIDs: question.CorrectOptionIDs(),
		Explanation:      question.Explanation,
		Summary:          summary,
	}})
	if s.state.Quiz.Settings.RevealLeaderboard {
		evs = append(evs, Event{Type: EventLeaderboard, Payload: s.leaderboardLocked()})
	}
	return true, evs
}

// computeSummaryLocked aggregates every answer recorded for a question.
// Recomputed in full on each close so a forced re-close replaces cleanly.
func (s *Session) computeSummaryLocked(questionID string) domain.RoundSummary {
	summary := domain.RoundSummary{QuestionID: questionID}
	optionCounts := make(map[string]int)
	var totalTime float64

	for i := range s.state.Participants {
		for _, a := range s.state.Participants[i].Answers {
			if a.QuestionID != questionID {
				continue
			}
			summary.Answered++
			if a.Correct {
				summary.CorrectCount++
			} else {
				summary.IncorrectCount++
			}
			totalTime += a.TimeTakenSec
			optionCounts[a.OptionID]++
		}
	}
	if summary.Answered > 0 {
		summary.AvgTimeSec = math.Round(totalTime/float64(summary.Answered)*100) / 100
	}

	question, _ := s.state.Quiz.Question(questionID)
	for _, opt := range question.Options {
		count := optionCounts[opt.ID]
		pct := 0.0
		if summary.Answered > 0 {
			pct = math.Round(float64(count)/float64(summary.Answered)*10000) / 100
		}
		summary.Options = append(summary.Options, domain.OptionStat{OptionID: opt.ID, Count: count, Pct: pct})
	}
	return summary
}

// upsertSummaryLocked replaces an existing summary for the question or
// appends a new one, keeping results in round-completion order.
func (s *Session) upsertSummaryLocked(summary domain.RoundSummary) {
	for i := range s.state.QuestionResults {
		if s.state.QuestionResults[i].QuestionID == summary.QuestionID {
			s.state.QuestionResults[i] = summary
			return
		}
	}
	s.state.QuestionResults = append(s.state.QuestionResults, summary)
}

// SubmitAnswer validates and records one participant's answer for the open
// round. Preconditions are checked in a fixed order; the first failure wins.
func (s *Session) SubmitAnswer(ctx context.Context, identity, questionID, optionID string) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round := s.state.CurrentRound
	if s.state.Status != domain.StatusActive || round == nil || round.State != domain.RoundActive {
		return domain.AnswerResult{}, domain.ErrRoundNotActive
	}
	if round.QuestionID != questionID {
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}
	participant := s.findParticipantLocked(identity)
	if participant == nil || !participant.Active {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}

	prior := -1
	for i, a := range participant.Answers {
		if a.QuestionID == questionID {
			prior = i
			break
		}
	}
	if prior >= 0 && !s.state.Quiz.Settings.AllowRetry {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	question, ok := s.state.Quiz.Question(questionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}

	now := s.now()
	elapsed := now.Sub(round.StartedAt).Seconds()
	correct, points, err := scoreAnswer(question, optionID, s.state.Quiz.Settings.ScoringMode, elapsed, round.DurationSec)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	answer := domain.Answer{
		QuestionID:   questionID,
		OptionID:     optionID,
		Correct:      correct,
		TimeTakenSec: math.Round(elapsed*100) / 100,
		Points:       points,
		AnsweredAt:   now,
	}
	if prior >= 0 {
		// Retry replaces the earlier answer; its points drop out of the
		// score when it is recomputed below.
		participant.Answers[prior] = answer
	} else {
		participant.Answers = append(participant.Answers, answer)
	}
	participant.RecomputeScore()

	result := domain.AnswerResult{
		QuestionID: questionID,
		Correct:    correct,
		Awarded:    points,
		TotalScore: participant.Score,
	}
	return result, s.commitLocked(ctx)
}
