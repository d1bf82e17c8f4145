package app

import (
	"math"
	"sort"

	"live-quiz-service/internal/domain"
)

// Leaderboard returns the current ranking. Ranks are 1-based and recomputed
// on every call; they are never stored.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

// leaderboardLocked sorts by score descending with ties broken by earliest
// join time, then identity, so the order is a deterministic total order
// independent of map iteration or submission interleaving.
func (s *Session) leaderboardLocked() domain.Leaderboard {
	participants := make([]*domain.Participant, 0, len(s.state.Participants))
	for i := range s.state.Participants {
		participants = append(participants, &s.state.Participants[i])
	}
	sort.SliceStable(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].Identity < participants[j].Identity
	})

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for i, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:     i + 1,
			Identity: p.Identity,
			Name:     p.Name,
			Score:    p.Score,
		})
	}
	return domain.Leaderboard{
		SessionCode: s.state.Code,
		// Always the quiz's fixed question count, not however many rounds
		// happen to have closed so far.
		TotalQuestions: len(s.state.Quiz.Questions),
		Entries:        entries,
		UpdatedAt:      s.now(),
	}
}

// Feedback reports a participant's own progress, usable mid-session and
// after completion.
func (s *Session) Feedback(identity string) (domain.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findParticipantLocked(identity)
	if p == nil {
		return domain.Feedback{}, domain.ErrParticipantNotFound
	}
	correct := 0
	for _, a := range p.Answers {
		if a.Correct {
			correct++
		}
	}
	return domain.Feedback{
		Identity:       p.Identity,
		Score:          p.Score,
		CorrectCount:   correct,
		AnsweredCount:  len(p.Answers),
		TotalQuestions: len(s.state.Quiz.Questions),
		Passed:         s.passedLocked(p.Score),
	}, nil
}

// passedLocked compares a score against the passing threshold, expressed as
// a percentage of the quiz's total attainable points.
func (s *Session) passedLocked(score int) bool {
	pct := s.state.Quiz.Settings.PassingScorePct
	if pct <= 0 {
		return true
	}
	total := 0
	for _, q := range s.state.Quiz.Questions {
		total += questionPoints(q)
	}
	if total == 0 {
		return true
	}
	return float64(score)/float64(total)*100 >= float64(pct)
}

// FinalResults combines the final ranking with every round summary. Only
// valid once the session has completed.
func (s *Session) FinalResults() (domain.FinalResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != domain.StatusCompleted {
		return domain.FinalResults{}, domain.ErrSessionNotCompleted
	}

	totalScore := 0
	for i := range s.state.Participants {
		totalScore += s.state.Participants[i].Score
	}
	mean := 0.0
	if n := len(s.state.Participants); n > 0 {
		mean = math.Round(float64(totalScore)/float64(n)*100) / 100
	}

	summaries := make([]domain.RoundSummary, len(s.state.QuestionResults))
	copy(summaries, s.state.QuestionResults)

	return domain.FinalResults{
		Leaderboard:      s.leaderboardLocked(),
		RoundSummaries:   summaries,
		ParticipantCount: len(s.state.Participants),
		MeanScore:        mean,
	}, nil
}
