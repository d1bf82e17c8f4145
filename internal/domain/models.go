package domain

import "time"

// SessionStatus tracks where a live session is in its lifecycle.
// Completed is terminal; the only backward transition is paused -> active.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
)

// RoundState is the sub-state of the currently presented question.
type RoundState string

const (
	RoundPending RoundState = "pending"
	RoundActive  RoundState = "active"
	RoundEnded   RoundState = "ended"
)

// ScoringMode selects how correct answers are awarded points.
type ScoringMode string

const (
	// ScoringStandard awards the question's full points for any correct answer.
	ScoringStandard ScoringMode = "standard"
	// ScoringTimeBased decays points linearly with elapsed time toward a 20% floor.
	ScoringTimeBased ScoringMode = "time_based"
)

// QuizSettings are the per-session rules snapshotted at creation time.
// They are mutable only while the session is still waiting.
type QuizSettings struct {
	ScoringMode        ScoringMode `json:"scoringMode"`
	PassingScorePct    int         `json:"passingScorePct"`
	RevealLeaderboard  bool        `json:"revealLeaderboard"`
	AllowLateJoin      bool        `json:"allowLateJoin"`
	AllowRetry         bool        `json:"allowRetry"`
	MaxParticipants    int         `json:"maxParticipants"` // 0 means unlimited
	DefaultQuestionSec int         `json:"defaultQuestionSec"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with one or more correct options.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	MediaURL     string   `json:"mediaUrl,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
	Options      []Option `json:"options"`
	Points       int      `json:"points"`       // defaults to 1 if zero
	TimeLimitSec int      `json:"timeLimitSec"` // 0 falls back to the session default
}

// CorrectOptionIDs returns the ids of all options flagged correct.
func (q Question) CorrectOptionIDs() []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// Quiz is an ordered collection of questions plus session rules.
type Quiz struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Questions []Question   `json:"questions"`
	Settings  QuizSettings `json:"settings"`
}

// Question looks up a question by id.
func (q Quiz) Question(questionID string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}

// Answer is one submission by one participant for one round.
type Answer struct {
	QuestionID   string    `json:"questionId"`
	OptionID     string    `json:"optionId"`
	Correct      bool      `json:"correct"`
	TimeTakenSec float64   `json:"timeTakenSec"`
	Points       int       `json:"points"`
	AnsweredAt   time.Time `json:"answeredAt"`
}

// Participant is one joined user/name within a session. Participants are
// deactivated on leave, never deleted, so score history survives disconnects.
type Participant struct {
	Identity string    `json:"identity"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
	Active   bool      `json:"active"`
	Score    int       `json:"score"`
	Answers  []Answer  `json:"answers"`
}

// RecomputeScore derives Score from the answer history. Score is never
// mutated independently, which keeps it from drifting out of sync.
func (p *Participant) RecomputeScore() {
	total := 0
	for _, a := range p.Answers {
		total += a.Points
	}
	p.Score = total
}

// Round is the currently (or most recently) presented question.
type Round struct {
	QuestionID  string     `json:"questionId"`
	DurationSec int        `json:"durationSec"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	State       RoundState `json:"state"`
}

// OptionStat is the per-option slice of a round summary.
type OptionStat struct {
	OptionID string  `json:"optionId"`
	Count    int     `json:"count"`
	Pct      float64 `json:"pct"`
}

// RoundSummary aggregates all answers recorded for one round at close time.
// Summaries are recomputed in full each close; re-closing replaces, never duplicates.
type RoundSummary struct {
	QuestionID     string       `json:"questionId"`
	Answered       int          `json:"answered"`
	CorrectCount   int          `json:"correctCount"`
	IncorrectCount int          `json:"incorrectCount"`
	AvgTimeSec     float64      `json:"avgTimeSec"`
	Options        []OptionStat `json:"options"`
}

// SessionState is the serializable snapshot of a live session aggregate.
type SessionState struct {
	ID              string         `json:"id"`
	Code            string         `json:"code"`
	HostID          string         `json:"hostId"`
	Status          SessionStatus  `json:"status"`
	Quiz            Quiz           `json:"quiz"`
	CurrentRound    *Round         `json:"currentRound,omitempty"`
	Participants    []Participant  `json:"participants"`
	QuestionResults []RoundSummary `json:"questionResults"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// LeaderboardEntry is a ranked view of a participant.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionCode    string             `json:"sessionCode"`
	TotalQuestions int                `json:"totalQuestions"`
	Entries        []LeaderboardEntry `json:"entries"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// AnswerResult summarizes the outcome of a submission for a single participant.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

// Feedback is a participant's own progress view.
type Feedback struct {
	Identity       string `json:"identity"`
	Score          int    `json:"score"`
	CorrectCount   int    `json:"correctCount"`
	AnsweredCount  int    `json:"answeredCount"`
	TotalQuestions int    `json:"totalQuestions"`
	Passed         bool   `json:"passed"`
}

// FinalResults combines the final leaderboard with every round summary.
// Only available once the session has completed.
type FinalResults struct {
	Leaderboard      Leaderboard    `json:"leaderboard"`
	RoundSummaries   []RoundSummary `json:"roundSummaries"`
	ParticipantCount int            `json:"participantCount"`
	MeanScore        float64        `json:"meanScore"`
}
