package app

import "live-quiz-service/internal/domain"

// Event is an outbound broadcast delivered to every subscriber of a session.
// Unicast results (answer outcomes, feedback, status) are plain return values
// of the corresponding commands instead.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventQuizStarted       = "quiz_started"
	EventQuizPaused        = "quiz_paused"
	EventQuizResumed       = "quiz_resumed"
	EventQuizEnded         = "quiz_ended"
	EventQuestion          = "question"
	EventQuestionEnded     = "question_ended"
	EventLeaderboard       = "leaderboard"
	EventParticipantUpdate = "participant_update"
)

// OptionView is an answer option with the correct flag stripped.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the question payload broadcast when a round opens.
type QuestionView struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	MediaURL    string       `json:"mediaUrl,omitempty"`
	Options     []OptionView `json:"options"`
	DurationSec int          `json:"durationSec"`
	Points      int          `json:"points"`
}

// QuestionEnded carries the reveal broadcast when a round closes.
type QuestionEnded struct {
	QuestionID       string              `json:"questionId"`
	CorrectOptionIDs []string            `json:"correctOptionIds"`
	Explanation      string              `json:"explanation,omitempty"`
	Summary          domain.RoundSummary `json:"summary"`
}

// RosterEntry is one participant in a participant_update broadcast.
type RosterEntry struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// ParticipantUpdate is broadcast after every join and leave.
type ParticipantUpdate struct {
	Count  int           `json:"count"`
	Roster []RosterEntry `json:"roster"`
}

// QuizEnded carries the final leaderboard when the session completes.
type QuizEnded struct {
	FinalLeaderboard domain.Leaderboard `json:"finalLeaderboard"`
}

// StatusView answers a get_status query, including the open question for
// late joiners catching up mid-round.
type StatusView struct {
	Code            string               `json:"code"`
	Status          domain.SessionStatus `json:"status"`
	QuizTitle       string               `json:"quizTitle"`
	TotalQuestions  int                  `json:"totalQuestions"`
	AnsweredRounds  int                  `json:"answeredRounds"`
	CurrentQuestion *QuestionView        `json:"currentQuestion,omitempty"`
}

func questionView(q domain.Question, durationSec int) QuestionView {
	opts := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
	}
	return QuestionView{
		ID:          q.ID,
		Prompt:      q.Prompt,
		MediaURL:    q.MediaURL,
		Options:     opts,
		DurationSec: durationSec,
		Points:      questionPoints(q),
	}
}
