package app

import (
	"math"

	"live-quiz-service/internal/domain"
)

// timeBasedFloorPct is the fraction of a question's points still awarded for
// a correct answer arriving at the deadline.
const timeBasedFloorPct = 0.2

// questionPoints normalizes a question's point value; unset means 1.
func questionPoints(q domain.Question) int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// scoreAnswer computes correctness and awarded points for a submission.
// elapsedSec is measured on the server clock from round start; client
// timestamps are never trusted for scoring.
func scoreAnswer(q domain.Question, optionID string, mode domain.ScoringMode, elapsedSec float64, durationSec int) (bool, int, error) {
	var selected *domain.Option
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			selected = &q.Options[i]
			break
		}
	}
	if selected == nil {
		return false, 0, domain.ErrOptionNotFound
	}
	if !selected.Correct {
		return false, 0, nil
	}
	return true, awardPoints(questionPoints(q), mode, elapsedSec, durationSec), nil
}

// awardPoints returns the points for a correct answer. Standard mode awards
// full points; time-based mode decays linearly from full credit at zero
// elapsed to a 20% floor at the deadline, never below the floor and never
// negative.
func awardPoints(points int, mode domain.ScoringMode, elapsedSec float64, durationSec int) int {
	if mode != domain.ScoringTimeBased || durationSec <= 0 {
		return points
	}
	if elapsedSec < 0 {
		elapsedSec = 0
	}
	decayed := int(math.Ceil(float64(points) * (1 - elapsedSec/float64(durationSec))))
	floor := int(math.Ceil(float64(points) * timeBasedFloorPct))
	if decayed < floor {
		return floor
	}
	return decayed
}
