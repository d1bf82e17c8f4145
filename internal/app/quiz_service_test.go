package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestCreateJoinAndScoreFlow(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	code, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if code == "" {
		t.Fatalf("expected a session code")
	}

	if _, err := service.Join(ctx, code, "u1", "Alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := service.Join(ctx, code, "u2", "Bob"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if err := service.StartSession(ctx, code, "host-1"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := service.StartQuestion(ctx, code, "host-1", "q1", 0); err != nil {
		t.Fatalf("start question: %v", err)
	}

	result, err := service.SubmitAnswer(ctx, code, "u2", "q1", "o2")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Correct || result.Awarded != 10 || result.TotalScore != 10 {
		t.Fatalf("expected 10 points for a correct answer, got %+v", result)
	}

	if err := service.EndQuestion(ctx, code, "host-1", "q1"); err != nil {
		t.Fatalf("end question: %v", err)
	}

	lb, err := service.Leaderboard(code)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb.Entries))
	}
	if lb.Entries[0].Identity != "u2" || lb.Entries[0].Score != 10 {
		t.Fatalf("expected Bob to lead with 10 points, got %+v", lb.Entries[0])
	}
}

func TestSubscribeReceivesBroadcasts(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	code, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := service.Join(ctx, code, "u1", "Alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	ch, cancel, err := service.Subscribe(code)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	if err := service.StartSession(ctx, code, "host-1"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := service.StartQuestion(ctx, code, "host-1", "q1", 0); err != nil {
		t.Fatalf("start question: %v", err)
	}

	wantTypes := map[string]bool{app.EventQuizStarted: false, app.EventQuestion: false}
	deadline := time.After(2 * time.Second)
	for {
		done := true
		for _, seen := range wantTypes {
			if !seen {
				done = false
			}
		}
		if done {
			break
		}
		select {
		case ev := <-ch:
			if _, ok := wantTypes[ev.Type]; ok {
				wantTypes[ev.Type] = true
			}
		case <-deadline:
			t.Fatalf("missing broadcasts, got %+v", wantTypes)
		}
	}
}

func TestCommandsAgainstUnknownSession(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	if _, err := service.Join(ctx, "NOPE42", "u1", "Alice"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "NOPE42", "u1", "q1", "o1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if err := service.StartSession(ctx, "NOPE42", "host-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestCompletedSessionEvictedWithoutSubscribers(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	code, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := service.StartSession(ctx, code, "host-1"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := service.EndSession(ctx, code, "host-1"); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// Nobody was subscribed, so the live entry is gone immediately.
	if _, err := service.Status(code); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected evicted session, got %v", err)
	}
}

func TestCompletedSessionEvictedWhenLastSubscriberDetaches(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	code, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, cancel, err := service.Subscribe(code)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := service.StartSession(ctx, code, "host-1"); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := service.EndSession(ctx, code, "host-1"); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// The listener keeps the completed session addressable until it detaches.
	if _, err := service.FinalResults(code); err != nil {
		t.Fatalf("final results before detach: %v", err)
	}

	cancel()
	if _, err := service.Status(code); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected evicted session, got %v", err)
	}
}

func TestActiveSessionSurvivesSubscriberChurn(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	code, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, cancel, err := service.Subscribe(code)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()

	// Detaching from a session that has not completed must not evict it.
	if _, err := service.Status(code); err != nil {
		t.Fatalf("session disappeared after subscriber churn: %v", err)
	}
}

func TestCreateSessionUnknownQuiz(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	if _, err := service.CreateSession(ctx, "quiz-missing", "host-1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func newTestService() *app.QuizService {
	sessionStore := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Sample",
			Settings: domain.QuizSettings{
				ScoringMode:   domain.ScoringStandard,
				AllowLateJoin: true,
			},
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "Select the right option",
					Options: []domain.Option{
						{ID: "o1", Text: "Wrong", Correct: false},
						{ID: "o2", Text: "Right", Correct: true},
					},
					Points:       10,
					TimeLimitSec: 30,
				},
			},
		},
	}), 5*time.Minute)
	return app.NewQuizService(sessionStore, quizRepo)
}
