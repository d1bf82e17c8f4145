package memory

import (
	"context"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session, err := store.Create(ctx, domain.Quiz{ID: "quiz-1"}, "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Code() == "" {
		t.Fatalf("expected a session code")
	}
	if _, ok := store.Get(session.Code()); !ok {
		t.Fatalf("expected session present")
	}

	store.Delete(session.Code())
	if _, ok := store.Get(session.Code()); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreCodesAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		session, err := store.Create(ctx, domain.Quiz{ID: "quiz-1"}, "host-1")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[session.Code()] {
			t.Fatalf("duplicate code %s", session.Code())
		}
		seen[session.Code()] = true
	}
}
