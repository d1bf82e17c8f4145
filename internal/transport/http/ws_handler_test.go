package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestWebSocketSessionFlow(t *testing.T) {
	store := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizRepo)
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", wsHandler.CreateSession)
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	code := createSession(t, server.URL)

	wsBase := "ws" + server.URL[len("http"):]
	host := dial(t, wsBase+"/ws?code="+code+"&role=host&userId=host-1")
	defer host.Close()
	readUntil(t, host, "joined")

	participant := dial(t, wsBase+"/ws?code="+code+"&userId=u1&name=Alice")
	defer participant.Close()
	readUntil(t, participant, "joined")

	writeCommand(t, host, "start_session", nil)
	readUntil(t, participant, "quiz_started")

	writeCommand(t, host, "start_question", map[string]any{"questionId": "q1"})
	question := readUntil(t, participant, "question")
	options, ok := question["options"].([]any)
	if !ok || len(options) != 3 {
		t.Fatalf("expected 3 options, got %+v", question["options"])
	}
	for _, raw := range options {
		opt := raw.(map[string]any)
		if _, leaked := opt["correct"]; leaked {
			t.Fatalf("correct flag leaked to participants: %+v", opt)
		}
	}

	writeCommand(t, participant, "answer", map[string]any{"questionId": "q1", "optionId": "o2"})
	result := readUntil(t, participant, "answer_result")
	if result["correct"] != true {
		t.Fatalf("expected correct answer, got %+v", result)
	}

	writeCommand(t, host, "end_question", map[string]any{"questionId": "q1"})
	ended := readUntil(t, participant, "question_ended")
	correctIDs, ok := ended["correctOptionIds"].([]any)
	if !ok || len(correctIDs) != 1 || correctIDs[0] != "o2" {
		t.Fatalf("expected correct option reveal, got %+v", ended)
	}

	writeCommand(t, host, "end_session", nil)
	final := readUntil(t, participant, "quiz_ended")
	if final["finalLeaderboard"] == nil {
		t.Fatalf("expected final leaderboard, got %+v", final)
	}
}

func TestWebSocketRejectsNonHostCommands(t *testing.T) {
	store := memory.NewSessionStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewQuizService(store, quizRepo)
	wsHandler := NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", wsHandler.CreateSession)
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	code := createSession(t, server.URL)
	wsBase := "ws" + server.URL[len("http"):]

	participant := dial(t, wsBase+"/ws?code="+code+"&userId=u1&name=Alice")
	defer participant.Close()
	readUntil(t, participant, "joined")

	writeCommand(t, participant, "start_session", nil)
	errMsg := readUntil(t, participant, "error")
	if errMsg["code"] != string(domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized error, got %+v", errMsg)
	}
}

func createSession(t *testing.T, baseURL string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"quizId": "quiz-1", "hostId": "host-1"})
	resp, err := http.Post(baseURL+"/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status %d", resp.StatusCode)
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return out.Code
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func writeCommand(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil skips unrelated broadcasts (participant updates, leaderboards)
// until the wanted message type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("did not receive %s", want)
	return nil
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
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
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					Points:       10,
					TimeLimitSec: 30,
				},
			},
		},
	}
}
