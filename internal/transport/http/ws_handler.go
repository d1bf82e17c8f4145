package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startQuestionPayload struct {
	QuestionID  string `json:"questionId"`
	DurationSec int    `json:"durationSec"`
}

type endQuestionPayload struct {
	QuestionID string `json:"questionId"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string           `json:"message"`
	Code    domain.ErrorCode `json:"code"`
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

type createSessionResponse struct {
	Code string `json:"code"`
}

// CreateSession handles POST /sessions: it snapshots the quiz and opens a
// waiting room, returning the shareable code.
func (h *WSHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	code, err := h.service.CreateSession(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		status := http.StatusBadRequest
		if domain.CodeOf(err) == domain.CodeNotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(createSessionResponse{Code: code})
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live
// session engine. Hosts connect with role=host and drive the quiz;
// participants are joined on connect and deactivated when the socket drops.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	role := r.URL.Query().Get("role")
	if code == "" || (role != "host" && displayName == "" && userID == "") {
		http.Error(w, "missing code, name, or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	writeErr := func(err error) {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Code: domain.CodeOf(err)}})
	}

	identity := userID
	if role == "host" {
		hostID, err := h.service.HostID(code)
		if err != nil {
			writeErr(err)
			return
		}
		if userID != hostID {
			writeErr(domain.ErrNotHost)
			return
		}
	} else {
		participant, err := h.service.Join(r.Context(), code, userID, displayName)
		if err != nil {
			writeErr(err)
			return
		}
		identity = participant.Identity
		defer func() {
			_ = h.service.Leave(r.Context(), code, identity)
		}()
	}

	updates, cancel, err := h.service.Subscribe(code)
	if err != nil {
		writeErr(err)
		return
	}
	defer cancel()

	status, err := h.service.Status(code)
	if err != nil {
		writeErr(err)
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine: gorilla connections forbid concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "joined", Payload: status}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleCommand(r, send, code, identity, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleCommand(r *http.Request, send chan outboundMessage, code, identity string, inbound inboundMessage) {
	ctx := r.Context()

	reply := func(msgType string, payload any) {
		send <- outboundMessage{Type: msgType, Payload: payload}
	}
	replyErr := func(err error) {
		reply("error", errorPayload{Message: err.Error(), Code: domain.CodeOf(err)})
	}

	switch inbound.Type {
	case "start_session":
		if err := h.service.StartSession(ctx, code, identity); err != nil {
			replyErr(err)
		}
	case "start_question":
		var payload startQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			replyErr(domain.ErrInvalidCommand)
			return
		}
		if err := h.service.StartQuestion(ctx, code, identity, payload.QuestionID, payload.DurationSec); err != nil {
			replyErr(err)
		}
	case "end_question":
		var payload endQuestionPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			replyErr(domain.ErrInvalidCommand)
			return
		}
		if err := h.service.EndQuestion(ctx, code, identity, payload.QuestionID); err != nil {
			replyErr(err)
		}
	case "pause_session":
		if err := h.service.PauseSession(ctx, code, identity); err != nil {
			replyErr(err)
		}
	case "resume_session":
		if err := h.service.ResumeSession(ctx, code, identity); err != nil {
			replyErr(err)
		}
	case "end_session":
		if err := h.service.EndSession(ctx, code, identity); err != nil {
			replyErr(err)
		}
	case "update_settings":
		var settings domain.QuizSettings
		if err := json.Unmarshal(inbound.Payload, &settings); err != nil {
			replyErr(domain.ErrInvalidCommand)
			return
		}
		if err := h.service.UpdateSettings(ctx, code, identity, settings); err != nil {
			replyErr(err)
		}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			replyErr(domain.ErrInvalidCommand)
			return
		}
		result, err := h.service.SubmitAnswer(ctx, code, identity, payload.QuestionID, payload.OptionID)
		if err != nil {
			replyErr(err)
			return
		}
		reply("answer_result", result)
	case "leave":
		if err := h.service.Leave(ctx, code, identity); err != nil {
			replyErr(err)
		}
	case "get_status":
		status, err := h.service.Status(code)
		if err != nil {
			replyErr(err)
			return
		}
		reply("status", status)
	case "get_feedback":
		fb, err := h.service.Feedback(code, identity)
		if err != nil {
			replyErr(err)
			return
		}
		reply("feedback", fb)
	case "get_leaderboard":
		lb, err := h.service.Leaderboard(code)
		if err != nil {
			replyErr(err)
			return
		}
		reply("leaderboard", lb)
	case "get_results":
		results, err := h.service.FinalResults(code)
		if err != nil {
			replyErr(err)
			return
		}
		reply("final_results", results)
	default:
		replyErr(domain.ErrInvalidCommand)
	}
}
