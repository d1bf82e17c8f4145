package domain

import "errors"

// ErrorCode is the stable machine-readable class of an engine error,
// surfaced to clients alongside the human-readable message.
type ErrorCode string

const (
	CodeNotFound     ErrorCode = "not_found"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeInvalidState ErrorCode = "invalid_state"
	CodeConflict     ErrorCode = "conflict"
	CodeValidation   ErrorCode = "validation"
)

// Error is a coded engine error. Sentinels below are compared with errors.Is.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

func newErr(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

var (
	// ErrSessionNotFound is returned for an unknown session code.
	ErrSessionNotFound = newErr(CodeNotFound, "session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newErr(CodeNotFound, "quiz not found")
	// ErrQuestionNotFound indicates a question id outside this session's quiz.
	ErrQuestionNotFound = newErr(CodeNotFound, "question not found")
	// ErrOptionNotFound indicates a submitted option id is invalid.
	ErrOptionNotFound = newErr(CodeNotFound, "option not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = newErr(CodeNotFound, "participant not found in session")

	// ErrNotHost rejects host-only commands from other callers.
	ErrNotHost = newErr(CodeUnauthorized, "only the host may perform this action")

	// ErrSessionNotWaiting rejects settings changes once the session has started.
	ErrSessionNotWaiting = newErr(CodeInvalidState, "session already started")
	// ErrSessionNotActive rejects commands that need a running session.
	ErrSessionNotActive = newErr(CodeInvalidState, "session is not active")
	// ErrSessionCompleted rejects commands against a finished session.
	ErrSessionCompleted = newErr(CodeInvalidState, "session already completed")
	// ErrSessionNotCompleted gates final results until the session has finished.
	ErrSessionNotCompleted = newErr(CodeInvalidState, "session not completed")
	// ErrRoundInProgress rejects opening a round while one is active.
	ErrRoundInProgress = newErr(CodeInvalidState, "another question is still active")
	// ErrRoundNotActive rejects submissions and closes when no round is open.
	ErrRoundNotActive = newErr(CodeInvalidState, "no active question")
	// ErrStaleQuestion rejects commands referencing a question other than the open round.
	ErrStaleQuestion = newErr(CodeInvalidState, "question does not match the active round")

	// ErrAlreadyAnswered rejects duplicate answers when retries are disabled.
	ErrAlreadyAnswered = newErr(CodeConflict, "question already answered")
	// ErrSessionFull rejects joins once the participant cap is reached.
	ErrSessionFull = newErr(CodeConflict, "participant limit reached")
	// ErrLateJoinDisabled rejects joins after start when the policy forbids them.
	ErrLateJoinDisabled = newErr(CodeConflict, "session does not allow joining after start")

	// ErrInvalidCommand flags malformed command payloads.
	ErrInvalidCommand = newErr(CodeValidation, "invalid command payload")
)

// CodeOf extracts the stable code from any error, defaulting to validation
// for errors that did not originate in the engine.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeValidation
}
