package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of failure kinds reported to clients.
type ErrorCode string

const (
	CodeMalformedPayload     ErrorCode = "MALFORMED_PAYLOAD"
	CodeMissingFields        ErrorCode = "MISSING_FIELDS"
	CodeUnknownAction        ErrorCode = "UNKNOWN_ACTION"
	CodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	CodeNotAParticipant      ErrorCode = "NOT_A_PARTICIPANT"
	CodeEmptyContent         ErrorCode = "EMPTY_CONTENT"
	CodePersistenceFailure   ErrorCode = "PERSISTENCE_FAILURE"
)

// Retryable reports whether the client may resend the same request.
func (c ErrorCode) Retryable() bool {
	return c == CodePersistenceFailure
}

// Error is a classified failure. Two Errors match under errors.Is when their
// codes match, so callers can test against the sentinels below regardless
// of the message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// PersistenceError wraps a store failure.
func PersistenceError(op string, err error) *Error {
	return &Error{Code: CodePersistenceFailure, Message: op, Err: err}
}

var (
	ErrMalformedPayload     = NewError(CodeMalformedPayload, "payload is not a valid JSON object")
	ErrMissingFields        = NewError(CodeMissingFields, "required fields are missing")
	ErrUnknownAction        = NewError(CodeUnknownAction, "unknown action")
	ErrConversationNotFound = NewError(CodeConversationNotFound, "conversation not found")
	ErrNotAParticipant      = NewError(CodeNotAParticipant, "user is not a participant of this conversation")
	ErrEmptyContent         = NewError(CodeEmptyContent, "message content is empty")
	ErrContentTooLong       = NewError(CodeMalformedPayload, "message content is too long")
	ErrPersistenceFailure   = NewError(CodePersistenceFailure, "storage unavailable, please retry")
)

// CodeOf classifies err. Unclassified errors are persistence failures.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodePersistenceFailure
}

// ErrorData is the payload of an error frame.
type ErrorData struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Action    string    `json:"action,omitempty"`
	UUID      string    `json:"uuid,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

// NewErrorFrame builds the error frame for err raised while handling action.
// Persistence details never reach the client.
func NewErrorFrame(err error, action, uuid string) *OutboundFrame {
	code := CodeOf(err)
	msg := ErrPersistenceFailure.Message
	var e *Error
	if code != CodePersistenceFailure && errors.As(err, &e) {
		msg = e.Message
	}
	return NewFrame(ActionError, ErrorData{
		Code:      code,
		Message:   msg,
		Action:    action,
		UUID:      uuid,
		Retryable: code.Retryable(),
	})
}
