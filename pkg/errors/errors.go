package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Messaging error constructors. The codes below are part of the REST contract
// and matched by clients, so they stay stable.

func EmptyMessage() *AppError {
	return &AppError{
		Code:    "EMPTY_MESSAGE",
		Message: "A message requires text content or an attachment",
		Status:  http.StatusBadRequest,
	}
}

func InvalidParticipants(message string) *AppError {
	return &AppError{
		Code:    "INVALID_PARTICIPANTS",
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func UnknownParticipant(participantID string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_PARTICIPANT",
		Message: fmt.Sprintf("Participant %s does not exist", participantID),
		Status:  http.StatusBadRequest,
	}
}

func NotAParticipant(err error) *AppError {
	return &AppError{
		Code:    "NOT_A_PARTICIPANT",
		Message: "You are not a participant of this conversation",
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func ConversationNotFound(err error) *AppError {
	return &AppError{
		Code:    "CONVERSATION_NOT_FOUND",
		Message: "Conversation not found",
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
