package api

import (
	"errors"
	"fmt"
	"net/http"

	"livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"
)

type HTTPError struct {
	StatusCode int
	Message    string
	ErrorLog   error
}

func (e *HTTPError) Error() string {
	return e.Message
}

type ApiError struct {
	Error string `json:"message"`
}

// ServiceError maps chat and auth service errors onto HTTP statuses. Anything unknown is
// a 500 whose detail only reaches the log.
func ServiceError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var chatErr *chat.Error
	if errors.As(err, &chatErr) {
		return fromCode(string(chatErr.Code), chatErr.Message, chatErr.Err, chatErr)
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return fromCode(string(authErr.Code), authErr.Message, authErr.Err, authErr)
	}

	return &HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		ErrorLog:   err,
	}
}

func fromCode(code, message string, cause, svcErr error) *HTTPError {
	errorLog := svcErr
	if cause != nil {
		errorLog = fmt.Errorf("%s: %w", message, cause)
	}

	status := http.StatusInternalServerError
	switch code {
	case string(chat.ErrorCodeValidation):
		status = http.StatusBadRequest
	case string(chat.ErrorCodeUnauthorized):
		status = http.StatusUnauthorized
	case string(chat.ErrorCodeForbidden):
		status = http.StatusForbidden
	case string(chat.ErrorCodeNotFound):
		status = http.StatusNotFound
	case string(chat.ErrorCodeConflict):
		status = http.StatusConflict
	default:
		message = "Internal server error"
	}

	return &HTTPError{StatusCode: status, Message: message, ErrorLog: errorLog}
}
