package chat

import (
	"errors"

	"livechat-backend/internal/validation"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of a service error, or ErrorCodeInternal for anything else.
func CodeOf(err error) ErrorCode {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ErrorCodeInternal
}

const closedMessage = "conversation is closed"

// IsClosed reports whether err is the rejection of a visitor send on a closed session.
func IsClosed(err error) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Code == ErrorCodeConflict && svcErr.Message == closedMessage
}

func validationError(err error) *Error {
	return newError(ErrorCodeValidation, validation.Describe(err), err)
}
