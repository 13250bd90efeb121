package auth

import (
	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/model"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeNotFound     ErrorCode = "not_found"
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

type LoginParams struct {
	Email    string
	Password string
}

type SeedParams struct {
	Email    string
	Password string
	Name     string
}

type Identity struct {
	AdminID string
	Email   string
	Name    string
}

type AuthResult struct {
	Admin  model.AdminItem
	Tokens internaljwt.TokenPair
}
