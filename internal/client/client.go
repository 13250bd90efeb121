// Package client is the backend contract the visitor and admin cores run against, with an
// in-process implementation and one speaking the public HTTP and websocket API.
package client

import (
	"context"
	"errors"
	"net/http"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
)

type Code string

const (
	CodeValidation   Code = "validation_error"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
)

// ClosedMessage is what the backend answers when a visitor writes to a closed session.
const ClosedMessage = "conversation is closed"

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func CodeOf(err error) Code {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return CodeInternal
}

func IsClosed(err error) bool {
	var cErr *Error
	return errors.As(err, &cErr) && cErr.Code == CodeConflict && cErr.Message == ClosedMessage
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	}
	return CodeInternal
}

type Handler func(dto.Event)

// Subscription is released with Close, which is idempotent.
type Subscription interface {
	Close()
}

type VisitorBackend interface {
	// GetSessionByToken returns nil without error for an unknown or stale token.
	GetSessionByToken(ctx context.Context, token string) (*dto.Session, error)
	GetOrCreateSession(ctx context.Context, token string, req dto.CreateSessionRequest) (dto.CreateSessionResponse, error)
	ListMessages(ctx context.Context, token string) ([]dto.Message, error)
	AppendMessage(ctx context.Context, token, text string) (dto.Message, error)
	MarkRead(ctx context.Context, token string) (int, error)
	Subscribe(ctx context.Context, token, sessionID string, handler Handler) (Subscription, error)
}

type AdminBackend interface {
	ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]dto.SessionSummary, error)
	GetSession(ctx context.Context, sessionID string) (dto.SessionSummary, error)
	ListSessionMessages(ctx context.Context, sessionID string) ([]dto.Message, error)
	AppendAdminMessage(ctx context.Context, sessionID, text string) (dto.Message, error)
	MarkRead(ctx context.Context, sessionID string) (int, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) (dto.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Subscribe(ctx context.Context, sessionID string, handler Handler) (Subscription, error)
	SubscribeAll(ctx context.Context, handler Handler) (Subscription, error)
}
