package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"livechat-backend/internal/realtime"
	authsvc "livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"
	"livechat-backend/internal/websocket"
)

type WebsocketEndpoints interface {
	SessionFeed(http.ResponseWriter, *http.Request) error
	Session(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type websocketEndpoints struct {
	chat          *chat.Service
	auth          *authsvc.Service
	handler       *websocket.Handler
	sessionPrefix string
}

// NewWebsocketEndpoints joins sockets to broker channels. Visitors pass their session
// token as ?token=; admins pass role=admin and their access token.
func NewWebsocketEndpoints(chatService *chat.Service, authService *authsvc.Service, handler *websocket.Handler, sessionPrefix string) WebsocketEndpoints {
	return &websocketEndpoints{
		chat:          chatService,
		auth:          authService,
		handler:       handler,
		sessionPrefix: strings.TrimRight(sessionPrefix, "/") + "/",
	}
}

func unauthorized(format string, args ...any) error {
	return &HTTPError{
		StatusCode: http.StatusUnauthorized,
		Message:    "Unauthorized",
		ErrorLog:   fmt.Errorf(format, args...),
	}
}

func (h *websocketEndpoints) requireAdmin(r *http.Request) error {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return unauthorized("websocket admin token missing")
	}
	if _, err := h.auth.IdentityFromToken(token); err != nil {
		return serviceError(err)
	}
	return nil
}

// SessionFeed streams lifecycle events for every session to an admin.
func (h *websocketEndpoints) SessionFeed(w http.ResponseWriter, r *http.Request) error {
	if err := h.requireAdmin(r); err != nil {
		return err
	}
	return h.handler.JoinRoom(w, r, realtime.SessionsChannel)
}

func (h *websocketEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	parts := splitPath(r.URL.Path, h.sessionPrefix)
	if len(parts) != 1 {
		return notFound(r.URL.Path)
	}
	sessionID := parts[0]

	switch role := r.URL.Query().Get("role"); role {
	case "", "visitor":
		session, err := h.chat.GetSessionByToken(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			return serviceError(err)
		}
		if session == nil || session.ID != sessionID {
			return unauthorized("websocket session token does not match %s", sessionID)
		}
	case "admin":
		if err := h.requireAdmin(r); err != nil {
			return err
		}
		if _, err := h.chat.GetSession(r.Context(), sessionID); err != nil {
			return serviceError(err)
		}
	default:
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "role must be visitor or admin",
			ErrorLog:   fmt.Errorf("websocket role invalid: %s", role),
		}
	}

	return h.handler.JoinRoom(w, r, realtime.SessionChannel(sessionID))
}

func (h *websocketEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	if err := h.requireAdmin(r); err != nil {
		return err
	}
	return h.handler.GetRooms(w, r)
}
