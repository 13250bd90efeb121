package endpoints

import (
	"net/http"
	"strings"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/service/chat"
)

const SessionTokenHeader = "X-Session-Token"

// SessionEndpoints is the visitor facing API. The caller is identified only by the
// session token header.
type SessionEndpoints interface {
	Sessions(http.ResponseWriter, *http.Request) error
	Current(http.ResponseWriter, *http.Request) error
}

type sessionEndpoints struct {
	service     *chat.Service
	currentPath string
}

// NewSessionEndpoints serves the current session under currentPath, e.g.
// "/api/public/v1/sessions/current".
func NewSessionEndpoints(service *chat.Service, currentPath string) SessionEndpoints {
	return &sessionEndpoints{service: service, currentPath: strings.TrimRight(currentPath, "/")}
}

func sessionToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionTokenHeader))
}

func (h *sessionEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCreate,
	})
}

func (h *sessionEndpoints) Current(w http.ResponseWriter, r *http.Request) error {
	parts := splitPath(r.URL.Path, h.currentPath)
	switch {
	case len(parts) == 0:
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: h.handleCurrent,
		})
	case len(parts) == 1 && parts[0] == "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:  h.handleListMessages,
			http.MethodPost: h.handlePostMessage,
		})
	case len(parts) == 1 && parts[0] == "read":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.handleMarkRead,
		})
	}
	return notFound(r.URL.Path)
}

func (h *sessionEndpoints) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.service.GetOrCreateSession(r.Context(), sessionToken(r), chat.VisitorInfo{
		Name:      req.Name,
		Email:     req.Email,
		Locale:    req.Locale,
		OriginURL: req.OriginURL,
	})
	if err != nil {
		return serviceError(err)
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return WriteJSON(w, status, dto.CreateSessionResponse{
		Session:      *dto.SessionFromItem(result.Session),
		SessionToken: result.Token,
		Created:      result.Created,
	})
}

func (h *sessionEndpoints) handleCurrent(w http.ResponseWriter, r *http.Request) error {
	session, err := h.service.GetSessionByToken(r.Context(), sessionToken(r))
	if err != nil {
		return serviceError(err)
	}

	res := dto.CurrentSessionResponse{}
	if session != nil {
		res.Session = dto.SessionFromItem(*session)
	}
	return WriteJSON(w, http.StatusOK, res)
}

func (h *sessionEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request) error {
	messages, err := h.service.ListMessages(r.Context(), sessionToken(r))
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: dto.MessagesFromItems(messages)})
}

func (h *sessionEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request) error {
	var req dto.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	message, err := h.service.AppendVisitorMessage(r.Context(), sessionToken(r), req.Message)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: *dto.MessageFromItem(message)})
}

func (h *sessionEndpoints) handleMarkRead(w http.ResponseWriter, r *http.Request) error {
	updated, err := h.service.MarkReadByToken(r.Context(), sessionToken(r))
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.MarkReadResponse{Updated: updated})
}
