package endpoints

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	"livechat-backend/internal/service/chat"
)

type AdminSessionEndpoints interface {
	Sessions(http.ResponseWriter, *http.Request) error
	Session(http.ResponseWriter, *http.Request) error
}

type adminSessionEndpoints struct {
	service       *chat.Service
	sessionPrefix string
}

// NewAdminSessionEndpoints dispatches /{id}, /{id}/messages and /{id}/read below
// sessionPrefix, e.g. "/api/admin/v1/sessions/".
func NewAdminSessionEndpoints(service *chat.Service, sessionPrefix string) AdminSessionEndpoints {
	return &adminSessionEndpoints{service: service, sessionPrefix: strings.TrimRight(sessionPrefix, "/") + "/"}
}

func (h *adminSessionEndpoints) Sessions(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleList,
	})
}

func (h *adminSessionEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	parts := splitPath(r.URL.Path, h.sessionPrefix)
	if len(parts) == 0 || len(parts) > 2 {
		return notFound(r.URL.Path)
	}
	sessionID := parts[0]

	if len(parts) == 1 {
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleGet(w, r, sessionID)
			},
			http.MethodPatch: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleUpdate(w, r, sessionID)
			},
			http.MethodDelete: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleDelete(w, r, sessionID)
			},
		})
	}

	switch parts[1] {
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleListMessages(w, r, sessionID)
			},
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handlePostMessage(w, r, sessionID)
			},
		})
	case "read":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error {
				return h.handleMarkRead(w, r, sessionID)
			},
		})
	}
	return notFound(r.URL.Path)
}

func (h *adminSessionEndpoints) handleList(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	filter := chat.SessionFilter{Status: model.SessionStatus(strings.TrimSpace(query.Get("status")))}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "limit must be a positive integer",
				ErrorLog:   fmt.Errorf("invalid limit %q", raw),
			}
		}
		filter.Limit = limit
	}

	summaries, err := h.service.ListSessions(r.Context(), filter)
	if err != nil {
		return serviceError(err)
	}

	res := dto.ListSessionsResponse{Sessions: make([]dto.SessionSummary, 0, len(summaries))}
	for _, s := range summaries {
		res.Sessions = append(res.Sessions, toSummary(s))
	}
	return WriteJSON(w, http.StatusOK, res)
}

func (h *adminSessionEndpoints) handleGet(w http.ResponseWriter, r *http.Request, sessionID string) error {
	summary, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Session: toSummary(summary)})
}

func (h *adminSessionEndpoints) handleUpdate(w http.ResponseWriter, r *http.Request, sessionID string) error {
	var req dto.UpdateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	if _, err := h.service.UpdateSessionStatus(r.Context(), sessionID, req.Status); err != nil {
		return serviceError(err)
	}

	summary, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{Session: toSummary(summary)})
}

func (h *adminSessionEndpoints) handleDelete(w http.ResponseWriter, r *http.Request, sessionID string) error {
	if err := h.service.DeleteSession(r.Context(), sessionID); err != nil {
		return serviceError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *adminSessionEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, sessionID string) error {
	messages, err := h.service.ListSessionMessages(r.Context(), sessionID)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{Messages: dto.MessagesFromItems(messages)})
}

func (h *adminSessionEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request, sessionID string) error {
	var req dto.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	identity, _ := middleware.AdminFromContext(r.Context())
	message, err := h.service.AppendAdminMessage(r.Context(), chat.AdminIdentity{
		AdminID: identity.AdminID,
		Name:    identity.Name,
		Email:   identity.Email,
	}, sessionID, req.Message)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusCreated, dto.MessageResponse{Message: *dto.MessageFromItem(message)})
}

func (h *adminSessionEndpoints) handleMarkRead(w http.ResponseWriter, r *http.Request, sessionID string) error {
	updated, err := h.service.MarkRead(r.Context(), sessionID, model.SenderAdmin)
	if err != nil {
		return serviceError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.MarkReadResponse{Updated: updated})
}

func toSummary(s chat.SessionSummary) dto.SessionSummary {
	return dto.SessionSummary{Session: *dto.SessionFromItem(s.Session), UnreadCount: s.UnreadCount}
}
