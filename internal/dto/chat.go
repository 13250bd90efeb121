package dto

import (
	"time"

	"livechat-backend/internal/model"
)

type Session struct {
	ID            string              `json:"id"`
	VisitorName   string              `json:"visitorName"`
	VisitorEmail  string              `json:"visitorEmail"`
	Status        model.SessionStatus `json:"status"`
	Locale        string              `json:"locale,omitempty"`
	OriginURL     string              `json:"originUrl,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	LastMessageAt time.Time           `json:"lastMessageAt"`
}

type SessionSummary struct {
	Session
	UnreadCount int `json:"unreadCount"`
}

type Message struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"sessionId"`
	SenderType model.SenderType `json:"senderType"`
	SenderName string           `json:"senderName,omitempty"`
	Message    string           `json:"message"`
	IsRead     bool             `json:"isRead"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type CreateSessionRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Locale    string `json:"locale,omitempty"`
	OriginURL string `json:"originUrl,omitempty"`
}

type CreateSessionResponse struct {
	Session      Session `json:"session"`
	SessionToken string  `json:"sessionToken"`
	Created      bool    `json:"created"`
}

type CurrentSessionResponse struct {
	Session *Session `json:"session"`
}

type SessionResponse struct {
	Session SessionSummary `json:"session"`
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

type UpdateSessionRequest struct {
	Status model.SessionStatus `json:"status"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}
