package dto

import (
	"time"

	"livechat-backend/internal/model"
)

type EventType string

const (
	EventMessageInserted EventType = "message.inserted"
	EventMessagesRead    EventType = "messages.read"
	EventSessionCreated  EventType = "session.created"
	EventSessionUpdated  EventType = "session.updated"
	EventSessionDeleted  EventType = "session.deleted"
)

// Event is the realtime frame published on broker channels and written to websocket
// clients as JSON.
type Event struct {
	Type       EventType        `json:"type"`
	SessionID  string           `json:"sessionId"`
	Session    *Session         `json:"session,omitempty"`
	Message    *Message         `json:"message,omitempty"`
	ReaderRole model.SenderType `json:"readerRole,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}
