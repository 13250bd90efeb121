package dto

import "livechat-backend/internal/model"

func SessionFromItem(item model.ChatSessionItem) *Session {
	return &Session{
		ID:            item.ID,
		VisitorName:   item.VisitorName,
		VisitorEmail:  item.VisitorEmail,
		Status:        item.Status,
		Locale:        item.Locale,
		OriginURL:     item.OriginURL,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		LastMessageAt: item.LastMessageAt,
	}
}

func MessageFromItem(item model.ChatMessageItem) *Message {
	return &Message{
		ID:         item.ID,
		SessionID:  item.SessionID,
		SenderType: item.SenderType,
		SenderName: item.SenderName,
		Message:    item.Message,
		IsRead:     item.IsRead,
		CreatedAt:  item.CreatedAt,
	}
}

func MessagesFromItems(items []model.ChatMessageItem) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, *MessageFromItem(item))
	}
	return out
}
