package model

import (
	"fmt"
	"time"
)

const (
	SessionsTable = "ChatSessions"
	MessagesTable = "ChatMessages"
	AdminsTable   = "Admins"
)

const (
	SessionsByTokenIndex  = "byToken"
	SessionsByStatusIndex = "byStatus"
	MessagesBySessionIdx  = "bySession"
)

type AdminItem struct {
	Email        string    `dynamodbav:"email" gorm:"primaryKey;type:text"`
	AdminID      string    `dynamodbav:"adminId" gorm:"uniqueIndex;type:text;not null"`
	Name         string    `dynamodbav:"name" gorm:"type:text"`
	PasswordHash string    `dynamodbav:"passwordHash" gorm:"type:text;not null"`
	CreatedAt    time.Time `dynamodbav:"createdAt"`
}

func (AdminItem) TableName() string {
	return "admins"
}

func MessagePK(sessionID, messageID string) string {
	return fmt.Sprintf("%s#%s", sessionID, messageID)
}
