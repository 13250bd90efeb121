package model

import "time"

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

func (s SessionStatus) Valid() bool {
	return s == SessionStatusActive || s == SessionStatusClosed
}

type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderAdmin   SenderType = "admin"
)

func (s SenderType) Valid() bool {
	return s == SenderVisitor || s == SenderAdmin
}

// ChatSessionItem is one visitor conversation. SessionToken is the visitor's only
// credential and is never reissued.
type ChatSessionItem struct {
	ID            string        `dynamodbav:"id" gorm:"primaryKey;type:text"`
	SessionToken  string        `dynamodbav:"sessionToken" gorm:"uniqueIndex;type:text;not null"`
	VisitorName   string        `dynamodbav:"visitorName" gorm:"type:text;not null"`
	VisitorEmail  string        `dynamodbav:"visitorEmail" gorm:"type:text;not null"`
	Status        SessionStatus `dynamodbav:"status" gorm:"type:text;not null;index"`
	Locale        string        `dynamodbav:"locale,omitempty" gorm:"type:text"`
	OriginURL     string        `dynamodbav:"originUrl,omitempty" gorm:"type:text"`
	CreatedAt     time.Time     `dynamodbav:"createdAt"`
	UpdatedAt     time.Time     `dynamodbav:"updatedAt"`
	LastMessageAt time.Time     `dynamodbav:"lastMessageAt" gorm:"index"`

	Messages []ChatMessageItem `dynamodbav:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (ChatSessionItem) TableName() string {
	return "chat_sessions"
}

// ChatMessageItem is append-only; only IsRead changes after insert.
type ChatMessageItem struct {
	PK         string     `dynamodbav:"pk" gorm:"-"`
	ID         string     `dynamodbav:"messageId" gorm:"primaryKey;type:text"`
	SessionID  string     `dynamodbav:"sessionId" gorm:"type:text;not null;index:idx_session_created,priority:1"`
	SenderType SenderType `dynamodbav:"senderType" gorm:"type:text;not null"`
	SenderName string     `dynamodbav:"senderName,omitempty" gorm:"type:text"`
	Message    string     `dynamodbav:"message" gorm:"type:text;not null"`
	IsRead     bool       `dynamodbav:"isRead" gorm:"not null;default:false"`
	CreatedAt  time.Time  `dynamodbav:"createdAt" gorm:"index:idx_session_created,priority:2"`
}

func (ChatMessageItem) TableName() string {
	return "chat_messages"
}
