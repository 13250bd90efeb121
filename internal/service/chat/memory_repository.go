package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livechat-backend/internal/model"
)

// MemoryRepository keeps everything in process. It backs STORE_DRIVER=memory and the tests
// of every package that needs a working store.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]model.ChatSessionItem
	tokens   map[string]string
	messages map[string][]model.ChatMessageItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]model.ChatSessionItem),
		tokens:   make(map[string]string),
		messages: make(map[string][]model.ChatMessageItem),
	}
}

func (m *MemoryRepository) CreateSession(ctx context.Context, session model.ChatSessionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if _, ok := m.tokens[session.SessionToken]; ok {
		return fmt.Errorf("session token already in use")
	}
	session.Messages = nil
	m.sessions[session.ID] = session
	m.tokens[session.SessionToken] = session.ID
	return nil
}

func (m *MemoryRepository) GetSession(ctx context.Context, sessionID string) (model.ChatSessionItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.ChatSessionItem{}, ErrNotFound
	}
	return session, nil
}

func (m *MemoryRepository) GetSessionByToken(ctx context.Context, token string) (model.ChatSessionItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	if !ok {
		return model.ChatSessionItem{}, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *MemoryRepository) ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]model.ChatSessionItem, error) {
	m.mu.RLock()
	sessions := make([]model.ChatSessionItem, 0, len(m.sessions))
	for _, session := range m.sessions {
		if status != "" && session.Status != status {
			continue
		}
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	return sortAndLimitSessions(sessions, limit), nil
}

func (m *MemoryRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, updatedAt time.Time) (model.ChatSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.ChatSessionItem{}, ErrNotFound
	}
	session.Status = status
	session.UpdatedAt = updatedAt
	m.sessions[sessionID] = session
	return session, nil
}

func (m *MemoryRepository) IdentifyVisitor(ctx context.Context, sessionID, name, email string, updatedAt time.Time) (model.ChatSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return model.ChatSessionItem{}, ErrNotFound
	}
	if session.VisitorEmail == "" {
		session.VisitorName = name
		session.VisitorEmail = email
		session.UpdatedAt = updatedAt
		m.sessions[sessionID] = session
	}
	return session, nil
}

func (m *MemoryRepository) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.tokens, session.SessionToken)
	delete(m.messages, sessionID)
	return nil
}

func (m *MemoryRepository) AppendMessage(ctx context.Context, message model.ChatMessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[message.SessionID]
	if !ok {
		return ErrNotFound
	}
	if !message.CreatedAt.After(session.LastMessageAt) {
		return ErrStaleStamp
	}
	session.LastMessageAt = message.CreatedAt
	session.UpdatedAt = message.CreatedAt
	m.sessions[message.SessionID] = session
	m.messages[message.SessionID] = append(m.messages[message.SessionID], message)
	return nil
}

func (m *MemoryRepository) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessageItem, error) {
	m.mu.RLock()
	messages := make([]model.ChatMessageItem, len(m.messages[sessionID]))
	copy(messages, m.messages[sessionID])
	m.mu.RUnlock()

	sortMessages(messages)
	return messages, nil
}

func (m *MemoryRepository) MarkRead(ctx context.Context, sessionID string, readerRole model.SenderType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := 0
	messages := m.messages[sessionID]
	for i := range messages {
		if messages[i].IsRead || messages[i].SenderType == readerRole {
			continue
		}
		messages[i].IsRead = true
		updated++
	}
	return updated, nil
}

func (m *MemoryRepository) CountUnread(ctx context.Context, sessionID string, author model.SenderType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return countUnread(m.messages[sessionID], author), nil
}
