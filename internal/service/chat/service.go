package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	"livechat-backend/internal/realtime"
	"livechat-backend/internal/validation"
	"livechat-backend/utils"

	"github.com/google/uuid"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100

	maxAppendAttempts = 5
)

// Publisher fans realtime events out to subscribers. realtime.Broker implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, event dto.Event) error
}

type VisitorInfo struct {
	Name      string
	Email     string
	Locale    string
	OriginURL string
}

type AdminIdentity struct {
	AdminID string
	Name    string
	Email   string
}

type SessionResult struct {
	Session model.ChatSessionItem
	Token   string
	Created bool
}

type SessionSummary struct {
	Session     model.ChatSessionItem
	UnreadCount int
}

type SessionFilter struct {
	Status model.SessionStatus
	Limit  int
}

type Service struct {
	repo      Repository
	publisher Publisher
	seq       *sequencer
	now       func() time.Time
}

func NewService(repo Repository, publisher Publisher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		seq:       newSequencer(),
		now:       now,
	}
}

// GetOrCreateSession returns the session behind token when it is still valid. A stored
// name and email are left untouched; a session without an email takes the submitted
// pair. Without a token, or with an unknown one, it always creates a new session and a
// new token.
func (s *Service) GetOrCreateSession(ctx context.Context, token string, info VisitorInfo) (SessionResult, error) {
	visitor := validation.NormalizeVisitor(validation.Visitor{
		Name:   info.Name,
		Email:  info.Email,
		Locale: info.Locale,
	})
	if err := validation.ValidateVisitor(visitor); err != nil {
		return SessionResult{}, validationError(err)
	}

	if token = strings.TrimSpace(token); token != "" {
		existing, err := s.repo.GetSessionByToken(ctx, token)
		if err == nil {
			if existing.VisitorEmail == "" {
				return s.identifyVisitor(ctx, existing, visitor, token)
			}
			return SessionResult{Session: existing, Token: token}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return SessionResult{}, newError(ErrorCodeInternal, "failed to load session", err)
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	session := model.ChatSessionItem{
		ID:            uuid.NewString(),
		SessionToken:  utils.NewSessionToken(),
		VisitorName:   visitor.Name,
		VisitorEmail:  visitor.Email,
		Status:        model.SessionStatusActive,
		Locale:        visitor.Locale,
		OriginURL:     strings.TrimSpace(info.OriginURL),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return SessionResult{}, newError(ErrorCodeInternal, "failed to create session", err)
	}

	s.publish(ctx, dto.Event{
		Type:      dto.EventSessionCreated,
		SessionID: session.ID,
		Session:   dto.SessionFromItem(session),
	}, realtime.SessionsChannel)

	return SessionResult{Session: session, Token: session.SessionToken, Created: true}, nil
}

func (s *Service) identifyVisitor(ctx context.Context, session model.ChatSessionItem, visitor validation.Visitor, token string) (SessionResult, error) {
	updated, err := s.repo.IdentifyVisitor(ctx, session.ID, visitor.Name, visitor.Email, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SessionResult{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return SessionResult{}, newError(ErrorCodeInternal, "failed to update session", err)
	}

	s.publish(ctx, dto.Event{
		Type:      dto.EventSessionUpdated,
		SessionID: updated.ID,
		Session:   dto.SessionFromItem(updated),
	}, realtime.SessionChannel(updated.ID), realtime.SessionsChannel)

	return SessionResult{Session: updated, Token: token}, nil
}

// GetSessionByToken returns nil without an error for an empty, unknown or deleted token.
func (s *Service) GetSessionByToken(ctx context.Context, token string) (*model.ChatSessionItem, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	session, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, newError(ErrorCodeInternal, "failed to load session", err)
	}
	return &session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (SessionSummary, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	unread, err := s.repo.CountUnread(ctx, session.ID, model.SenderVisitor)
	if err != nil {
		return SessionSummary{}, newError(ErrorCodeInternal, "failed to count unread messages", err)
	}
	return SessionSummary{Session: session, UnreadCount: unread}, nil
}

// ListSessions orders by lastMessageAt descending and recomputes every unread count from
// the message log.
func (s *Service) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, newError(ErrorCodeValidation, "status must be active or closed", nil)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	sessions, err := s.repo.ListSessions(ctx, filter.Status, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list sessions", err)
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		unread, err := s.repo.CountUnread(ctx, session.ID, model.SenderVisitor)
		if err != nil {
			return nil, newError(ErrorCodeInternal, "failed to count unread messages", err)
		}
		summaries = append(summaries, SessionSummary{Session: session, UnreadCount: unread})
	}
	return summaries, nil
}

// UpdateSessionStatus only moves sessions forward: active to closed. Setting the current
// status again is a no-op; reopening a closed session is rejected.
func (s *Service) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) (model.ChatSessionItem, error) {
	if !status.Valid() {
		return model.ChatSessionItem{}, newError(ErrorCodeValidation, "status must be active or closed", nil)
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return model.ChatSessionItem{}, err
	}
	if session.Status == status {
		return session, nil
	}
	if session.Status == model.SessionStatusClosed {
		return model.ChatSessionItem{}, newError(ErrorCodeConflict, "closed conversations cannot be reopened", nil)
	}

	updated, err := s.repo.UpdateSessionStatus(ctx, session.ID, status, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ChatSessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.ChatSessionItem{}, newError(ErrorCodeInternal, "failed to update session", err)
	}

	s.publish(ctx, dto.Event{
		Type:      dto.EventSessionUpdated,
		SessionID: updated.ID,
		Session:   dto.SessionFromItem(updated),
	}, realtime.SessionChannel(updated.ID), realtime.SessionsChannel)

	return updated, nil
}

// DeleteSession removes the session and its whole message log.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}

	slot := s.seq.acquire(session.ID)
	err = s.repo.DeleteSession(ctx, session.ID)
	s.seq.release(session.ID, slot)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeNotFound, "session not found", err)
		}
		return newError(ErrorCodeInternal, "failed to delete session", err)
	}

	s.publish(ctx, dto.Event{
		Type:      dto.EventSessionDeleted,
		SessionID: session.ID,
	}, realtime.SessionChannel(session.ID), realtime.SessionsChannel)
	return nil
}

// AppendVisitorMessage appends to the session owning token. Closed sessions reject it.
func (s *Service) AppendVisitorMessage(ctx context.Context, token, text string) (model.ChatMessageItem, error) {
	text = strings.TrimSpace(text)
	if err := validation.ValidateMessage(text); err != nil {
		return model.ChatMessageItem{}, validationError(err)
	}

	session, err := s.sessionForToken(ctx, token)
	if err != nil {
		return model.ChatMessageItem{}, err
	}

	return s.appendMessage(ctx, session.ID, model.SenderVisitor, session.VisitorName, text, func(current model.ChatSessionItem) error {
		if current.Status == model.SessionStatusClosed {
			return newError(ErrorCodeConflict, closedMessage, nil)
		}
		return nil
	})
}

func (s *Service) AppendAdminMessage(ctx context.Context, admin AdminIdentity, sessionID, text string) (model.ChatMessageItem, error) {
	if strings.TrimSpace(admin.AdminID) == "" {
		return model.ChatMessageItem{}, newError(ErrorCodeUnauthorized, "invalid admin identity", nil)
	}
	text = strings.TrimSpace(text)
	if err := validation.ValidateMessage(text); err != nil {
		return model.ChatMessageItem{}, validationError(err)
	}
	if strings.TrimSpace(sessionID) == "" {
		return model.ChatMessageItem{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}

	return s.appendMessage(ctx, strings.TrimSpace(sessionID), model.SenderAdmin, strings.TrimSpace(admin.Name), text, nil)
}

func (s *Service) appendMessage(
	ctx context.Context,
	sessionID string,
	sender model.SenderType,
	senderName string,
	text string,
	guard func(model.ChatSessionItem) error,
) (model.ChatMessageItem, error) {
	slot := s.seq.acquire(sessionID)
	defer s.seq.release(sessionID, slot)

	// The slot orders appends within this process. Other processes sharing the store are
	// ordered by the repository's stamp check: a lost race re-reads the session and
	// stamps again after the winner.
	var message model.ChatMessageItem
	for attempt := 1; ; attempt++ {
		session, err := s.loadSession(ctx, sessionID)
		if err != nil {
			return model.ChatMessageItem{}, err
		}
		if guard != nil {
			if err := guard(session); err != nil {
				return model.ChatMessageItem{}, err
			}
		}

		message = model.ChatMessageItem{
			ID:         uuid.NewString(),
			SessionID:  session.ID,
			SenderType: sender,
			SenderName: senderName,
			Message:    text,
			CreatedAt:  slot.next(s.now(), session.LastMessageAt),
		}

		err = s.repo.AppendMessage(ctx, message)
		if err == nil {
			break
		}
		if errors.Is(err, ErrNotFound) {
			return model.ChatMessageItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		if !errors.Is(err, ErrStaleStamp) || attempt == maxAppendAttempts {
			return model.ChatMessageItem{}, newError(ErrorCodeInternal, "failed to store message", err)
		}
	}

	s.publish(ctx, dto.Event{
		Type:      dto.EventMessageInserted,
		SessionID: message.SessionID,
		Message:   dto.MessageFromItem(message),
	}, realtime.SessionChannel(message.SessionID), realtime.SessionsChannel)

	return message, nil
}

// ListMessages is scoped by token: a visitor can only read the log of their own session.
func (s *Service) ListMessages(ctx context.Context, token string) ([]model.ChatMessageItem, error) {
	session, err := s.sessionForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.listMessages(ctx, session.ID)
}

func (s *Service) ListSessionMessages(ctx context.Context, sessionID string) ([]model.ChatMessageItem, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.listMessages(ctx, session.ID)
}

func (s *Service) listMessages(ctx context.Context, sessionID string) ([]model.ChatMessageItem, error) {
	messages, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

// MarkRead flags every message not authored by readerRole as read and returns how many
// flags changed. Calling it again changes nothing.
func (s *Service) MarkRead(ctx context.Context, sessionID string, readerRole model.SenderType) (int, error) {
	if !readerRole.Valid() {
		return 0, newError(ErrorCodeValidation, "readerRole must be visitor or admin", nil)
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	updated, err := s.repo.MarkRead(ctx, session.ID, readerRole)
	if err != nil {
		return 0, newError(ErrorCodeInternal, "failed to mark messages read", err)
	}

	if updated > 0 {
		s.publish(ctx, dto.Event{
			Type:       dto.EventMessagesRead,
			SessionID:  session.ID,
			ReaderRole: readerRole,
		}, realtime.SessionChannel(session.ID), realtime.SessionsChannel)
	}
	return updated, nil
}

func (s *Service) MarkReadByToken(ctx context.Context, token string) (int, error) {
	session, err := s.sessionForToken(ctx, token)
	if err != nil {
		return 0, err
	}
	return s.MarkRead(ctx, session.ID, model.SenderVisitor)
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (model.ChatSessionItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.ChatSessionItem{}, newError(ErrorCodeValidation, "sessionId is required", nil)
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ChatSessionItem{}, newError(ErrorCodeNotFound, "session not found", err)
		}
		return model.ChatSessionItem{}, newError(ErrorCodeInternal, "failed to load session", err)
	}
	return session, nil
}

func (s *Service) sessionForToken(ctx context.Context, token string) (model.ChatSessionItem, error) {
	session, err := s.GetSessionByToken(ctx, token)
	if err != nil {
		return model.ChatSessionItem{}, err
	}
	if session == nil {
		return model.ChatSessionItem{}, newError(ErrorCodeUnauthorized, "invalid session token", nil)
	}
	return *session, nil
}

func (s *Service) publish(ctx context.Context, event dto.Event, channels ...string) {
	if s.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	for _, channel := range channels {
		if err := s.publisher.Publish(ctx, channel, event); err != nil {
			log.Printf("[chat] publish %s on %s failed: %v", event.Type, channel, err)
		}
	}
}
