package client

import (
	"context"
	"errors"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	"livechat-backend/internal/realtime"
	"livechat-backend/internal/service/chat"
)

func fromService(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *chat.Error
	if errors.As(err, &svcErr) {
		return &Error{Code: Code(svcErr.Code), Message: svcErr.Message, Err: err}
	}
	return &Error{Code: CodeInternal, Message: "internal server error", Err: err}
}

func summaryFromService(s chat.SessionSummary) dto.SessionSummary {
	return dto.SessionSummary{Session: *dto.SessionFromItem(s.Session), UnreadCount: s.UnreadCount}
}

// LocalVisitor runs the visitor side in-process against the chat service and broker.
type LocalVisitor struct {
	svc    *chat.Service
	broker realtime.Broker
}

func NewLocalVisitor(svc *chat.Service, broker realtime.Broker) *LocalVisitor {
	return &LocalVisitor{svc: svc, broker: broker}
}

func (l *LocalVisitor) GetSessionByToken(ctx context.Context, token string) (*dto.Session, error) {
	item, err := l.svc.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, fromService(err)
	}
	if item == nil {
		return nil, nil
	}
	return dto.SessionFromItem(*item), nil
}

func (l *LocalVisitor) GetOrCreateSession(ctx context.Context, token string, req dto.CreateSessionRequest) (dto.CreateSessionResponse, error) {
	res, err := l.svc.GetOrCreateSession(ctx, token, chat.VisitorInfo{
		Name:      req.Name,
		Email:     req.Email,
		Locale:    req.Locale,
		OriginURL: req.OriginURL,
	})
	if err != nil {
		return dto.CreateSessionResponse{}, fromService(err)
	}
	return dto.CreateSessionResponse{
		Session:      *dto.SessionFromItem(res.Session),
		SessionToken: res.Token,
		Created:      res.Created,
	}, nil
}

func (l *LocalVisitor) ListMessages(ctx context.Context, token string) ([]dto.Message, error) {
	items, err := l.svc.ListMessages(ctx, token)
	if err != nil {
		return nil, fromService(err)
	}
	return dto.MessagesFromItems(items), nil
}

func (l *LocalVisitor) AppendMessage(ctx context.Context, token, text string) (dto.Message, error) {
	item, err := l.svc.AppendVisitorMessage(ctx, token, text)
	if err != nil {
		return dto.Message{}, fromService(err)
	}
	return *dto.MessageFromItem(item), nil
}

func (l *LocalVisitor) MarkRead(ctx context.Context, token string) (int, error) {
	n, err := l.svc.MarkReadByToken(ctx, token)
	return n, fromService(err)
}

// Subscribe checks that token owns sessionID before listening, as the websocket endpoint does.
func (l *LocalVisitor) Subscribe(ctx context.Context, token, sessionID string, handler Handler) (Subscription, error) {
	item, err := l.svc.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, fromService(err)
	}
	if item == nil || item.ID != sessionID {
		return nil, &Error{Code: CodeUnauthorized, Message: "invalid session token"}
	}
	sub, err := l.broker.Subscribe(ctx, realtime.SessionChannel(sessionID), realtime.Handler(handler))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// LocalAdmin runs the admin side in-process, replying as admin.
type LocalAdmin struct {
	svc    *chat.Service
	broker realtime.Broker
	admin  chat.AdminIdentity
}

func NewLocalAdmin(svc *chat.Service, broker realtime.Broker, admin chat.AdminIdentity) *LocalAdmin {
	return &LocalAdmin{svc: svc, broker: broker, admin: admin}
}

func (l *LocalAdmin) ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]dto.SessionSummary, error) {
	summaries, err := l.svc.ListSessions(ctx, chat.SessionFilter{Status: status, Limit: limit})
	if err != nil {
		return nil, fromService(err)
	}
	out := make([]dto.SessionSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summaryFromService(s))
	}
	return out, nil
}

func (l *LocalAdmin) GetSession(ctx context.Context, sessionID string) (dto.SessionSummary, error) {
	s, err := l.svc.GetSession(ctx, sessionID)
	if err != nil {
		return dto.SessionSummary{}, fromService(err)
	}
	return summaryFromService(s), nil
}

func (l *LocalAdmin) ListSessionMessages(ctx context.Context, sessionID string) ([]dto.Message, error) {
	items, err := l.svc.ListSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, fromService(err)
	}
	return dto.MessagesFromItems(items), nil
}

func (l *LocalAdmin) AppendAdminMessage(ctx context.Context, sessionID, text string) (dto.Message, error) {
	item, err := l.svc.AppendAdminMessage(ctx, l.admin, sessionID, text)
	if err != nil {
		return dto.Message{}, fromService(err)
	}
	return *dto.MessageFromItem(item), nil
}

func (l *LocalAdmin) MarkRead(ctx context.Context, sessionID string) (int, error) {
	n, err := l.svc.MarkRead(ctx, sessionID, model.SenderAdmin)
	return n, fromService(err)
}

func (l *LocalAdmin) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) (dto.Session, error) {
	item, err := l.svc.UpdateSessionStatus(ctx, sessionID, status)
	if err != nil {
		return dto.Session{}, fromService(err)
	}
	return *dto.SessionFromItem(item), nil
}

func (l *LocalAdmin) DeleteSession(ctx context.Context, sessionID string) error {
	return fromService(l.svc.DeleteSession(ctx, sessionID))
}

func (l *LocalAdmin) Subscribe(ctx context.Context, sessionID string, handler Handler) (Subscription, error) {
	sub, err := l.broker.Subscribe(ctx, realtime.SessionChannel(sessionID), realtime.Handler(handler))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (l *LocalAdmin) SubscribeAll(ctx context.Context, handler Handler) (Subscription, error) {
	sub, err := l.broker.Subscribe(ctx, realtime.SessionsChannel, realtime.Handler(handler))
	if err != nil {
		return nil, err
	}
	return sub, nil
}
