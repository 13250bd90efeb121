package chat

import (
	"context"
	"errors"
	"sort"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("chat repository: not found")
	// ErrStaleStamp means the session already holds a message stamped at or after the one
	// being appended.
	ErrStaleStamp = errors.New("chat repository: message stamp not after last message")
)

// Repository is the durable session store and message log.
type Repository interface {
	CreateSession(ctx context.Context, session model.ChatSessionItem) error
	GetSession(ctx context.Context, sessionID string) (model.ChatSessionItem, error)
	GetSessionByToken(ctx context.Context, token string) (model.ChatSessionItem, error)
	// ListSessions returns sessions ordered by lastMessageAt descending. An empty status
	// matches every session.
	ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]model.ChatSessionItem, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, updatedAt time.Time) (model.ChatSessionItem, error)
	// IdentifyVisitor stores name and email on a session that has no email yet. A session
	// that already has one comes back unchanged.
	IdentifyVisitor(ctx context.Context, sessionID, name, email string, updatedAt time.Time) (model.ChatSessionItem, error)
	// DeleteSession removes the session together with its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendMessage stores message and advances the session's lastMessageAt to its
	// createdAt in one step. It fails with ErrStaleStamp unless createdAt is strictly after
	// the stored lastMessageAt, and with ErrNotFound once the session is gone.
	AppendMessage(ctx context.Context, message model.ChatMessageItem) error
	// ListMessages returns the session's messages in creation order.
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessageItem, error)
	// MarkRead flags every unread message not authored by readerRole and returns how many
	// flags changed.
	MarkRead(ctx context.Context, sessionID string, readerRole model.SenderType) (int, error)
	CountUnread(ctx context.Context, sessionID string, author model.SenderType) (int, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func sessionKey(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": database.S(sessionID)}
}

func messageKey(sessionID, messageID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": database.S(model.MessagePK(sessionID, messageID))}
}

func (r *DynamoRepository) CreateSession(ctx context.Context, session model.ChatSessionItem) error {
	return r.db.Client.PutItem(ctx, model.SessionsTable, session, database.Expr{
		Condition: "attribute_not_exists(id)",
	})
}

func (r *DynamoRepository) GetSession(ctx context.Context, sessionID string) (model.ChatSessionItem, error) {
	var session model.ChatSessionItem
	if err := r.db.Client.GetItem(ctx, model.SessionsTable, sessionKey(sessionID), &session); err != nil {
		if database.IsNotFound(err) {
			return model.ChatSessionItem{}, ErrNotFound
		}
		return model.ChatSessionItem{}, err
	}
	return session, nil
}

func (r *DynamoRepository) GetSessionByToken(ctx context.Context, token string) (model.ChatSessionItem, error) {
	expr := database.Expr{
		Values: map[string]types.AttributeValue{":token": database.S(token)},
	}
	items, err := r.db.Client.QueryAll(ctx, model.SessionsTable, model.SessionsByTokenIndex, "sessionToken = :token", expr, true)
	if err != nil {
		if !database.IsIndexNotFound(err) {
			return model.ChatSessionItem{}, err
		}
		expr.Filter = "sessionToken = :token"
		if items, err = r.db.Client.ScanAll(ctx, model.SessionsTable, expr); err != nil {
			return model.ChatSessionItem{}, err
		}
	}
	if len(items) == 0 {
		return model.ChatSessionItem{}, ErrNotFound
	}

	var session model.ChatSessionItem
	if err := attributevalue.UnmarshalMap(items[0], &session); err != nil {
		return model.ChatSessionItem{}, err
	}
	return session, nil
}

func (r *DynamoRepository) ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]model.ChatSessionItem, error) {
	var (
		items []map[string]types.AttributeValue
		err   error
	)

	if status == "" {
		items, err = r.db.Client.ScanAll(ctx, model.SessionsTable, database.Expr{})
	} else {
		// status is a DynamoDB reserved word.
		expr := database.Expr{
			Values: map[string]types.AttributeValue{":status": database.S(string(status))},
			Names:  map[string]string{"#status": "status"},
		}
		items, err = r.db.Client.QueryAll(ctx, model.SessionsTable, model.SessionsByStatusIndex, "#status = :status", expr, false)
		if err != nil && database.IsIndexNotFound(err) {
			expr.Filter = "#status = :status"
			items, err = r.db.Client.ScanAll(ctx, model.SessionsTable, expr)
		}
	}
	if err != nil {
		return nil, err
	}

	sessions := make([]model.ChatSessionItem, 0, len(items))
	for _, item := range items {
		var session model.ChatSessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sortAndLimitSessions(sessions, limit), nil
}

func (r *DynamoRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, updatedAt time.Time) (model.ChatSessionItem, error) {
	var session model.ChatSessionItem
	err := r.db.Client.UpdateItem(
		ctx,
		model.SessionsTable,
		sessionKey(sessionID),
		"SET #status = :status, updatedAt = :updatedAt",
		database.Expr{
			Condition: "attribute_exists(id)",
			Values: map[string]types.AttributeValue{
				":status":    database.S(string(status)),
				":updatedAt": database.TimeAttr(updatedAt),
			},
			Names: map[string]string{"#status": "status"},
		},
		&session,
	)
	if err != nil {
		if database.IsConditionFailed(err) {
			return model.ChatSessionItem{}, ErrNotFound
		}
		return model.ChatSessionItem{}, err
	}
	return session, nil
}

func (r *DynamoRepository) IdentifyVisitor(ctx context.Context, sessionID, name, email string, updatedAt time.Time) (model.ChatSessionItem, error) {
	var session model.ChatSessionItem
	err := r.db.Client.UpdateItem(
		ctx,
		model.SessionsTable,
		sessionKey(sessionID),
		"SET visitorName = :name, visitorEmail = :email, updatedAt = :updatedAt",
		database.Expr{
			Condition: "attribute_exists(id) AND (attribute_not_exists(visitorEmail) OR visitorEmail = :blank)",
			Values: map[string]types.AttributeValue{
				":name":      database.S(name),
				":email":     database.S(email),
				":blank":     database.S(""),
				":updatedAt": database.TimeAttr(updatedAt),
			},
		},
		&session,
	)
	if database.IsConditionFailed(err) {
		return r.GetSession(ctx, sessionID)
	}
	if err != nil {
		return model.ChatSessionItem{}, err
	}
	return session, nil
}

// DeleteSession drops the session item first so that no append can commit afterwards,
// then sweeps its messages. The index behind ListMessages is eventually consistent, so a
// second pass picks up writes that committed just before the session went away.
func (r *DynamoRepository) DeleteSession(ctx context.Context, sessionID string) error {
	err := r.db.Client.DeleteItem(ctx, model.SessionsTable, sessionKey(sessionID), database.Expr{
		Condition: "attribute_exists(id)",
	})
	if database.IsConditionFailed(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	for pass := 0; pass < 2; pass++ {
		messages, err := r.ListMessages(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		keys := make([]map[string]types.AttributeValue, 0, len(messages))
		for _, message := range messages {
			keys = append(keys, messageKey(message.SessionID, message.ID))
		}
		if err := r.db.Client.BatchDeleteItems(ctx, model.MessagesTable, keys); err != nil {
			return err
		}
	}
	return nil
}

// AppendMessage writes the message and bumps the session in a single transaction. The
// session keeps lastMessageSeq, the stamp in unix microseconds, because the RFC 3339
// strings in lastMessageAt do not compare correctly as strings.
func (r *DynamoRepository) AppendMessage(ctx context.Context, message model.ChatMessageItem) error {
	message.PK = model.MessagePK(message.SessionID, message.ID)
	item, err := attributevalue.MarshalMap(message)
	if err != nil {
		return err
	}

	err = r.db.Client.TransactWrite(ctx, []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           aws.String(model.SessionsTable),
				Key:                 sessionKey(message.SessionID),
				UpdateExpression:    aws.String("SET lastMessageAt = :at, updatedAt = :at, lastMessageSeq = :seq"),
				ConditionExpression: aws.String("attribute_exists(id) AND (attribute_not_exists(lastMessageSeq) OR lastMessageSeq < :seq)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":at":  database.TimeAttr(message.CreatedAt),
					":seq": database.N(message.CreatedAt.UnixMicro()),
				},
			},
		},
		{
			Put: &types.Put{
				TableName:           aws.String(model.MessagesTable),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			},
		},
	})
	if database.IsConditionFailed(err) {
		// Either the session is gone or it moved past this stamp; the caller re-reads.
		return ErrStaleStamp
	}
	return err
}

func (r *DynamoRepository) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessageItem, error) {
	expr := database.Expr{
		Values: map[string]types.AttributeValue{":sessionId": database.S(sessionID)},
	}
	items, err := r.db.Client.QueryAll(ctx, model.MessagesTable, model.MessagesBySessionIdx, "sessionId = :sessionId", expr, true)
	if err != nil {
		if !database.IsIndexNotFound(err) {
			return nil, err
		}
		expr.Filter = "sessionId = :sessionId"
		if items, err = r.db.Client.ScanAll(ctx, model.MessagesTable, expr); err != nil {
			return nil, err
		}
	}

	messages := make([]model.ChatMessageItem, 0, len(items))
	for _, item := range items {
		var message model.ChatMessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	sortMessages(messages)
	return messages, nil
}

func (r *DynamoRepository) MarkRead(ctx context.Context, sessionID string, readerRole model.SenderType) (int, error) {
	messages, err := r.ListMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, message := range messages {
		if message.IsRead || message.SenderType == readerRole {
			continue
		}
		err := r.db.Client.UpdateItem(
			ctx,
			model.MessagesTable,
			messageKey(message.SessionID, message.ID),
			"SET isRead = :read",
			database.Expr{
				Condition: "isRead = :unread",
				Values: map[string]types.AttributeValue{
					":read":   database.BoolAttr(true),
					":unread": database.BoolAttr(false),
				},
			},
			nil,
		)
		if err != nil {
			// Another reader got there first.
			if database.IsConditionFailed(err) {
				continue
			}
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (r *DynamoRepository) CountUnread(ctx context.Context, sessionID string, author model.SenderType) (int, error) {
	messages, err := r.ListMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return countUnread(messages, author), nil
}

func sortAndLimitSessions(sessions []model.ChatSessionItem, limit int) []model.ChatSessionItem {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastMessageAt.After(sessions[j].LastMessageAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

func sortMessages(messages []model.ChatMessageItem) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func countUnread(messages []model.ChatMessageItem, author model.SenderType) int {
	count := 0
	for _, message := range messages {
		if message.SenderType == author && !message.IsRead {
			count++
		}
	}
	return count
}
