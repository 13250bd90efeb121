package chat

import (
	"context"
	"errors"
	"time"

	"livechat-backend/internal/model"

	"gorm.io/gorm"
)

// GormRepository stores sessions and messages in Postgres. The schema comes from
// database.OpenPostgres.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &GormRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormRepository) CreateSession(ctx context.Context, session model.ChatSessionItem) error {
	return r.db.WithContext(ctx).Omit("Messages").Create(&session).Error
}

func (r *GormRepository) GetSession(ctx context.Context, sessionID string) (model.ChatSessionItem, error) {
	var session model.ChatSessionItem
	err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	return session, notFound(err)
}

func (r *GormRepository) GetSessionByToken(ctx context.Context, token string) (model.ChatSessionItem, error) {
	var session model.ChatSessionItem
	err := r.db.WithContext(ctx).Where("session_token = ?", token).First(&session).Error
	return session, notFound(err)
}

func (r *GormRepository) ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]model.ChatSessionItem, error) {
	query := r.db.WithContext(ctx).Model(&model.ChatSessionItem{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var sessions []model.ChatSessionItem
	if err := query.Order("last_message_at DESC").Order("id").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *GormRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, updatedAt time.Time) (model.ChatSessionItem, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ChatSessionItem{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{"status": status, "updated_at": updatedAt})
	if res.Error != nil {
		return model.ChatSessionItem{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.ChatSessionItem{}, ErrNotFound
	}
	return r.GetSession(ctx, sessionID)
}

func (r *GormRepository) IdentifyVisitor(ctx context.Context, sessionID, name, email string, updatedAt time.Time) (model.ChatSessionItem, error) {
	err := r.db.WithContext(ctx).
		Model(&model.ChatSessionItem{}).
		Where("id = ? AND visitor_email = ''", sessionID).
		Updates(map[string]interface{}{"visitor_name": name, "visitor_email": email, "updated_at": updatedAt}).Error
	if err != nil {
		return model.ChatSessionItem{}, err
	}
	return r.GetSession(ctx, sessionID)
}

func (r *GormRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Also covered by ON DELETE CASCADE.
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.ChatMessageItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", sessionID).Delete(&model.ChatSessionItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AppendMessage bumps the session row and inserts the message in one transaction. The
// guarded UPDATE locks the row, so a concurrent delete either runs first or waits.
func (r *GormRepository) AppendMessage(ctx context.Context, message model.ChatMessageItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ChatSessionItem{}).
			Where("id = ? AND last_message_at < ?", message.SessionID, message.CreatedAt).
			Updates(map[string]interface{}{"last_message_at": message.CreatedAt, "updated_at": message.CreatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.ChatSessionItem{}).Where("id = ?", message.SessionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStaleStamp
		}
		return tx.Create(&message).Error
	})
}

func (r *GormRepository) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessageItem, error) {
	var messages []model.ChatMessageItem
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *GormRepository) MarkRead(ctx context.Context, sessionID string, readerRole model.SenderType) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ChatMessageItem{}).
		Where("session_id = ? AND sender_type <> ? AND is_read = ?", sessionID, readerRole, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *GormRepository) CountUnread(ctx context.Context, sessionID string, author model.SenderType) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ChatMessageItem{}).
		Where("session_id = ? AND sender_type = ? AND is_read = ?", sessionID, author, false).
		Count(&count).Error
	return int(count), err
}
