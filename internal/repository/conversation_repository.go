package repository

import (
	"context"
	"review-talk-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了对话记录的持久化操作接口。
type ConversationRepository interface {
	CreateBatch(ctx context.Context, messages []*model.ConversationMessage) error
	Recent(ctx context.Context, roomID uint, limit int) ([]model.ConversationMessage, error)
	RecentByUserAndProduct(ctx context.Context, userID, productID string, limit int) ([]model.ConversationMessage, error)
	CountByRoom(ctx context.Context, roomID uint) (int64, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// CreateBatch 在一个事务中按顺序写入消息。
func (r *conversationRepository) CreateBatch(ctx context.Context, messages []*model.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range messages {
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent 返回聊天室最近的 limit 条消息，按时间从旧到新。
func (r *conversationRepository) Recent(ctx context.Context, roomID uint, limit int) ([]model.ConversationMessage, error) {
	var messages []model.ConversationMessage
	err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

// RecentByUserAndProduct 通过聊天室关联查询用户在某商品下的最近消息，按时间从旧到新。
func (r *conversationRepository) RecentByUserAndProduct(ctx context.Context, userID, productID string, limit int) ([]model.ConversationMessage, error) {
	var messages []model.ConversationMessage
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_rooms ON chat_rooms.id = conversations.chat_room_id").
		Where("chat_rooms.user_id = ? AND chat_rooms.product_id = ?", userID, productID).
		Order("conversations.created_at DESC, conversations.id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	reverse(messages)
	return messages, nil
}

// CountByRoom 返回聊天室的消息总数。
func (r *conversationRepository) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ConversationMessage{}).Where("chat_room_id = ?", roomID).Count(&n).Error
	return n, err
}

func reverse(messages []model.ConversationMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
