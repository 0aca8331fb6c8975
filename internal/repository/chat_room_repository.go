// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/model"

	"gorm.io/gorm"
)

// ErrRoomNotFound 表示聊天室不存在。
var ErrRoomNotFound = errors.New("chat room not found")

// ChatRoomRepository 定义了 chat_rooms 表的数据操作接口。
type ChatRoomRepository interface {
	GetOrCreate(ctx context.Context, userID, productID string) (*model.ChatRoom, error)
	FindByID(ctx context.Context, id uint) (*model.ChatRoom, error)
	FindByUserAndProduct(ctx context.Context, userID, productID string) (*model.ChatRoom, error)
	ListByUser(ctx context.Context, userID string) ([]model.ChatRoom, error)
}

type chatRoomRepository struct {
	db *gorm.DB
}

// NewChatRoomRepository 创建一个新的 ChatRoomRepository 实例。
func NewChatRoomRepository(db *gorm.DB) ChatRoomRepository {
	return &chatRoomRepository{db: db}
}

// GetOrCreate 返回 (user, product) 对应的聊天室，不存在时创建。
// 并发创建由唯一索引兜底：插入冲突时重新查询并返回已有记录。
func (r *chatRoomRepository) GetOrCreate(ctx context.Context, userID, productID string) (*model.ChatRoom, error) {
	room, err := r.FindByUserAndProduct(ctx, userID, productID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, err
	}

	room = &model.ChatRoom{UserID: userID, ProductID: productID}
	createErr := r.db.WithContext(ctx).Create(room).Error
	if createErr == nil {
		return room, nil
	}

	existing, err := r.FindByUserAndProduct(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat room: %w", createErr)
	}
	return existing, nil
}

// FindByID 根据 ID 查找聊天室。
func (r *chatRoomRepository) FindByID(ctx context.Context, id uint) (*model.ChatRoom, error) {
	var room model.ChatRoom
	err := r.db.WithContext(ctx).First(&room, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByUserAndProduct 根据用户和商品查找聊天室。
func (r *chatRoomRepository) FindByUserAndProduct(ctx context.Context, userID, productID string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListByUser 返回用户的全部聊天室，最新的在前。
func (r *chatRoomRepository) ListByUser(ctx context.Context, userID string) ([]model.ChatRoom, error) {
	var rooms []model.ChatRoom
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&rooms).Error
	return rooms, err
}
