package model

import (
	"strconv"
	"strings"
	"time"
)

// historyTimeLayout 是历史记录对外输出的时间格式。
const historyTimeLayout = "2006-01-02 15:04:05"

// ChatRoom 将一个用户和一个商品绑定为一次对话，(user_id, product_id) 唯一。
type ChatRoom struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_chat_room_user_product" json:"user_id"`
	ProductID string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_chat_room_user_product" json:"product_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// ConversationMessage 代表对话中的一条消息，ChatUserID 区分用户和 AI。
type ConversationMessage struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ChatRoomID       uint      `gorm:"not null;index:idx_conversation_room_created,priority:1" json:"chat_room_id"`
	Message          string    `gorm:"type:text;not null" json:"message"`
	ChatUserID       string    `gorm:"type:varchar(64);not null" json:"chat_user_id"`
	RelatedReviewIDs string    `gorm:"type:text" json:"related_review_ids,omitempty"`
	CreatedAt        time.Time `gorm:"index:idx_conversation_room_created,priority:2" json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversations"
}

// ReviewIDs 返回拆分后的关联评论 ID。
func (m ConversationMessage) ReviewIDs() []string {
	if m.RelatedReviewIDs == "" {
		return nil
	}
	return strings.Split(m.RelatedReviewIDs, ",")
}

// JoinReviewIDs 把评论 ID 以逗号拼接成持久化格式。
func JoinReviewIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// HistoryItem 是对话历史接口返回的单条记录。
type HistoryItem struct {
	ID               uint      `json:"id"`
	ChatRoomID       uint      `json:"chat_room_id"`
	Message          string    `json:"message"`
	ChatUserID       string    `json:"chat_user_id"`
	RelatedReviewIDs []string  `json:"related_review_ids"`
	CreatedAt        LocalTime `json:"created_at"`
}

// ToHistoryItem 转换为对外输出的历史记录。
func (m ConversationMessage) ToHistoryItem() HistoryItem {
	ids := m.ReviewIDs()
	if ids == nil {
		ids = []string{}
	}
	return HistoryItem{
		ID:               m.ID,
		ChatRoomID:       m.ChatRoomID,
		Message:          m.Message,
		ChatUserID:       m.ChatUserID,
		RelatedReviewIDs: ids,
		CreatedAt:        LocalTime(m.CreatedAt),
	}
}

// LocalTime 在 JSON 中输出为本地时区的 "YYYY-MM-DD HH:MM:SS" 字符串。
type LocalTime time.Time

func (t LocalTime) String() string {
	return time.Time(t).Local().Format(historyTimeLayout)
}

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := time.ParseInLocation(historyTimeLayout, s, time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
