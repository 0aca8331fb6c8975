// Package cache 提供按聊天室划分的最近对话缓存。
package cache

import (
	"review-talk-go/internal/model"
	"sync"
)

// DefaultSize 是每个聊天室缓存的最大消息数。
const DefaultSize = 30

// ConversationCache 是每个聊天室最多 N 条消息的 FIFO 缓存。
// 缓存只是持久化存储的镜像，丢失后可以从存储重建。
type ConversationCache struct {
	mu      sync.RWMutex
	rooms   map[uint]*roomEntry
	maxSize int
}

type roomEntry struct {
	mu       sync.Mutex
	messages []model.ConversationMessage
}

// NewConversationCache 创建缓存，maxSize <= 0 时使用 DefaultSize。
func NewConversationCache(maxSize int) *ConversationCache {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	return &ConversationCache{
		rooms:   make(map[uint]*roomEntry),
		maxSize: maxSize,
	}
}

// MaxSize 返回每个聊天室的容量。
func (c *ConversationCache) MaxSize() int {
	return c.maxSize
}

func (c *ConversationCache) entry(roomID uint, create bool) *roomEntry {
	c.mu.RLock()
	e, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if ok || !create {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.rooms[roomID]; ok {
		return e
	}
	e = &roomEntry{}
	c.rooms[roomID] = e
	return e
}

// Get 返回聊天室缓存消息的副本，按时间从旧到新；未缓存时 ok 为 false。
func (c *ConversationCache) Get(roomID uint) ([]model.ConversationMessage, bool) {
	e := c.entry(roomID, false)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ConversationMessage, len(e.messages))
	copy(out, e.messages)
	return out, true
}

// Set 用给定消息的最后 N 条替换缓存内容。
func (c *ConversationCache) Set(roomID uint, messages []model.ConversationMessage) {
	if len(messages) > c.maxSize {
		messages = messages[len(messages)-c.maxSize:]
	}
	e := c.entry(roomID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(make([]model.ConversationMessage, 0, c.maxSize), messages...)
}

// Append 按顺序追加消息，超过容量时淘汰最旧的消息。
func (c *ConversationCache) Append(roomID uint, messages ...model.ConversationMessage) {
	c.entry(roomID, true).push(c.maxSize, messages)
}

// AppendIfCached 只在聊天室已缓存时追加，返回是否追加。
// 未缓存的聊天室不能只凭新消息建立条目，否则会遮住存储中更早的历史。
func (c *ConversationCache) AppendIfCached(roomID uint, messages ...model.ConversationMessage) bool {
	e := c.entry(roomID, false)
	if e == nil {
		return false
	}
	e.push(c.maxSize, messages)
	return true
}

func (e *roomEntry) push(maxSize int, messages []model.ConversationMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range messages {
		if len(e.messages) >= maxSize {
			copy(e.messages, e.messages[1:])
			e.messages = e.messages[:len(e.messages)-1]
		}
		e.messages = append(e.messages, m)
	}
}

// Len 返回聊天室当前缓存的消息数。
func (c *ConversationCache) Len(roomID uint) int {
	e := c.entry(roomID, false)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// Invalidate 丢弃聊天室的缓存，下次读取会回源到存储。
func (c *ConversationCache) Invalidate(roomID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}
