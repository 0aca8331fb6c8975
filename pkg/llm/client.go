// Package llm provides chat-completion backends for Large Language Models.
package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("llm returned empty completion")

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，nil 字段使用后端的默认值。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Backend defines the interface for an LLM chat-completion provider.
type Backend interface {
	// Complete 以 role-based 消息调用聊天接口，返回完整的回答文本。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// Name 返回 provider 名称，用于日志。
	Name() string
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
