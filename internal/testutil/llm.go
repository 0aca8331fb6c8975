package testutil

import (
	"context"
	"review-talk-go/pkg/llm"
	"sync"
	"time"
)

// StubBackend 是可编排的 llm.Backend，记录每次调用的消息和参数。
type StubBackend struct {
	Reply string
	Err   error
	Delay time.Duration

	mu     sync.Mutex
	Calls  [][]llm.Message
	Params []*llm.GenerationParams
}

func (b *StubBackend) Name() string { return "stub" }

func (b *StubBackend) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, messages)
	b.Params = append(b.Params, gen)
	b.mu.Unlock()

	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if b.Err != nil {
		return "", b.Err
	}
	return b.Reply, nil
}

// CallCount 返回调用次数。
func (b *StubBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// LastUserPrompt 返回最后一次调用中 user 角色的内容。
func (b *StubBackend) LastUserPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Calls) == 0 {
		return ""
	}
	for _, m := range b.Calls[len(b.Calls)-1] {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}
