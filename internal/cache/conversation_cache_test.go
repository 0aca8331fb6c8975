package cache

import (
	"fmt"
	"review-talk-go/internal/model"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(room uint, text string) model.ConversationMessage {
	return model.ConversationMessage{ChatRoomID: room, Message: text, ChatUserID: "u1"}
}

func texts(ms []model.ConversationMessage) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Message
	}
	return out
}

func TestGetMissingRoom(t *testing.T) {
	c := NewConversationCache(3)
	got, ok := c.Get(1)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestAppendEvictsOldest(t *testing.T) {
	const n = 30
	c := NewConversationCache(n)
	for i := 0; i < n; i++ {
		c.Append(7, msg(7, fmt.Sprintf("m%d", i)))
	}
	before, ok := c.Get(7)
	require.True(t, ok)
	require.Len(t, before, n)

	c.Append(7, msg(7, "overflow"))
	after, _ := c.Get(7)
	require.Len(t, after, n)
	assert.Equal(t, before[1].Message, after[0].Message)
	assert.Equal(t, "overflow", after[n-1].Message)
}

func TestSetKeepsLastN(t *testing.T) {
	c := NewConversationCache(3)
	c.Set(1, []model.ConversationMessage{msg(1, "a"), msg(1, "b"), msg(1, "c"), msg(1, "d"), msg(1, "e")})
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, []string{"c", "d", "e"}, texts(got))
}

func TestSetEmptyMarksRoomCached(t *testing.T) {
	c := NewConversationCache(3)
	c.Set(1, nil)
	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestGetReturnsCopy(t *testing.T) {
	c := NewConversationCache(3)
	c.Append(1, msg(1, "a"))
	got, _ := c.Get(1)
	got[0].Message = "mutated"
	again, _ := c.Get(1)
	assert.Equal(t, "a", again[0].Message)
}

func TestInvalidate(t *testing.T) {
	c := NewConversationCache(3)
	c.Append(1, msg(1, "a"))
	c.Invalidate(1)
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(1))
}

func TestDefaultSize(t *testing.T) {
	assert.Equal(t, DefaultSize, NewConversationCache(0).MaxSize())
}

func TestConcurrentAppendsNeverExceedMax(t *testing.T) {
	const n = 10
	c := NewConversationCache(n)
	var wg sync.WaitGroup
	for room := uint(1); room <= 4; room++ {
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(room uint, w int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					c.Append(room, msg(room, fmt.Sprintf("%d-%d-u", w, i)), msg(room, fmt.Sprintf("%d-%d-a", w, i)))
					assert.LessOrEqual(t, c.Len(room), n)
				}
			}(room, w)
		}
	}
	wg.Wait()

	for room := uint(1); room <= 4; room++ {
		got, ok := c.Get(room)
		require.True(t, ok)
		assert.Len(t, got, n)
		// 成对追加的消息不会被其他请求插入
		for i := 0; i+1 < len(got); i++ {
			if got[i].Message[len(got[i].Message)-1] == 'u' {
				assert.Equal(t, got[i].Message[:len(got[i].Message)-1]+"a", got[i+1].Message)
			}
		}
		for _, m := range got {
			assert.Equal(t, room, m.ChatRoomID)
		}
	}
}

func TestAppendIfCachedSkipsUnknownRoom(t *testing.T) {
	c := NewConversationCache(3)
	assert.False(t, c.AppendIfCached(1, msg(1, "a")))
	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, []model.ConversationMessage{msg(1, "old")})
	assert.True(t, c.AppendIfCached(1, msg(1, "a"), msg(1, "b"), msg(1, "c")))
	got, _ := c.Get(1)
	assert.Equal(t, []string{"a", "b", "c"}, texts(got))
}
