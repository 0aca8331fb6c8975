package service

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/model"
	"review-talk-go/internal/repository"
	"review-talk-go/internal/testutil"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterPersistsInQueueOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	rooms := repository.NewChatRoomRepository(db)
	convs := repository.NewConversationRepository(db)
	room, err := rooms.GetOrCreate(ctx, "u1", "42")
	require.NoError(t, err)

	w := NewConversationWriter(convs, 4)
	defer w.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Enqueue(
			&model.ConversationMessage{ChatRoomID: room.ID, Message: fmt.Sprintf("q%d", i), ChatUserID: "u1", CreatedAt: now},
			&model.ConversationMessage{ChatRoomID: room.ID, Message: fmt.Sprintf("a%d", i), ChatUserID: "ai", CreatedAt: now},
		))
	}
	require.NoError(t, w.Flush(ctx))

	stored, err := convs.Recent(ctx, room.ID, 100)
	require.NoError(t, err)
	require.Len(t, stored, 20)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("q%d", i), stored[2*i].Message)
		assert.Equal(t, fmt.Sprintf("a%d", i), stored[2*i+1].Message)
	}
}

type failingConversationRepo struct {
	repository.ConversationRepository
	mu    sync.Mutex
	calls int
}

func (r *failingConversationRepo) CreateBatch(context.Context, []*model.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return errors.New("database is locked")
}

func TestWriterKeepsGoingAfterFailure(t *testing.T) {
	repo := &failingConversationRepo{}
	w := NewConversationWriter(repo, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Enqueue(&model.ConversationMessage{ChatRoomID: 1, Message: "m"}))
	}
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 3, repo.calls)
	w.Close()
}

func TestWriterClose(t *testing.T) {
	w := NewConversationWriter(&failingConversationRepo{}, 1)
	assert.NoError(t, w.Enqueue())
	w.Close()
	w.Close()
	assert.ErrorIs(t, w.Enqueue(&model.ConversationMessage{}), ErrWriterClosed)
}

type blockingConversationRepo struct {
	repository.ConversationRepository
	release chan struct{}
}

func (r *blockingConversationRepo) CreateBatch(context.Context, []*model.ConversationMessage) error {
	<-r.release
	return nil
}

func TestWriterFlushHonoursContext(t *testing.T) {
	repo := &blockingConversationRepo{release: make(chan struct{})}
	w := NewConversationWriter(repo, 1)
	require.NoError(t, w.Enqueue(&model.ConversationMessage{ChatRoomID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)

	close(repo.release)
	require.NoError(t, w.Flush(context.Background()))
	w.Close()
}

func TestWriterFlushWhileEnqueueing(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	convs := repository.NewConversationRepository(db)
	w := NewConversationWriter(convs, 2)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				assert.NoError(t, w.Enqueue(&model.ConversationMessage{ChatRoomID: uint(g + 1), Message: fmt.Sprintf("m%d", i), ChatUserID: "u"}))
				assert.NoError(t, w.Flush(ctx))
			}
		}(g)
	}
	wg.Wait()

	// 每次 Flush 返回时，调用方自己入队的消息都已落库
	for g := 0; g < 4; g++ {
		n, err := convs.CountByRoom(ctx, uint(g+1))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	}

	w.Close()
	assert.NoError(t, w.Flush(ctx))
}
