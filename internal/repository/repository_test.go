package repository

import (
	"context"
	"review-talk-go/internal/model"
	"review-talk-go/internal/testutil"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRoomGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRoomRepository(testutil.DB(t))

	first, err := repo.GetOrCreate(ctx, "user-1", "42")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, "user-1", "42")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := repo.GetOrCreate(ctx, "user-1", "43")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestChatRoomGetOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewChatRoomRepository(db)

	const workers = 16
	ids := make([]uint, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := repo.GetOrCreate(ctx, "racer", "42")
			if assert.NoError(t, err) {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var n int64
	require.NoError(t, db.Model(&model.ChatRoom{}).Where("user_id = ? AND product_id = ?", "racer", "42").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestChatRoomFindByIDNotFound(t *testing.T) {
	repo := NewChatRoomRepository(testutil.DB(t))
	_, err := repo.FindByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestConversationRecentOldestFirst(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	rooms := NewChatRoomRepository(db)
	convs := NewConversationRepository(db)

	room, err := rooms.GetOrCreate(ctx, "u", "42")
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []*model.ConversationMessage
	for i := 0; i < 5; i++ {
		batch = append(batch, &model.ConversationMessage{
			ChatRoomID: room.ID,
			Message:    string(rune('a' + i)),
			ChatUserID: "u",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	require.NoError(t, convs.CreateBatch(ctx, batch))

	recent, err := convs.Recent(ctx, room.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].Message)
	assert.Equal(t, "e", recent[2].Message)

	byPair, err := convs.RecentByUserAndProduct(ctx, "u", "42", 10)
	require.NoError(t, err)
	assert.Len(t, byPair, 5)
	assert.Equal(t, "a", byPair[0].Message)

	n, err := convs.CountByRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestConversationSameTimestampKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	convs := NewConversationRepository(db)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, convs.CreateBatch(ctx, []*model.ConversationMessage{
		{ChatRoomID: 1, Message: "question", ChatUserID: "u", CreatedAt: now},
		{ChatRoomID: 1, Message: "answer", ChatUserID: "ai", CreatedAt: now},
	}))

	recent, err := convs.Recent(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "question", recent[0].Message)
	assert.Equal(t, "answer", recent[1].Message)
}

func TestProductUpsertAndStale(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(testutil.DB(t))

	require.NoError(t, repo.Upsert(ctx, &model.Product{ProductID: "42", Name: "Phone", URL: "https://prod.danawa.com/info/?pcode=42"}))
	require.NoError(t, repo.Upsert(ctx, &model.Product{ProductID: "42", Price: "1,000원"}))

	p, err := repo.FindByProductID(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Phone", p.Name)
	assert.Equal(t, "1,000원", p.Price)
	assert.False(t, p.IsCrawled)

	crawledAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkCrawled(ctx, "42", 12, crawledAt))

	stale, err := repo.FindStale(ctx, crawledAt.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, 12, stale[0].ReviewCount)

	fresh, err := repo.FindStale(ctx, crawledAt.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	missing, err := repo.FindByProductID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProductSpecialLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(testutil.DB(t))

	require.NoError(t, repo.Upsert(ctx, &model.Product{ProductID: "1", Name: "Old", URL: "https://prod.danawa.com/info/?pcode=1"}))
	require.NoError(t, repo.MarkCrawled(ctx, "1", 7, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	firstSeen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n, err := repo.SaveSpecial(ctx, []model.Product{
		{ProductID: "1", Name: "Old deal", URL: "https://prod.danawa.com/info/?pcode=1", DiscountRate: "10%"},
		{ProductID: "2", Name: "New deal", URL: "https://prod.danawa.com/info/?pcode=2", Category: "특가상품"},
	}, firstSeen)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := repo.FindByProductID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsSpecial)
	assert.True(t, p.IsCrawled)
	assert.Equal(t, 7, p.ReviewCount)
	assert.Equal(t, "Old deal", p.Name)
	assert.Equal(t, "10%", p.DiscountRate)

	total, crawled, err := repo.CountSpecial(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), crawled)

	uncrawled, err := repo.FindUncrawledSpecial(ctx, 10)
	require.NoError(t, err)
	require.Len(t, uncrawled, 1)
	assert.Equal(t, "2", uncrawled[0].ProductID)

	_, err = repo.SaveSpecial(ctx, []model.Product{{ProductID: "2", Name: "New deal"}}, firstSeen.Add(48*time.Hour))
	require.NoError(t, err)

	listed, err := repo.ListSpecial(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "2", listed[0].ProductID)

	deleted, err := repo.DeleteSpecialSeenBefore(ctx, firstSeen.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := repo.FindByProductID(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	total, _, err = repo.CountSpecial(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestProductUpsertKeepsSpecialFlag(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(testutil.DB(t))

	_, err := repo.SaveSpecial(ctx, []model.Product{{ProductID: "9", Name: "Deal"}}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, &model.Product{ProductID: "9", Price: "5,000원"}))

	p, err := repo.FindByProductID(ctx, "9")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsSpecial)
	assert.Equal(t, "5,000원", p.Price)
}
