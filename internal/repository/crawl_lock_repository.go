package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CrawlLockRepository 防止同一商品被并发爬取。
type CrawlLockRepository interface {
	TryAcquire(ctx context.Context, productID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, productID string) error
}

type redisCrawlLockRepository struct {
	redisClient *redis.Client
}

// NewCrawlLockRepository 创建基于 Redis SETNX 的爬取锁。
func NewCrawlLockRepository(redisClient *redis.Client) CrawlLockRepository {
	return &redisCrawlLockRepository{redisClient: redisClient}
}

func crawlLockKey(productID string) string {
	return fmt.Sprintf("crawl:lock:%s", productID)
}

// TryAcquire 尝试获取锁，ttl 到期后自动释放。
func (r *redisCrawlLockRepository) TryAcquire(ctx context.Context, productID string, ttl time.Duration) (bool, error) {
	ok, err := r.redisClient.SetNX(ctx, crawlLockKey(productID), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire crawl lock: %w", err)
	}
	return ok, nil
}

// Release 释放锁。
func (r *redisCrawlLockRepository) Release(ctx context.Context, productID string) error {
	if err := r.redisClient.Del(ctx, crawlLockKey(productID)).Err(); err != nil {
		return fmt.Errorf("failed to release crawl lock: %w", err)
	}
	return nil
}
