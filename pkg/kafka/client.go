// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/pkg/database"
	"review-talk-go/pkg/log"
	"review-talk-go/pkg/tasks"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一任务允许的最大失败次数，达到后提交 offset 不再重试。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.CrawlTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// Enabled 报告生产者是否已经初始化。
func Enabled() bool {
	return producer != nil
}

// ProduceCrawlTask 发送一个爬取任务到 Kafka，以商品 ID 作为消息 key 保证同一商品串行处理。
func ProduceCrawlTask(ctx context.Context, task tasks.CrawlTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// CloseProducer 关闭生产者并刷新缓冲区。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理爬取任务，ctx 取消后退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "review-talk-go-consumer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.CrawlTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理爬取任务: URL=%s, ProductID=%s", task.ProductURL, task.ProductID)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("处理爬取任务失败: key=%s, Error: %v", task.Key(), err)
			if !shouldGiveUp(ctx, task.Key()) {
				// 未达到阈值时不提交 offset，让 Kafka 重新投递
				continue
			}
			log.Errorf("爬取任务多次失败(>=%d)，提交 offset 终止重试: key=%s", maxAttempts, task.Key())
		} else {
			log.Infof("爬取任务处理成功: key=%s", task.Key())
			clearAttempts(ctx, task.Key())
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已停止")
}

func attemptsKey(key string) string {
	return fmt.Sprintf("kafka:attempts:%s", key)
}

// shouldGiveUp 使用 Redis 计数失败次数，Redis 异常时保守处理返回 false。
func shouldGiveUp(ctx context.Context, key string) bool {
	if database.RDB == nil {
		return true
	}
	attempts, err := database.RDB.Incr(ctx, attemptsKey(key)).Result()
	if err != nil {
		return false
	}
	_ = database.RDB.Expire(ctx, attemptsKey(key), 24*time.Hour).Err()
	return attempts >= maxAttempts
}

func clearAttempts(ctx context.Context, key string) {
	if database.RDB == nil {
		return
	}
	_ = database.RDB.Del(ctx, attemptsKey(key)).Err()
}
