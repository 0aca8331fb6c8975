// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/pkg/log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ReviewArchive 将每次爬取的原始结果以 JSON 形式归档到 MinIO，便于离线重建索引。
type ReviewArchive struct {
	client *minio.Client
	bucket string
}

// NewReviewArchive 创建一个归档器。
func NewReviewArchive(client *minio.Client, bucket string) *ReviewArchive {
	return &ReviewArchive{client: client, bucket: bucket}
}

// ObjectName 返回商品某次爬取的对象路径。
func ObjectName(productID string, at time.Time) string {
	return fmt.Sprintf("reviews/%s/%s.json", productID, at.UTC().Format("20060102T150405Z"))
}

// Archive 序列化 payload 并上传，返回对象路径。
func (a *ReviewArchive) Archive(ctx context.Context, productID string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化归档数据失败: %w", err)
	}
	objectName := ObjectName(productID, time.Now())
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("上传归档对象失败: %w", err)
	}
	return objectName, nil
}
