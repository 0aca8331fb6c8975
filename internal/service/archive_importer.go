package service

import (
	"context"
	"errors"
	"review-talk-go/internal/index"
	"review-talk-go/internal/model"
	"review-talk-go/internal/repository"
	"review-talk-go/pkg/log"
	"time"
)

// ArchivePayload 是一次爬取的原始结果，也是 MinIO 归档和离线导入的文件格式。
type ArchivePayload struct {
	Product   model.ProductSummary `json:"product"`
	URL       string               `json:"url"`
	Reviews   []model.ReviewRecord `json:"reviews"`
	CrawledAt time.Time            `json:"crawled_at"`
}

// ArchiveImporter 把爬取结果写入向量索引并更新商品目录。
type ArchiveImporter struct {
	index       index.VectorIndex
	productRepo repository.ProductRepository
}

// NewArchiveImporter 创建导入器，productRepo 为 nil 时只写索引。
func NewArchiveImporter(vectorIndex index.VectorIndex, productRepo repository.ProductRepository) *ArchiveImporter {
	return &ArchiveImporter{index: vectorIndex, productRepo: productRepo}
}

// Import 返回写入索引的评论数。商品目录更新失败只记录日志。
func (im *ArchiveImporter) Import(ctx context.Context, payload ArchivePayload) (int, error) {
	productID := payload.Product.ProductID
	if productID == "" {
		return 0, errors.New("archive payload has no product id")
	}
	stored, err := im.index.Ingest(ctx, payload.Reviews, model.ProductScope(productID))
	if err != nil {
		return 0, err
	}
	if im.productRepo == nil {
		return stored, nil
	}

	crawledAt := payload.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = time.Now()
	}
	product := &model.Product{
		ProductID: productID,
		Name:      payload.Product.Name,
		URL:       payload.URL,
		ImageURL:  payload.Product.ImageURL,
		Price:     payload.Product.Price,
		Brand:     payload.Product.Brand,
	}
	if err := im.productRepo.Upsert(ctx, product); err != nil {
		log.Warnf("[ArchiveImporter] 保存商品信息失败, product: %s, Error: %v", productID, err)
		return stored, nil
	}
	if err := im.productRepo.MarkCrawled(ctx, productID, stored, crawledAt); err != nil {
		log.Warnf("[ArchiveImporter] 更新爬取状态失败, product: %s, Error: %v", productID, err)
	}
	return stored, nil
}
