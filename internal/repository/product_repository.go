package repository

import (
	"context"
	"errors"
	"review-talk-go/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository 定义了 products 表的数据操作接口。
type ProductRepository interface {
	Upsert(ctx context.Context, product *model.Product) error
	MarkCrawled(ctx context.Context, productID string, reviewCount int, at time.Time) error
	FindByProductID(ctx context.Context, productID string) (*model.Product, error)
	FindStale(ctx context.Context, before time.Time, limit int) ([]model.Product, error)
	Count(ctx context.Context) (int64, error)

	SaveSpecial(ctx context.Context, products []model.Product, seenAt time.Time) (int, error)
	ListSpecial(ctx context.Context, limit, offset int) ([]model.Product, error)
	CountSpecial(ctx context.Context) (total int64, crawled int64, err error)
	FindUncrawledSpecial(ctx context.Context, limit int) ([]model.Product, error)
	DeleteSpecialSeenBefore(ctx context.Context, before time.Time) (int64, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建一个新的 ProductRepository 实例。
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Upsert 以 product_id 为键写入商品信息，空字段不会覆盖已有值。
func (r *productRepository) Upsert(ctx context.Context, product *model.Product) error {
	existing, err := r.FindByProductID(ctx, product.ProductID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(product).Error
	}

	updates := map[string]interface{}{}
	for col, v := range map[string]string{
		"name":           product.Name,
		"url":            product.URL,
		"image_url":      product.ImageURL,
		"price":          product.Price,
		"brand":          product.Brand,
		"original_price": product.OriginalPrice,
		"discount_rate":  product.DiscountRate,
		"category":       product.Category,
	} {
		if v != "" {
			updates[col] = v
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", existing.ID).Updates(updates).Error
}

// MarkCrawled 记录一次成功的爬取。
func (r *productRepository) MarkCrawled(ctx context.Context, productID string, reviewCount int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Product{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"is_crawled":      true,
			"review_count":    reviewCount,
			"last_crawled_at": at,
		}).Error
}

// FindByProductID 查找商品，不存在时返回 nil, nil。
func (r *productRepository) FindByProductID(ctx context.Context, productID string) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindStale 返回在 before 之前爬取过的商品，最久未更新的在前。
func (r *productRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("is_crawled = ? AND last_crawled_at < ? AND url <> ''", true, before).
		Order("last_crawled_at ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// Count 返回商品总数。
func (r *productRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&n).Error
	return n, err
}

// SaveSpecial 写入特价页面上发现的商品并打上特价标记，已有的爬取状态保持不变。
func (r *productRepository) SaveSpecial(ctx context.Context, products []model.Product, seenAt time.Time) (int, error) {
	saved := 0
	for i := range products {
		p := products[i]
		p.IsSpecial = true
		p.DealSeenAt = &seenAt
		if err := r.Upsert(ctx, &p); err != nil {
			return saved, err
		}
		err := r.db.WithContext(ctx).Model(&model.Product{}).
			Where("product_id = ?", p.ProductID).
			Updates(map[string]interface{}{"is_special": true, "deal_seen_at": seenAt}).Error
		if err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// ListSpecial 分页返回特价商品，最近出现的在前。
func (r *productRepository) ListSpecial(ctx context.Context, limit, offset int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("is_special = ?", true).
		Order("deal_seen_at DESC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&products).Error
	return products, err
}

// CountSpecial 返回特价商品总数和其中已爬取评论的数量。
func (r *productRepository) CountSpecial(ctx context.Context) (int64, int64, error) {
	var total, crawled int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Where("is_special = ?", true).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where("is_special = ? AND is_crawled = ?", true, true).Count(&crawled).Error
	return total, crawled, err
}

// FindUncrawledSpecial 返回还没有爬取评论的特价商品，先发现的在前。
func (r *productRepository) FindUncrawledSpecial(ctx context.Context, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("is_special = ? AND is_crawled = ? AND url <> ''", true, false).
		Order("id ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// DeleteSpecialSeenBefore 删除在 before 之后再没出现在特价页面上的特价商品。
func (r *productRepository) DeleteSpecialSeenBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_special = ? AND deal_seen_at < ?", true, before).
		Delete(&model.Product{})
	return res.RowsAffected, res.Error
}
