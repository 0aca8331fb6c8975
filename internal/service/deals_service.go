package service

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/internal/repository"
	"review-talk-go/pkg/log"
	"time"
)

// ErrDealNotFound 表示商品不存在或不是特价商品。
var ErrDealNotFound = errors.New("special deal not found")

// DealDiscoverer 从特价页面发现商品。
type DealDiscoverer interface {
	Discover(ctx context.Context, max int) ([]model.Product, error)
}

// DealsCrawlRequest 是一次特价商品发现请求，零值字段使用配置中的默认值。
type DealsCrawlRequest struct {
	MaxProducts          int   `json:"max_products"`
	CrawlReviews         *bool `json:"crawl_reviews,omitempty"`
	MaxReviewsPerProduct int   `json:"max_reviews_per_product"`
}

// DealsCrawlResult 汇总一次特价商品发现。
type DealsCrawlResult struct {
	Success             bool   `json:"success"`
	TotalProducts       int    `json:"total_products"`
	ProductsWithReviews int    `json:"products_with_reviews"`
	TotalReviews        int    `json:"total_reviews"`
	Error               string `json:"error_message,omitempty"`
}

// ProcessResult 汇总一批未爬取特价商品的处理结果。
type ProcessResult struct {
	ProcessedCount int    `json:"processed_count"`
	FailedCount    int    `json:"failed_count"`
	TotalReviews   int    `json:"total_reviews"`
	Message        string `json:"message"`
}

// DealsPage 是特价商品列表的一页。
type DealsPage struct {
	Products []model.Product `json:"products"`
	Total    int64           `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// DealsStats 是特价商品的统计摘要。
type DealsStats struct {
	TotalProducts     int64   `json:"total_products"`
	CrawledProducts   int64   `json:"crawled_products"`
	UncrawledProducts int64   `json:"uncrawled_products"`
	CrawlRate         float64 `json:"crawl_rate"`
}

// DealsService 管理 “오늘의 특가” 商品的发现、评论补爬和过期清理。
type DealsService interface {
	DiscoverAndSave(ctx context.Context, req DealsCrawlRequest) (*DealsCrawlResult, error)
	ProcessUncrawled(ctx context.Context, batch int) (*ProcessResult, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	List(ctx context.Context, limit, offset int) (*DealsPage, error)
	Get(ctx context.Context, productID string) (*model.Product, error)
	Stats(ctx context.Context) (*DealsStats, error)
}

type dealsService struct {
	discoverer  DealDiscoverer
	crawl       CrawlService
	productRepo repository.ProductRepository
	cfg         config.DealsConfig
	now         func() time.Time
}

// NewDealsService 创建一个新的 DealsService 实例。
func NewDealsService(discoverer DealDiscoverer, crawl CrawlService, productRepo repository.ProductRepository, cfg config.DealsConfig) DealsService {
	if cfg.MaxProducts <= 0 {
		cfg.MaxProducts = 50
	}
	if cfg.ReviewsPerProduct <= 0 {
		cfg.ReviewsPerProduct = defaultMaxReviews
	}
	if cfg.UncrawledBatch <= 0 {
		cfg.UncrawledBatch = 10
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &dealsService{
		discoverer:  discoverer,
		crawl:       crawl,
		productRepo: productRepo,
		cfg:         cfg,
		now:         time.Now,
	}
}

// DiscoverAndSave 抓取特价页面、保存商品，并按需逐个爬取评论。
// 单个商品的评论爬取失败只记日志，不影响其他商品。
func (s *dealsService) DiscoverAndSave(ctx context.Context, req DealsCrawlRequest) (*DealsCrawlResult, error) {
	if req.MaxProducts <= 0 {
		req.MaxProducts = s.cfg.MaxProducts
	}
	if req.MaxReviewsPerProduct <= 0 {
		req.MaxReviewsPerProduct = s.cfg.ReviewsPerProduct
	}
	crawlReviews := req.CrawlReviews == nil || *req.CrawlReviews
	log.Infof("[DealsService] 开始发现特价商品, 最多 %d 个, 爬取评论: %t", req.MaxProducts, crawlReviews)

	// 1. 抓取特价页面
	products, err := s.discoverer.Discover(ctx, req.MaxProducts)
	if err != nil {
		log.Errorf("[DealsService] 步骤1: 抓取特价页面失败: %v", err)
		return &DealsCrawlResult{Error: err.Error()}, err
	}
	if len(products) == 0 {
		log.Warnf("[DealsService] 步骤1: 特价页面上没有商品")
		return &DealsCrawlResult{Error: "특가 상품을 찾을 수 없습니다."}, nil
	}

	// 2. 保存并打上特价标记
	saved, err := s.productRepo.SaveSpecial(ctx, products, s.now())
	if err != nil {
		log.Errorf("[DealsService] 步骤2: 保存特价商品失败: %v", err)
		return &DealsCrawlResult{TotalProducts: saved, Error: err.Error()}, err
	}
	log.Infof("[DealsService] 步骤2: 已保存 %d 个特价商品", saved)

	res := &DealsCrawlResult{Success: true, TotalProducts: saved}
	if !crawlReviews {
		return res, nil
	}

	// 3. 逐个爬取评论
	for i, p := range products {
		log.Infof("[DealsService] 步骤3: 商品 %d/%d: %s", i+1, len(products), p.Name)
		cr := s.crawl.CrawlProductReviews(ctx, CrawlRequest{ProductURL: p.URL, MaxReviews: req.MaxReviewsPerProduct})
		if cr.Success && cr.ReviewsFound > 0 {
			res.ProductsWithReviews++
			res.TotalReviews += cr.ReviewsFound
		} else {
			log.Warnf("[DealsService] 步骤3: 商品 %s 评论爬取失败: %s", p.ProductID, cr.Error)
		}
		if i < len(products)-1 {
			if err := pause(ctx, s.cfg.ProductPause); err != nil {
				return res, err
			}
		}
	}
	log.Infof("[DealsService] 完成, 有评论的商品: %d, 评论总数: %d", res.ProductsWithReviews, res.TotalReviews)
	return res, nil
}

// ProcessUncrawled 为尚未爬取评论的特价商品补爬评论。
// 失败的商品也标记为已爬取（评论数为 0），避免每次调度都重试同一个坏链接。
func (s *dealsService) ProcessUncrawled(ctx context.Context, batch int) (*ProcessResult, error) {
	if batch <= 0 {
		batch = s.cfg.UncrawledBatch
	}
	products, err := s.productRepo.FindUncrawledSpecial(ctx, batch)
	if err != nil {
		return nil, err
	}
	res := &ProcessResult{}
	if len(products) == 0 {
		res.Message = "처리할 미크롤링 상품이 없습니다."
		return res, nil
	}
	log.Infof("[DealsService] 开始补爬 %d 个特价商品", len(products))

	for i, p := range products {
		cr := s.crawl.CrawlProductReviews(ctx, CrawlRequest{ProductURL: p.URL, MaxReviews: s.cfg.ReviewsPerProduct})
		if cr.Success && cr.ReviewsFound > 0 {
			res.ProcessedCount++
			res.TotalReviews += cr.ReviewsFound
		} else {
			res.FailedCount++
			log.Warnf("[DealsService] 商品 %s 补爬失败: %s", p.ProductID, cr.Error)
			if err := s.productRepo.MarkCrawled(ctx, p.ProductID, 0, s.now()); err != nil {
				log.Errorf("[DealsService] 更新商品 %s 爬取状态失败: %v", p.ProductID, err)
			}
		}
		if i < len(products)-1 {
			if err := pause(ctx, s.cfg.ProductPause); err != nil {
				return res, err
			}
		}
	}
	res.Message = fmt.Sprintf("%d개 상품의 리뷰를 처리했습니다.", res.ProcessedCount)
	return res, nil
}

// Cleanup 删除超过 retention 没再出现在特价页面上的商品。
func (s *dealsService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = s.cfg.Retention
	}
	n, err := s.productRepo.DeleteSpecialSeenBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	log.Infof("[DealsService] 已清理 %d 个过期特价商品 (保留 %s)", n, retention)
	return n, nil
}

func (s *dealsService) List(ctx context.Context, limit, offset int) (*DealsPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	products, err := s.productRepo.ListSpecial(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	total, _, err := s.productRepo.CountSpecial(ctx)
	if err != nil {
		return nil, err
	}
	return &DealsPage{Products: products, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *dealsService) Get(ctx context.Context, productID string) (*model.Product, error) {
	p, err := s.productRepo.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsSpecial {
		return nil, ErrDealNotFound
	}
	return p, nil
}

func (s *dealsService) Stats(ctx context.Context) (*DealsStats, error) {
	total, crawled, err := s.productRepo.CountSpecial(ctx)
	if err != nil {
		return nil, err
	}
	stats := &DealsStats{TotalProducts: total, CrawledProducts: crawled, UncrawledProducts: total - crawled}
	if total > 0 {
		stats.CrawlRate = float64(crawled) / float64(total) * 100
	}
	return stats, nil
}

// pause 在两个商品之间等待 d，ctx 取消时提前返回。
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
