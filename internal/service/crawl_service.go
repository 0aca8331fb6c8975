package service

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/internal/crawler"
	"review-talk-go/internal/index"
	"review-talk-go/internal/repository"
	"review-talk-go/pkg/log"
	"review-talk-go/pkg/tasks"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxReviews   = 100
	defaultMaxLimit     = 1000
	defaultCrawlTimeout = 600 * time.Second
	// 锁比外层超时多留一些时间，保证爬取结束前锁不会过期
	lockGrace = time.Minute
)

// ErrCrawlBusy 表示同一商品的爬取正在进行。
var ErrCrawlBusy = errors.New("crawl already in progress for this product")

// ReviewCrawler 抓取商品页面的评论。
type ReviewCrawler interface {
	Crawl(ctx context.Context, targetURL, productID string, maxReviews int) (*crawler.Output, error)
}

// Archiver 保存原始爬取结果，返回对象路径。
type Archiver interface {
	Archive(ctx context.Context, productID string, payload interface{}) (string, error)
}

// TaskProducer 把爬取任务发送到异步队列。
type TaskProducer func(ctx context.Context, task tasks.CrawlTask) error

// CrawlRequest 是一次爬取请求。
type CrawlRequest struct {
	ProductURL string `json:"product_url" binding:"required"`
	MaxReviews int    `json:"max_reviews"`
	UserID     string `json:"user_id,omitempty"`
}

// CrawlResult 是一次爬取的结果。
type CrawlResult struct {
	Success      bool   `json:"success"`
	ProductID    string `json:"product_id,omitempty"`
	ProductName  string `json:"product_name,omitempty"`
	ProductImage string `json:"product_image,omitempty"`
	ProductPrice string `json:"product_price,omitempty"`
	ProductBrand string `json:"product_brand,omitempty"`
	ReviewsFound int    `json:"reviews_found"`
	Message      string `json:"message"`
	Error        string `json:"error_message,omitempty"`
}

// StatsResult 汇总索引和商品目录的规模。
type StatsResult struct {
	IndexName     string `json:"index_name"`
	TotalReviews  int64  `json:"total_reviews"`
	TotalProducts int64  `json:"total_products"`
}

// CrawlService 定义了评论爬取与入库的接口。
type CrawlService interface {
	CrawlProductReviews(ctx context.Context, req CrawlRequest) *CrawlResult
	EnqueueCrawl(ctx context.Context, req CrawlRequest) (*tasks.CrawlTask, error)
	Stats(ctx context.Context) (*StatsResult, error)
}

type crawlService struct {
	crawler     ReviewCrawler
	index       index.VectorIndex
	productRepo repository.ProductRepository
	importer    *ArchiveImporter
	lockRepo    repository.CrawlLockRepository
	archiver    Archiver
	produce     TaskProducer
	limiter     *rate.Limiter
	cfg         config.CrawlerConfig
}

// NewCrawlService 创建一个新的 CrawlService 实例。lockRepo、archiver 和 produce 可以为 nil。
func NewCrawlService(
	reviewCrawler ReviewCrawler,
	vectorIndex index.VectorIndex,
	productRepo repository.ProductRepository,
	lockRepo repository.CrawlLockRepository,
	archiver Archiver,
	produce TaskProducer,
	cfg config.CrawlerConfig,
) CrawlService {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.MaxReviewsLimit <= 0 {
		cfg.MaxReviewsLimit = defaultMaxLimit
	}
	if cfg.CrawlTimeout <= 0 {
		cfg.CrawlTimeout = defaultCrawlTimeout
	}
	return &crawlService{
		crawler:     reviewCrawler,
		index:       vectorIndex,
		productRepo: productRepo,
		importer:    NewArchiveImporter(vectorIndex, productRepo),
		lockRepo:    lockRepo,
		archiver:    archiver,
		produce:     produce,
		limiter:     rate.NewLimiter(limit, 1),
		cfg:         cfg,
	}
}

func (s *crawlService) validate(req *CrawlRequest) (string, error) {
	if req.MaxReviews == 0 {
		req.MaxReviews = defaultMaxReviews
	}
	if req.MaxReviews < 1 || req.MaxReviews > s.cfg.MaxReviewsLimit {
		return "", fmt.Errorf("max_reviews 必须在 1 到 %d 之间", s.cfg.MaxReviewsLimit)
	}
	return crawler.ParseProductURL(req.ProductURL, s.cfg.ProductHosts)
}

// CrawlProductReviews 同步爬取商品评论并写入向量索引。
// 外层超时是全有或全无：超时后不返回任何部分结果。
func (s *crawlService) CrawlProductReviews(ctx context.Context, req CrawlRequest) *CrawlResult {
	log.Infof("[CrawlService] 开始爬取, URL: %s, max_reviews: %d", req.ProductURL, req.MaxReviews)

	// 1. 校验链接和数量
	productID, err := s.validate(&req)
	if err != nil {
		log.Warnf("[CrawlService] 步骤1: 请求校验失败: %v", err)
		return failed("잘못된 요청입니다.", err)
	}

	// 2. 同一商品同一时间只允许一个爬取
	lockKey := productID
	if lockKey == "" {
		lockKey = req.ProductURL
	}
	if s.lockRepo != nil {
		ok, err := s.lockRepo.TryAcquire(ctx, lockKey, s.cfg.CrawlTimeout+lockGrace)
		if err != nil {
			log.Warnf("[CrawlService] 步骤2: 获取爬取锁失败, 继续执行: %v", err)
		} else if !ok {
			log.Warnf("[CrawlService] 步骤2: 商品 %s 正在爬取中", lockKey)
			return failed("이미 해당 상품의 리뷰를 수집하고 있습니다.", ErrCrawlBusy)
		} else {
			defer func() {
				if err := s.lockRepo.Release(context.Background(), lockKey); err != nil {
					log.Warnf("[CrawlService] 释放爬取锁失败: %v", err)
				}
			}()
		}
	}

	// 3. 限制访问目标站点的频率
	if err := s.limiter.Wait(ctx); err != nil {
		return failed("크롤링이 취소되었습니다.", err)
	}

	// 4. 在外层超时内完成爬取
	log.Infof("[CrawlService] 步骤4: 启动浏览器爬取, 超时: %s", s.cfg.CrawlTimeout)
	out, err := s.crawlWithTimeout(ctx, req.ProductURL, productID, req.MaxReviews)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("[CrawlService] 步骤4: 爬取超时 (%s), URL: %s", s.cfg.CrawlTimeout, req.ProductURL)
			return failed(fmt.Sprintf("크롤링 시간 초과 (%d초)", int(s.cfg.CrawlTimeout.Seconds())), err)
		}
		log.Errorf("[CrawlService] 步骤4: 爬取失败: %v", err)
		return failed("크롤링 중 오류가 발생했습니다.", err)
	}
	product := out.Product
	if product.ProductID == "" {
		product.ProductID = productID
	}
	if product.ProductID == "" {
		return failed("상품 ID를 확인할 수 없습니다.", crawler.ErrUnsupportedURL)
	}
	log.Infof("[CrawlService] 步骤4: 爬取完成, 商品: %s, 评论: %d, 展开: %d 次 (%s)",
		product.ProductID, len(out.Records), out.Reveal.Iterations, out.Reveal.Stop)

	payload := ArchivePayload{Product: product, URL: out.FinalURL, Reviews: out.Records, CrawledAt: time.Now()}

	// 5. 归档原始结果（失败不影响主流程）
	if s.archiver != nil {
		object, err := s.archiver.Archive(ctx, product.ProductID, payload)
		if err != nil {
			log.Warnf("[CrawlService] 步骤5: 归档失败: %v", err)
		} else {
			log.Infof("[CrawlService] 步骤5: 已归档到 %s", object)
		}
	}

	// 6. 写入向量索引并更新商品目录
	stored, err := s.importer.Import(ctx, payload)
	if err != nil {
		log.Errorf("[CrawlService] 步骤6: 写入索引失败: %v", err)
		return failed("리뷰 저장 중 오류가 발생했습니다.", err)
	}
	log.Infof("[CrawlService] 步骤6: 写入索引 %d 条", stored)

	return &CrawlResult{
		Success:      true,
		ProductID:    product.ProductID,
		ProductName:  product.Name,
		ProductImage: product.ImageURL,
		ProductPrice: product.Price,
		ProductBrand: product.Brand,
		ReviewsFound: len(out.Records),
		Message:      fmt.Sprintf("%d개 리뷰가 성공적으로 저장되었습니다.", stored),
	}
}

type crawlOutcome struct {
	out *crawler.Output
	err error
}

func (s *crawlService) crawlWithTimeout(ctx context.Context, url, productID string, maxReviews int) (*crawler.Output, error) {
	crawlCtx, cancel := context.WithTimeout(ctx, s.cfg.CrawlTimeout)
	defer cancel()

	ch := make(chan crawlOutcome, 1)
	go func() {
		out, err := s.crawler.Crawl(crawlCtx, url, productID, maxReviews)
		ch <- crawlOutcome{out: out, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && crawlCtx.Err() != nil {
			return nil, crawlCtx.Err()
		}
		return r.out, r.err
	case <-crawlCtx.Done():
		return nil, crawlCtx.Err()
	}
}

// EnqueueCrawl 校验请求后把任务交给 Kafka 异步处理。
func (s *crawlService) EnqueueCrawl(ctx context.Context, req CrawlRequest) (*tasks.CrawlTask, error) {
	productID, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	if s.produce == nil {
		return nil, errors.New("async crawl queue is not configured")
	}
	task := tasks.CrawlTask{
		ProductURL:  req.ProductURL,
		ProductID:   productID,
		MaxReviews:  req.MaxReviews,
		RequestedBy: req.UserID,
		RequestedAt: time.Now(),
	}
	if err := s.produce(ctx, task); err != nil {
		return nil, fmt.Errorf("发送爬取任务失败: %w", err)
	}
	log.Infof("[CrawlService] 爬取任务已入队, key: %s", task.Key())
	return &task, nil
}

// Stats 返回索引中的评论数和商品目录规模。
func (s *crawlService) Stats(ctx context.Context) (*StatsResult, error) {
	st, err := s.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	res := &StatsResult{IndexName: st.IndexName, TotalReviews: st.TotalReviews}
	if s.productRepo != nil {
		if res.TotalProducts, err = s.productRepo.Count(ctx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func failed(message string, err error) *CrawlResult {
	res := &CrawlResult{Message: message}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
