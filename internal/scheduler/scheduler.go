// Package scheduler 定时刷新过期商品，并每天发现和整理特价商品。
package scheduler

import (
	"context"
	"errors"
	"review-talk-go/internal/config"
	"review-talk-go/internal/repository"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler 管理评论刷新任务和特价商品任务。
type Scheduler struct {
	cron        *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
	productRepo repository.ProductRepository
	crawl       service.CrawlService
	deals       service.DealsService
	cfg         config.SchedulerConfig
	dealsCfg    config.DealsConfig
	now         func() time.Time
}

// DealsRun 汇总一次每日特价任务。
type DealsRun struct {
	Discovered *service.DealsCrawlResult
	Processed  *service.ProcessResult
	Deleted    int64
}

// New 创建一个新的 Scheduler。刷新任务在 cfg.Enabled 时注册，特价任务在 deals 不为 nil 且 dealsCfg.Enabled 时注册。
func New(
	productRepo repository.ProductRepository,
	crawl service.CrawlService,
	deals service.DealsService,
	cfg config.SchedulerConfig,
	dealsCfg config.DealsConfig,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 7 * 24 * time.Hour
	}
	return &Scheduler{
		cron:        cron.New(),
		ctx:         ctx,
		cancel:      cancel,
		productRepo: productRepo,
		crawl:       crawl,
		deals:       deals,
		cfg:         cfg,
		dealsCfg:    dealsCfg,
		now:         time.Now,
	}
}

// Start 注册已启用的任务并启动 cron。
func (s *Scheduler) Start() error {
	if s.cfg.Enabled {
		_, err := s.cron.AddFunc(s.cfg.RefreshCron, func() {
			n, err := s.RefreshStale(s.ctx)
			if err != nil {
				log.Errorf("[Scheduler] 刷新过期商品失败: %v", err)
				return
			}
			log.Infof("[Scheduler] 已为 %d 个商品提交刷新任务", n)
		})
		if err != nil {
			return err
		}
		log.Infof("[Scheduler] 已注册刷新任务, cron: %s, stale_after: %s", s.cfg.RefreshCron, s.cfg.StaleAfter)
	}
	if s.deals != nil && s.dealsCfg.Enabled {
		_, err := s.cron.AddFunc(s.dealsCfg.Cron, func() {
			if _, err := s.RunDeals(s.ctx); err != nil {
				log.Errorf("[Scheduler] 每日特价任务失败: %v", err)
			}
		})
		if err != nil {
			return err
		}
		log.Infof("[Scheduler] 已注册特价任务, cron: %s", s.dealsCfg.Cron)
	}
	s.cron.Start()
	log.Info("[Scheduler] 已启动")
	return nil
}

// RunDeals 依次执行特价商品发现（含评论爬取）、未爬取商品补爬和过期清理。
// 发现失败不会阻止后两步。
func (s *Scheduler) RunDeals(ctx context.Context) (*DealsRun, error) {
	run := &DealsRun{}
	var errs []error

	log.Info("[Scheduler] 步骤1: 发现特价商品")
	res, err := s.deals.DiscoverAndSave(ctx, service.DealsCrawlRequest{
		MaxProducts:          s.dealsCfg.MaxProducts,
		MaxReviewsPerProduct: s.dealsCfg.ReviewsPerProduct,
	})
	run.Discovered = res
	if err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		return run, ctx.Err()
	}

	log.Info("[Scheduler] 步骤2: 补爬未爬取的特价商品")
	processed, err := s.deals.ProcessUncrawled(ctx, s.dealsCfg.UncrawledBatch)
	run.Processed = processed
	if err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		return run, ctx.Err()
	}

	log.Info("[Scheduler] 步骤3: 清理过期特价商品")
	deleted, err := s.deals.Cleanup(ctx, s.dealsCfg.Retention)
	run.Deleted = deleted
	if err != nil {
		errs = append(errs, err)
	}
	return run, errors.Join(errs...)
}

// RefreshStale 为超过 stale_after 未爬取的商品提交爬取任务，返回成功入队的数量。
func (s *Scheduler) RefreshStale(ctx context.Context) (int, error) {
	before := s.now().Add(-s.cfg.StaleAfter)
	products, err := s.productRepo.FindStale(ctx, before, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, p := range products {
		_, err := s.crawl.EnqueueCrawl(ctx, service.CrawlRequest{ProductURL: p.URL, MaxReviews: refreshTarget(p.ReviewCount)})
		if err != nil {
			log.Warnf("[Scheduler] 商品 %s 入队失败: %v", p.ProductID, err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// refreshTarget 按上次的评论数留出增长空间。
func refreshTarget(last int) int {
	target := last + last/5
	if target < 100 {
		target = 100
	}
	if target > 1000 {
		target = 1000
	}
	return target
}

// Stop 停止调度并等待正在执行的任务结束。
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info("[Scheduler] 已停止")
}
