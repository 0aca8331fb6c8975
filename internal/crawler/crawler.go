package crawler

import (
	"context"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/log"
)

// Output 是一次完整爬取的结果。
type Output struct {
	Product    model.ProductSummary
	Records    []model.ReviewRecord
	Extraction *Extraction
	Reveal     RevealResult
	FinalURL   string
}

// Crawler 组合会话与抽取器，完成一次 “打开 → 展开 → 抽取” 流程。
type Crawler struct {
	launcher  Launcher
	cfg       config.CrawlerConfig
	extractor *Extractor
}

// New 创建一个新的 Crawler 实例。
func New(launcher Launcher, cfg config.CrawlerConfig) *Crawler {
	return &Crawler{launcher: launcher, cfg: cfg, extractor: NewExtractor(cfg)}
}

// Crawl 在独立的浏览器上下文中抓取商品页面的评论，任何退出路径都会关闭会话。
// ctx 取消时会话被立即关闭，正在进行的浏览器调用随之失败。
func (c *Crawler) Crawl(ctx context.Context, targetURL, productID string, maxReviews int) (*Output, error) {
	session := NewSession(c.launcher, c.cfg)
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	if err := session.Open(ctx, targetURL); err != nil {
		return nil, err
	}
	page := session.Page()
	if page == nil {
		return nil, ErrSessionClosed
	}

	out := &Output{FinalURL: page.URL()}
	if productID == "" {
		productID, _ = ParseProductURL(out.FinalURL, c.cfg.ProductHosts)
	}
	out.Product = ExtractProductSummary(page, productID, c.cfg.Selectors)

	found, err := session.ShowReviews(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Warnf("[Crawler] 页面没有评论入口, url: %s", targetURL)
	}

	out.Reveal, err = session.Reveal(ctx, maxReviews)
	if err != nil {
		return nil, err
	}

	out.Extraction, err = c.extractor.Extract(page)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.Records = out.Extraction.Truncate(maxReviews)
	log.Infof("[Crawler] 爬取完成, product_id: %s, extracted: %d, returned: %d", productID, len(out.Extraction.Records), len(out.Records))
	return out, nil
}
