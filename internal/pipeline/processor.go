// Package pipeline 定义了异步爬取任务的处理流程。
package pipeline

import (
	"context"
	"errors"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/log"
	"review-talk-go/pkg/tasks"
)

// Processor 把 Kafka 中的爬取任务交给 CrawlService 执行。
type Processor struct {
	crawlService service.CrawlService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(crawlService service.CrawlService) *Processor {
	return &Processor{crawlService: crawlService}
}

// Process 执行一次爬取，失败时返回错误让消费者决定是否重试。
func (p *Processor) Process(ctx context.Context, task tasks.CrawlTask) error {
	log.Infof("[Processor] 开始处理爬取任务, URL: %s, ProductID: %s, 请求时间: %s", task.ProductURL, task.ProductID, task.RequestedAt.Format("2006-01-02 15:04:05"))

	res := p.crawlService.CrawlProductReviews(ctx, service.CrawlRequest{
		ProductURL: task.ProductURL,
		MaxReviews: task.MaxReviews,
		UserID:     task.RequestedBy,
	})
	if !res.Success {
		log.Errorf("[Processor] 爬取任务失败, key: %s, message: %s, error: %s", task.Key(), res.Message, res.Error)
		if res.Error != "" {
			return errors.New(res.Error)
		}
		return errors.New(res.Message)
	}

	log.Infof("[Processor] 爬取任务完成, 商品: %s, 评论: %d", res.ProductID, res.ReviewsFound)
	return nil
}
