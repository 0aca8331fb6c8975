// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// CrawlTask represents an asynchronous review crawl job.
type CrawlTask struct {
	ProductURL  string    `json:"product_url"`
	ProductID   string    `json:"product_id,omitempty"`
	MaxReviews  int       `json:"max_reviews"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Key 返回用于失败计数的任务标识，优先使用商品 ID。
func (t CrawlTask) Key() string {
	if t.ProductID != "" {
		return t.ProductID
	}
	return t.ProductURL
}
