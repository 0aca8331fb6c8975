package handler

import (
	"net/http"
	"review-talk-go/internal/middleware"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// CrawlHandler 负责评论爬取相关的 API 请求。
type CrawlHandler struct {
	crawlService service.CrawlService
}

// NewCrawlHandler 创建一个新的 CrawlHandler。
func NewCrawlHandler(crawlService service.CrawlService) *CrawlHandler {
	return &CrawlHandler{crawlService: crawlService}
}

func bindCrawlRequest(c *gin.Context) (service.CrawlRequest, bool) {
	var req service.CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "无效的请求负载")
		return req, false
	}
	if req.UserID == "" {
		req.UserID = middleware.UserID(c)
	}
	return req, true
}

// CrawlReviews 同步爬取商品评论，耗时可能达到数分钟。
func (h *CrawlHandler) CrawlReviews(c *gin.Context) {
	req, valid := bindCrawlRequest(c)
	if !valid {
		return
	}
	res := h.crawlService.CrawlProductReviews(c.Request.Context(), req)
	if !res.Success {
		log.Warnf("CrawlReviews: 爬取失败, url: %s, error: %s", req.ProductURL, res.Error)
	}
	ok(c, res.Message, res)
}

// CrawlReviewsAsync 把爬取任务提交到队列后立即返回。
func (h *CrawlHandler) CrawlReviewsAsync(c *gin.Context) {
	req, valid := bindCrawlRequest(c)
	if !valid {
		return
	}
	task, err := h.crawlService.EnqueueCrawl(c.Request.Context(), req)
	if err != nil {
		log.Error("CrawlReviewsAsync: 提交任务失败", err)
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "任务已提交", "data": task})
}

// Stats 返回索引与商品统计。
func (h *CrawlHandler) Stats(c *gin.Context) {
	stats, err := h.crawlService.Stats(c.Request.Context())
	if err != nil {
		log.Error("Stats: 获取统计失败", err)
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	ok(c, "success", stats)
}
