package handler

import (
	"context"
	"errors"
	"net/http"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// DealsHandler 负责特价商品相关的 API 请求。
type DealsHandler struct {
	dealsService service.DealsService
	background   func(func())
}

// NewDealsHandler 创建一个新的 DealsHandler。
func NewDealsHandler(dealsService service.DealsService) *DealsHandler {
	return &DealsHandler{
		dealsService: dealsService,
		background:   func(f func()) { go f() },
	}
}

// Crawl 同步抓取特价页面并保存商品，请求体可以为空。
func (h *DealsHandler) Crawl(c *gin.Context) {
	var req service.DealsCrawlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "无效的请求负载")
			return
		}
	}
	if req.MaxProducts < 0 || req.MaxProducts > 100 {
		fail(c, http.StatusBadRequest, "max_products 必须在 1 到 100 之间")
		return
	}
	res, err := h.dealsService.DiscoverAndSave(c.Request.Context(), req)
	if err != nil {
		log.Error("Crawl: 特价商品抓取失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "특가 상품 크롤링 실패", "data": res})
		return
	}
	ok(c, "success", res)
}

// List 分页返回特价商品。
func (h *DealsHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 100 {
		fail(c, http.StatusBadRequest, "limit 必须在 1 到 100 之间")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		fail(c, http.StatusBadRequest, "offset 不能为负数")
		return
	}
	page, err := h.dealsService.List(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error("List: 获取特价商品失败", err)
		fail(c, http.StatusInternalServerError, "获取特价商品失败")
		return
	}
	ok(c, "success", page)
}

// Get 返回单个特价商品。
func (h *DealsHandler) Get(c *gin.Context) {
	product, err := h.dealsService.Get(c.Request.Context(), c.Param("productId"))
	if errors.Is(err, service.ErrDealNotFound) {
		fail(c, http.StatusNotFound, "특가 상품을 찾을 수 없습니다.")
		return
	}
	if err != nil {
		log.Error("Get: 获取特价商品失败", err)
		fail(c, http.StatusInternalServerError, "获取特价商品失败")
		return
	}
	ok(c, "success", product)
}

// ProcessUncrawled 在后台补爬未爬取的特价商品，立即返回。
func (h *DealsHandler) ProcessUncrawled(c *gin.Context) {
	batch, err := strconv.Atoi(c.DefaultQuery("batch_size", "5"))
	if err != nil || batch < 1 || batch > 20 {
		fail(c, http.StatusBadRequest, "batch_size 必须在 1 到 20 之间")
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	h.background(func() {
		res, err := h.dealsService.ProcessUncrawled(ctx, batch)
		if err != nil {
			log.Error("ProcessUncrawled: 后台补爬失败", err)
			return
		}
		log.Infof("ProcessUncrawled: 后台补爬完成, 成功: %d, 失败: %d", res.ProcessedCount, res.FailedCount)
	})
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": strconv.Itoa(batch) + "개 상품의 리뷰 크롤링이 백그라운드에서 시작되었습니다.",
		"data":    gin.H{"batch_size": batch},
	})
}

// Cleanup 删除超过 days 天没再出现在特价页面上的商品。
func (h *DealsHandler) Cleanup(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 30 {
		fail(c, http.StatusBadRequest, "days 必须在 1 到 30 之间")
		return
	}
	deleted, err := h.dealsService.Cleanup(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		log.Error("Cleanup: 清理特价商品失败", err)
		fail(c, http.StatusInternalServerError, "清理特价商品失败")
		return
	}
	ok(c, "success", gin.H{"deleted_count": deleted, "days": days})
}

// Stats 返回特价商品的统计摘要。
func (h *DealsHandler) Stats(c *gin.Context) {
	stats, err := h.dealsService.Stats(c.Request.Context())
	if err != nil {
		log.Error("Stats: 获取特价统计失败", err)
		fail(c, http.StatusInternalServerError, "获取特价统计失败")
		return
	}
	ok(c, "success", stats)
}
