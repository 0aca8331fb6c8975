package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"review-talk-go/internal/model"
	"review-talk-go/internal/service"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDealsService struct {
	crawlReq  service.DealsCrawlRequest
	batch     int
	retention time.Duration
	limit     int
}

func (s *stubDealsService) DiscoverAndSave(_ context.Context, req service.DealsCrawlRequest) (*service.DealsCrawlResult, error) {
	s.crawlReq = req
	return &service.DealsCrawlResult{Success: true, TotalProducts: 2}, nil
}

func (s *stubDealsService) ProcessUncrawled(_ context.Context, batch int) (*service.ProcessResult, error) {
	s.batch = batch
	return &service.ProcessResult{ProcessedCount: batch}, nil
}

func (s *stubDealsService) Cleanup(_ context.Context, retention time.Duration) (int64, error) {
	s.retention = retention
	return 3, nil
}

func (s *stubDealsService) List(_ context.Context, limit, offset int) (*service.DealsPage, error) {
	s.limit = limit
	return &service.DealsPage{Products: []model.Product{{ProductID: "1", IsSpecial: true}}, Total: 1, Limit: limit, Offset: offset}, nil
}

func (s *stubDealsService) Get(_ context.Context, productID string) (*model.Product, error) {
	if productID != "1" {
		return nil, service.ErrDealNotFound
	}
	return &model.Product{ProductID: "1", IsSpecial: true}, nil
}

func (s *stubDealsService) Stats(context.Context) (*service.DealsStats, error) {
	return &service.DealsStats{TotalProducts: 4, CrawledProducts: 1, UncrawledProducts: 3, CrawlRate: 25}, nil
}

func newDealsRouter(deals service.DealsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDealsHandler(deals)
	h.background = func(f func()) { f() }
	api := r.Group("/api/v1")
	api.POST("/special-deals/crawl", h.Crawl)
	api.GET("/special-deals", h.List)
	api.GET("/special-deals/stats/summary", h.Stats)
	api.GET("/special-deals/:productId", h.Get)
	api.POST("/special-deals/process-uncrawled", h.ProcessUncrawled)
	api.DELETE("/special-deals/cleanup", h.Cleanup)
	return r
}

func TestDealsCrawlEndpoint(t *testing.T) {
	deals := &stubDealsService{}
	r := newDealsRouter(deals)

	w, env := do(t, r, http.MethodPost, "/api/v1/special-deals/crawl", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total_products":2`)
	assert.Zero(t, deals.crawlReq.MaxProducts)

	w, _ = do(t, r, http.MethodPost, "/api/v1/special-deals/crawl", `{"max_products":10,"crawl_reviews":false}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, deals.crawlReq.MaxProducts)
	require.NotNil(t, deals.crawlReq.CrawlReviews)
	assert.False(t, *deals.crawlReq.CrawlReviews)

	w, _ = do(t, r, http.MethodPost, "/api/v1/special-deals/crawl", `{"max_products":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDealsQueryEndpoints(t *testing.T) {
	deals := &stubDealsService{}
	r := newDealsRouter(deals)

	w, env := do(t, r, http.MethodGet, "/api/v1/special-deals?limit=20", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var page service.DealsPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 20, page.Limit)
	require.Len(t, page.Products, 1)

	w, _ = do(t, r, http.MethodGet, "/api/v1/special-deals?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/special-deals/1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/special-deals/404", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/v1/special-deals/stats/summary", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"crawl_rate":25`)
}

func TestDealsMaintenanceEndpoints(t *testing.T) {
	deals := &stubDealsService{}
	r := newDealsRouter(deals)

	w, _ := do(t, r, http.MethodPost, "/api/v1/special-deals/process-uncrawled?batch_size=3", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 3, deals.batch)

	w, _ = do(t, r, http.MethodPost, "/api/v1/special-deals/process-uncrawled?batch_size=99", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, r, http.MethodDelete, "/api/v1/special-deals/cleanup?days=3", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 72*time.Hour, deals.retention)
	assert.Contains(t, string(env.Data), `"deleted_count":3`)
}
