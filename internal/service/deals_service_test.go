package service

import (
	"context"
	"errors"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/internal/repository"
	"review-talk-go/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	products []model.Product
	err      error
	max      int
}

func (d *fakeDiscoverer) Discover(_ context.Context, max int) ([]model.Product, error) {
	d.max = max
	return d.products, d.err
}

// scriptedCrawl 按 URL 返回预设的评论数，0 表示失败，成功时像真实服务一样标记商品已爬取。
type scriptedCrawl struct {
	CrawlService
	products repository.ProductRepository
	reviews  map[string]int
	requests []CrawlRequest
}

func (c *scriptedCrawl) CrawlProductReviews(ctx context.Context, req CrawlRequest) *CrawlResult {
	c.requests = append(c.requests, req)
	n := c.reviews[req.ProductURL]
	if n == 0 {
		return failed("크롤링 중 오류가 발생했습니다.", errors.New("navigation failed"))
	}
	for _, id := range []string{"1", "2", "3"} {
		if req.ProductURL == dealURL(id) {
			_ = c.products.MarkCrawled(ctx, id, n, time.Now())
		}
	}
	return &CrawlResult{Success: true, ReviewsFound: n}
}

func dealURL(id string) string {
	return "https://m.danawa.com/product/view.html?code=" + id
}

func deal(id string) model.Product {
	return model.Product{ProductID: id, Name: "특가 " + id, URL: dealURL(id), Category: "특가상품"}
}

type dealsFixture struct {
	svc        *dealsService
	products   repository.ProductRepository
	discoverer *fakeDiscoverer
	crawl      *scriptedCrawl
	now        time.Time
}

func newDealsFixture(t *testing.T) *dealsFixture {
	t.Helper()
	products := repository.NewProductRepository(testutil.DB(t))
	f := &dealsFixture{
		products:   products,
		discoverer: &fakeDiscoverer{products: []model.Product{deal("1"), deal("2"), deal("3")}},
		crawl:      &scriptedCrawl{products: products, reviews: map[string]int{dealURL("1"): 12, dealURL("3"): 4}},
		now:        time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	cfg := config.Default().Deals
	cfg.ProductPause = 0
	f.svc = NewDealsService(f.discoverer, f.crawl, products, cfg).(*dealsService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestDealsDiscoverAndSaveCrawlsEachProduct(t *testing.T) {
	f := newDealsFixture(t)
	ctx := context.Background()

	res, err := f.svc.DiscoverAndSave(ctx, DealsCrawlRequest{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.TotalProducts)
	assert.Equal(t, 2, res.ProductsWithReviews)
	assert.Equal(t, 16, res.TotalReviews)
	assert.Equal(t, 50, f.discoverer.max)
	require.Len(t, f.crawl.requests, 3)
	assert.Equal(t, 100, f.crawl.requests[0].MaxReviews)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalProducts)
	assert.EqualValues(t, 2, stats.CrawledProducts)
	assert.EqualValues(t, 1, stats.UncrawledProducts)
}

func TestDealsDiscoverWithoutReviews(t *testing.T) {
	f := newDealsFixture(t)
	skip := false

	res, err := f.svc.DiscoverAndSave(context.Background(), DealsCrawlRequest{MaxProducts: 2, CrawlReviews: &skip})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalProducts)
	assert.Equal(t, 2, f.discoverer.max)
	assert.Empty(t, f.crawl.requests)
}

func TestDealsDiscoverFailures(t *testing.T) {
	f := newDealsFixture(t)
	f.discoverer.err = errors.New("page timeout")

	res, err := f.svc.DiscoverAndSave(context.Background(), DealsCrawlRequest{})
	require.Error(t, err)
	assert.False(t, res.Success)

	f.discoverer.err = nil
	f.discoverer.products = nil
	res, err = f.svc.DiscoverAndSave(context.Background(), DealsCrawlRequest{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestDealsProcessUncrawledMarksFailures(t *testing.T) {
	f := newDealsFixture(t)
	ctx := context.Background()
	skip := false
	_, err := f.svc.DiscoverAndSave(ctx, DealsCrawlRequest{CrawlReviews: &skip})
	require.NoError(t, err)

	res, err := f.svc.ProcessUncrawled(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, 16, res.TotalReviews)

	failedDeal, err := f.svc.Get(ctx, "2")
	require.NoError(t, err)
	assert.True(t, failedDeal.IsCrawled)
	assert.Equal(t, 0, failedDeal.ReviewCount)

	res, err = f.svc.ProcessUncrawled(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, res.ProcessedCount)
	assert.Len(t, f.crawl.requests, 3)
}

func TestDealsCleanupAndLookup(t *testing.T) {
	f := newDealsFixture(t)
	ctx := context.Background()
	skip := false
	_, err := f.svc.DiscoverAndSave(ctx, DealsCrawlRequest{CrawlReviews: &skip})
	require.NoError(t, err)

	f.now = f.now.Add(8 * 24 * time.Hour)
	f.discoverer.products = []model.Product{deal("3")}
	_, err = f.svc.DiscoverAndSave(ctx, DealsCrawlRequest{CrawlReviews: &skip})
	require.NoError(t, err)

	n, err := f.svc.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	page, err := f.svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 50, page.Limit)
	require.Len(t, page.Products, 1)
	assert.Equal(t, "3", page.Products[0].ProductID)

	_, err = f.svc.Get(ctx, "1")
	assert.ErrorIs(t, err, ErrDealNotFound)

	require.NoError(t, f.products.Upsert(ctx, &model.Product{ProductID: "77", Name: "일반 상품"}))
	_, err = f.svc.Get(ctx, "77")
	assert.ErrorIs(t, err, ErrDealNotFound)
}
