package pipeline

import (
	"context"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/tasks"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCrawlService struct {
	service.CrawlService
	result *service.CrawlResult
	got    service.CrawlRequest
}

func (s *stubCrawlService) CrawlProductReviews(_ context.Context, req service.CrawlRequest) *service.CrawlResult {
	s.got = req
	return s.result
}

func TestProcessSuccess(t *testing.T) {
	svc := &stubCrawlService{result: &service.CrawlResult{Success: true, ProductID: "42", ReviewsFound: 3}}
	p := NewProcessor(svc)

	err := p.Process(context.Background(), tasks.CrawlTask{ProductURL: "https://prod.danawa.com/info/?pcode=42", MaxReviews: 30, RequestedBy: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 30, svc.got.MaxReviews)
	assert.Equal(t, "u1", svc.got.UserID)
}

func TestProcessFailureBecomesError(t *testing.T) {
	p := NewProcessor(&stubCrawlService{result: &service.CrawlResult{Message: "크롤링 시간 초과 (600초)", Error: "context deadline exceeded"}})
	err := p.Process(context.Background(), tasks.CrawlTask{ProductURL: "https://prod.danawa.com/info/?pcode=42"})
	assert.EqualError(t, err, "context deadline exceeded")

	p = NewProcessor(&stubCrawlService{result: &service.CrawlResult{Message: "상품 ID를 확인할 수 없습니다."}})
	err = p.Process(context.Background(), tasks.CrawlTask{ProductURL: "https://danawa.page.link/x"})
	assert.EqualError(t, err, "상품 ID를 확인할 수 없습니다.")
}
