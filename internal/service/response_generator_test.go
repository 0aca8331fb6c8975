package service

import (
	"context"
	"errors"
	"review-talk-go/internal/model"
	"review-talk-go/internal/testutil"
	"review-talk-go/pkg/llm"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passages() []model.RetrievedPassage {
	return []model.RetrievedPassage{
		{ID: "review_1", Text: "평점: 5/5\n리뷰: 배송이 빨라요", Metadata: model.PassageMetadata{ProductID: "42", ReviewID: "1", Rating: 5, Date: "2024.01.02"}, Distance: 0.1},
		{ID: "review_2", Text: "평점: 2/5\n리뷰: 포장이 아쉬워요", Metadata: model.PassageMetadata{ProductID: "42", ReviewID: "2", Rating: 2, Date: "unknown"}, Distance: 0.3},
	}
}

func TestGenerateWithoutPassagesSkipsBackend(t *testing.T) {
	backend := &testutil.StubBackend{Reply: "unused"}
	gen := NewResponseGenerator(backend, time.Second)

	ans := gen.Generate(context.Background(), nil, "배송 어때요?", nil)
	assert.Equal(t, NoReviewsAnswer, ans.Text)
	assert.False(t, ans.Fallback)
	assert.Zero(t, backend.CallCount())
}

func TestGenerateBuildsPrompt(t *testing.T) {
	backend := &testutil.StubBackend{Reply: "  리뷰를 분석해보니 배송이 빠르다는 의견이 많아요.  "}
	gen := NewResponseGenerator(backend, time.Second)

	recent := []model.ConversationMessage{
		{ChatUserID: "u1", Message: "이 제품 괜찮아요?"},
		{ChatUserID: "reviewtalk_ai", Message: "대체로 만족한다는 의견이에요."},
	}
	ans := gen.Generate(context.Background(), passages(), "배송 어때요?", recent)
	assert.Equal(t, "리뷰를 분석해보니 배송이 빠르다는 의견이 많아요.", ans.Text)
	assert.False(t, ans.Fallback)

	require.Equal(t, 1, backend.CallCount())
	msgs := backend.Calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "리뷰톡")

	prompt := backend.LastUserPrompt()
	assert.True(t, strings.HasPrefix(prompt, "사용자 질문: 배송 어때요?"))
	assert.Contains(t, prompt, "[최근 대화 맥락]\n[u1] 이 제품 괜찮아요?\n[reviewtalk_ai] 대체로 만족한다는 의견이에요.")
	assert.Contains(t, prompt, "[평점: 5, 날짜: 2024.01.02]\n평점: 5/5\n리뷰: 배송이 빨라요")
	assert.Contains(t, prompt, "[평점: 2, 날짜: unknown]")
	assert.Less(t, strings.Index(prompt, "[최근 대화 맥락]"), strings.Index(prompt, "관련 리뷰 데이터:"))
}

func TestGeneratePromptWithoutHistory(t *testing.T) {
	prompt := BuildUserPrompt("q", nil, passages())
	assert.NotContains(t, prompt, "[최근 대화 맥락]")
}

func TestGenerateFallsBack(t *testing.T) {
	cases := map[string]*testutil.StubBackend{
		"error": {Err: errors.New("503 service unavailable")},
		"empty": {Reply: "   "},
		"slow":  {Reply: "too late", Delay: time.Second},
	}
	for name, backend := range cases {
		t.Run(name, func(t *testing.T) {
			gen := NewResponseGenerator(backend, 20*time.Millisecond)
			ans := gen.Generate(context.Background(), passages(), "배송 어때요?", nil)
			assert.Equal(t, FallbackAnswer, ans.Text)
			assert.True(t, ans.Fallback)
		})
	}
}

func TestOverview(t *testing.T) {
	backend := &testutil.StubBackend{Reply: "전반적으로 만족도가 높은 제품이에요."}
	gen := NewResponseGenerator(backend, time.Second)

	ps := passages()
	ps = append(ps, model.RetrievedPassage{Text: "평점: 0/5\n리뷰: 평점 없는 리뷰"})
	ans := gen.Overview(context.Background(), &model.ProductSummary{ProductID: "42", Name: "무선 이어폰"}, ps)
	assert.Equal(t, "전반적으로 만족도가 높은 제품이에요.", ans.Text)

	prompt := backend.LastUserPrompt()
	assert.Contains(t, prompt, "상품명: 무선 이어폰")
	assert.Contains(t, prompt, "총 3개의 리뷰 (평균 평점: 3.5/5.0)")

	require.Len(t, backend.Params, 1)
	params := backend.Params[0]
	require.NotNil(t, params)
	assert.InDelta(t, 0.7, *params.Temperature, 1e-9)
	assert.Equal(t, 800, *params.MaxTokens)
}

func TestOverviewSamplesTenPassages(t *testing.T) {
	var ps []model.RetrievedPassage
	for i := 0; i < 15; i++ {
		ps = append(ps, model.RetrievedPassage{Text: "sample-" + string(rune('a'+i)), Metadata: model.PassageMetadata{Rating: 4}})
	}
	prompt := BuildOverviewPrompt(nil, ps)
	assert.Contains(t, prompt, "sample-j")
	assert.NotContains(t, prompt, "sample-k")
	assert.Contains(t, prompt, "총 15개의 리뷰 (평균 평점: 4.0/5.0)")
}

func TestOverviewFallback(t *testing.T) {
	gen := NewResponseGenerator(&testutil.StubBackend{Err: errors.New("boom")}, time.Second)
	ans := gen.Overview(context.Background(), nil, passages())
	assert.Equal(t, OverviewFallback, ans.Text)
	assert.True(t, ans.Fallback)
}
