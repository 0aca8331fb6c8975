package service

import (
	"context"
	"fmt"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/llm"
	"review-talk-go/pkg/log"
	"strings"
	"time"
)

const (
	// FallbackAnswer 在生成失败、超时或返回空文本时使用。
	FallbackAnswer = "죄송합니다. 현재 AI 응답을 생성할 수 없습니다. 잠시 후 다시 시도해주세요."
	// NoReviewsAnswer 在没有任何检索结果时直接返回，不调用模型。
	NoReviewsAnswer = "죄송해요, 해당 내용에 대한 리뷰를 찾을 수 없네요."
	// OverviewFallback 在商品概要生成失败时使用。
	OverviewFallback = "제품 요약을 생성할 수 없습니다."

	overviewSampleSize  = 10
	overviewTemperature = 0.7
	overviewMaxTokens   = 800
	defaultGenTimeout   = 30 * time.Second
)

// systemPrompt 是所有生成请求共用的角色设定。
const systemPrompt = `**중요: 무조건 한국어로만 답변하세요. 영어나 다른 언어는 절대 사용하지 마세요.**

## 역할
당신은 '리뷰톡'의 상품 리뷰 분석 전문 AI 챗봇입니다.

## 응답 스타일
- 친절하고 신뢰감 있는 존댓말 사용
- 100~200자 내외의 간결하고 명확한 응답
- "리뷰를 분석해보니…", "구매하신 분들 의견을 보면…" 같은 표현 사용

## 응답 구조
1. 관련 리뷰 수 요약
2. 리뷰 분석 결과 요약 (한 문장)
3. 실제 리뷰 내용 인용 (평점을 포함하여 1~2개)
4. 긍/부정 요약 및 결론 제시

## 예외 상황 대응
- 관련 리뷰 없음: "죄송해요, 해당 내용에 대한 리뷰를 찾을 수 없네요."
- 의견이 나뉘는 경우: "의견이 나뉘는 부분이에요. 긍정적으로는…, 반대로는…"
- 제품 외 질문: "상품 리뷰와 관련된 질문을 해주시면 더 정확한 답변을 드릴 수 있어요."

## 주의사항
- 리뷰에 없는 정보는 절대 추론하거나 지어내지 마세요.
- 감정적/광고성 표현을 피하고 중립적인 정보를 제공하세요.
- 한두 리뷰만을 근거로 일반화하지 마세요.`

// Answer 是一次生成的结果，Fallback 表示使用了兜底文本。
type Answer struct {
	Text     string
	Fallback bool
}

// ResponseGenerator 基于检索到的评论和最近对话生成回答。
type ResponseGenerator interface {
	Generate(ctx context.Context, passages []model.RetrievedPassage, question string, recent []model.ConversationMessage) Answer
	Overview(ctx context.Context, product *model.ProductSummary, passages []model.RetrievedPassage) Answer
}

type responseGenerator struct {
	backend llm.Backend
	timeout time.Duration
}

// NewResponseGenerator 创建一个新的 ResponseGenerator 实例，timeout 为单次调用上限。
func NewResponseGenerator(backend llm.Backend, timeout time.Duration) ResponseGenerator {
	if timeout <= 0 {
		timeout = defaultGenTimeout
	}
	return &responseGenerator{backend: backend, timeout: timeout}
}

// Generate 永远不返回错误：任何失败都转成 FallbackAnswer。
func (g *responseGenerator) Generate(ctx context.Context, passages []model.RetrievedPassage, question string, recent []model.ConversationMessage) Answer {
	if len(passages) == 0 {
		return Answer{Text: NoReviewsAnswer}
	}
	userPrompt := BuildUserPrompt(question, recent, passages)
	log.Infof("[ResponseGenerator] 调用 %s, 评论数: %d, 历史消息数: %d, prompt 长度: %d", g.backend.Name(), len(passages), len(recent), len(userPrompt))

	text, err := g.complete(ctx, userPrompt, nil)
	if err != nil {
		log.Errorf("[ResponseGenerator] 生成回答失败: %v", err)
		return Answer{Text: FallbackAnswer, Fallback: true}
	}
	return Answer{Text: text}
}

// Overview 生成商品整体评价概要。
func (g *responseGenerator) Overview(ctx context.Context, product *model.ProductSummary, passages []model.RetrievedPassage) Answer {
	userPrompt := BuildOverviewPrompt(product, passages)
	log.Infof("[ResponseGenerator] 生成商品概要, 评论数: %d", len(passages))

	text, err := g.complete(ctx, userPrompt, &llm.GenerationParams{
		Temperature: llm.Float64(overviewTemperature),
		MaxTokens:   llm.Int(overviewMaxTokens),
	})
	if err != nil {
		log.Errorf("[ResponseGenerator] 生成商品概要失败: %v", err)
		return Answer{Text: OverviewFallback, Fallback: true}
	}
	return Answer{Text: text}
}

func (g *responseGenerator) complete(ctx context.Context, userPrompt string, gen *llm.GenerationParams) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.backend.Complete(callCtx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}, gen)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyCompletion
	}
	return text, nil
}

// BuildUserPrompt 拼接用户问题、最近对话和相关评论。
func BuildUserPrompt(question string, recent []model.ConversationMessage, passages []model.RetrievedPassage) string {
	var b strings.Builder
	b.WriteString("사용자 질문: ")
	b.WriteString(question)
	b.WriteString("\n\n")

	if len(recent) > 0 {
		b.WriteString("[최근 대화 맥락]\n")
		for i, m := range recent {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[%s] %s", m.ChatUserID, m.Message)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("관련 리뷰 데이터:\n")
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[평점: %d, 날짜: %s]\n%s", p.Metadata.Rating, p.Metadata.Date, p.Text)
	}
	b.WriteString("\n\n위 리뷰 데이터와 최근 대화 맥락을 바탕으로 사용자의 질문에 답변해주세요.")
	return b.String()
}

// BuildOverviewPrompt 计算平均评分（忽略缺失评分），并附上前 10 条评论。
func BuildOverviewPrompt(product *model.ProductSummary, passages []model.RetrievedPassage) string {
	var sum, rated int
	for _, p := range passages {
		if p.Metadata.Rating > 0 {
			sum += p.Metadata.Rating
			rated++
		}
	}
	avg := 0.0
	if rated > 0 {
		avg = float64(sum) / float64(rated)
	}

	var b strings.Builder
	if product != nil && product.Name != "" {
		fmt.Fprintf(&b, "상품명: %s\n", product.Name)
	}
	fmt.Fprintf(&b, "총 %d개의 리뷰 (평균 평점: %.1f/5.0)\n\n대표 리뷰들:\n", len(passages), avg)
	for i, p := range passages {
		if i == overviewSampleSize {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	b.WriteString("\n\n위 데이터를 바탕으로 이 제품에 대한 종합적인 요약을 작성해주세요.")
	return b.String()
}
