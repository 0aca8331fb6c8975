// Package index 实现了按商品分区的评论向量索引。
package index

import (
	"context"
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	unknownDate     = "unknown"
	anonymousAuthor = "anonymous"
)

// VectorIndex 是对话编排和爬取流程依赖的检索接口。
type VectorIndex interface {
	Ingest(ctx context.Context, records []model.ReviewRecord, scope model.ProductScope) (int, error)
	Search(ctx context.Context, query string, k int, scope model.ProductScope) ([]model.RetrievedPassage, error)
	Stats(ctx context.Context) (Stats, error)
}

// Stats 仅用于观测。
type Stats struct {
	TotalReviews int64  `json:"total_reviews"`
	IndexName    string `json:"index_name"`
}

// Embedder 负责 query/passage 两种角色的向量化。
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// Store 是向量的存储后端。
type Store interface {
	Upsert(ctx context.Context, docs []model.ReviewDocument) error
	KNN(ctx context.Context, vector []float32, k int, scope model.ProductScope) ([]model.RetrievedPassage, error)
	Count(ctx context.Context) (int64, error)
	Name() string
}

type reviewIndex struct {
	embedder  Embedder
	store     Store
	model     string
	batchSize int
	workers   int
}

// New 创建一个新的 VectorIndex 实例。
func New(embedder Embedder, store Store, cfg config.EmbeddingConfig) VectorIndex {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &reviewIndex{
		embedder:  embedder,
		store:     store,
		model:     cfg.Model,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Ingest 向量化并写入评论，相同评论 ID 覆盖旧文档。
func (x *reviewIndex) Ingest(ctx context.Context, records []model.ReviewRecord, scope model.ProductScope) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]model.ReviewDocument, 0, len(records))
	for _, r := range records {
		docs = append(docs, x.buildDocument(r, scope))
	}
	log.Infof("[VectorIndex] 开始向量化评论, product_id: %s, count: %d", scope, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for start := 0; start < len(docs); start += x.batchSize {
		end := start + x.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = d.Text
			}
			vectors, err := x.embedder.EmbedPassages(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed passages: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("[VectorIndex] 向量化失败, product_id: %s, error: %v", scope, err)
		return 0, err
	}

	if err := x.store.Upsert(ctx, docs); err != nil {
		log.Errorf("[VectorIndex] 写入向量存储失败, product_id: %s, error: %v", scope, err)
		return 0, fmt.Errorf("failed to upsert review vectors: %w", err)
	}
	log.Infof("[VectorIndex] 评论入库完成, product_id: %s, count: %d", scope, len(docs))
	return len(docs), nil
}

// Search 以 query 角色向量化问题，返回按距离升序排列的结果。
func (x *reviewIndex) Search(ctx context.Context, query string, k int, scope model.ProductScope) ([]model.RetrievedPassage, error) {
	if k <= 0 {
		return []model.RetrievedPassage{}, nil
	}
	vector, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	passages, err := x.store.KNN(ctx, vector, k, scope)
	if err != nil {
		return nil, err
	}
	if passages == nil {
		passages = []model.RetrievedPassage{}
	}
	log.Infof("[VectorIndex] 检索完成, product_id: %s, k: %d, hits: %d", scope, k, len(passages))
	return passages, nil
}

// Stats 返回索引中的评论总数。
func (x *reviewIndex) Stats(ctx context.Context) (Stats, error) {
	n, err := x.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalReviews: n, IndexName: x.store.Name()}, nil
}

func (x *reviewIndex) buildDocument(r model.ReviewRecord, scope model.ProductScope) model.ReviewDocument {
	reviewID := strings.TrimSpace(r.ReviewID)
	if reviewID == "" {
		reviewID = uuid.NewString()
	}
	rating := 0
	if r.Rating != nil {
		rating = *r.Rating
	}
	date := r.Date
	if date == "" {
		date = unknownDate
	}
	author := r.Author
	if author == "" {
		author = anonymousAuthor
	}
	return model.ReviewDocument{
		ID:           DocumentID(reviewID),
		ProductID:    string(scope),
		Text:         DocumentText(rating, r.Content),
		ReviewID:     reviewID,
		Rating:       rating,
		Date:         date,
		Author:       author,
		ModelVersion: x.model,
	}
}

// DocumentID 由评论 ID 推导出稳定的文档 ID。
func DocumentID(reviewID string) string {
	return "review_" + reviewID
}

// DocumentText 生成被向量化的评论文本。
func DocumentText(rating int, content string) string {
	return "평점: " + strconv.Itoa(rating) + "/5\n리뷰: " + content
}
