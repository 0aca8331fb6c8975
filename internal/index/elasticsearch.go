package index

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/es"

	"github.com/elastic/go-elasticsearch/v8"
)

type esStore struct {
	client    *elasticsearch.Client
	indexName string
}

// NewElasticsearchStore 创建基于 Elasticsearch dense_vector 的存储。
func NewElasticsearchStore(client *elasticsearch.Client, indexName string) Store {
	return &esStore{client: client, indexName: indexName}
}

func (s *esStore) Upsert(ctx context.Context, docs []model.ReviewDocument) error {
	for _, d := range docs {
		if err := es.IndexDocument(ctx, s.client, s.indexName, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *esStore) KNN(ctx context.Context, vector []float32, k int, scope model.ProductScope) ([]model.RetrievedPassage, error) {
	hits, err := es.Search(ctx, s.client, s.indexName, knnQuery(vector, k, scope))
	if errors.Is(err, es.ErrIndexNotFound) {
		return []model.RetrievedPassage{}, nil
	}
	if err != nil {
		return nil, err
	}
	passages := make([]model.RetrievedPassage, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, model.RetrievedPassage{
			ID:       h.Source.ID,
			Text:     h.Source.Text,
			Metadata: h.Source.Metadata(),
			Distance: scoreToDistance(h.Score),
		})
	}
	return passages, nil
}

func (s *esStore) Count(ctx context.Context) (int64, error) {
	n, err := es.Count(ctx, s.client, s.indexName)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return n, nil
}

func (s *esStore) Name() string { return s.indexName }

// knnQuery 构建带 product_id 过滤的 kNN 查询。
func knnQuery(vector []float32, k int, scope model.ProductScope) map[string]interface{} {
	numCandidates := k * 10
	if numCandidates < 50 {
		numCandidates = 50
	}
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": numCandidates,
	}
	if !scope.IsGlobal() {
		knn["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"product_id": string(scope)},
		}
	}
	return map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
}

// scoreToDistance 把 ES cosine 得分 (1+cos)/2 换算为余弦距离 1-cos。
func scoreToDistance(score float64) float64 {
	return 2 - 2*score
}
