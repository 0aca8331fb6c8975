package index

import (
	"context"
	"math"
	"review-talk-go/internal/model"
	"sort"
	"sync"
)

// MemoryStore 是进程内的向量存储，暴力计算余弦距离。
type MemoryStore struct {
	mu    sync.RWMutex
	docs  []model.ReviewDocument
	byID  map[string]int
	label string
}

// NewMemoryStore 创建一个空的内存存储。
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{byID: make(map[string]int), label: name}
}

// Upsert 写入文档，ID 已存在时原位替换。
func (s *MemoryStore) Upsert(_ context.Context, docs []model.ReviewDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		d.Vector = append([]float32(nil), d.Vector...)
		if i, ok := s.byID[d.ID]; ok {
			s.docs[i] = d
			continue
		}
		s.byID[d.ID] = len(s.docs)
		s.docs = append(s.docs, d)
	}
	return nil
}

// KNN 返回最近的 k 条，距离相同时保持写入顺序。
func (s *MemoryStore) KNN(_ context.Context, vector []float32, k int, scope model.ProductScope) ([]model.RetrievedPassage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]model.RetrievedPassage, 0)
	for _, d := range s.docs {
		if !scope.IsGlobal() && d.ProductID != string(scope) {
			continue
		}
		hits = append(hits, model.RetrievedPassage{
			ID:       d.ID,
			Text:     d.Text,
			Metadata: d.Metadata(),
			Distance: 1 - cosine(vector, d.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count 返回文档总数。
func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

// Name 返回存储名称。
func (s *MemoryStore) Name() string { return s.label }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
