package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"review-talk-go/internal/config"
	"review-talk-go/pkg/log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*seen = append(*seen, req.Input...)

		// 倒序返回，客户端必须按 index 重新排列
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func TestCreateEmbeddingsKeepsInputOrder(t *testing.T) {
	var seen []string
	srv := newTestServer(t, &seen)
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "secret", Model: "e5"})
	vectors, err := c.CreateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestCreateEmbeddingNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	log.Set(zap.New(core))
	defer log.Set(zap.NewNop())

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL})
	_, err := c.CreateEmbedding(context.Background(), "x")
	assert.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Message, "开始调用 Embedding API")
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "Embedding API 返回非 200 状态码")
}

func TestEncoderPrefixes(t *testing.T) {
	var seen []string
	srv := newTestServer(t, &seen)
	defer srv.Close()

	cfg := config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "secret", QueryPrefix: "query: ", PassagePrefix: "passage: "}
	enc := NewEncoder(NewClient(cfg), cfg)

	_, err := enc.EmbedQuery(context.Background(), "배터리 어때요?")
	require.NoError(t, err)
	_, err = enc.EmbedPassages(context.Background(), []string{"좋아요", "별로예요"})
	require.NoError(t, err)

	assert.Equal(t, []string{"query: 배터리 어때요?", "passage: 좋아요", "passage: 별로예요"}, seen)
}
