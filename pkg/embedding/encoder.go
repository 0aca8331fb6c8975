package embedding

import (
	"context"
	"review-talk-go/internal/config"
)

// Encoder applies the asymmetric query/passage framing expected by E5-style models.
type Encoder struct {
	client        Client
	queryPrefix   string
	passagePrefix string
}

// NewEncoder wraps a client with the prefixes from config.
func NewEncoder(client Client, cfg config.EmbeddingConfig) *Encoder {
	return &Encoder{
		client:        client,
		queryPrefix:   cfg.QueryPrefix,
		passagePrefix: cfg.PassagePrefix,
	}
}

// EmbedQuery embeds a search question.
func (e *Encoder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.client.CreateEmbedding(ctx, e.queryPrefix+text)
}

// EmbedPassages embeds stored content in one batch call.
func (e *Encoder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	framed := make([]string, len(texts))
	for i, t := range texts {
		framed[i] = e.passagePrefix + t
	}
	return e.client.CreateEmbeddings(ctx, framed)
}
