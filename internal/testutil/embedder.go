// Package testutil 提供测试共用的假实现和数据库帮助函数。
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const hashDims = 32

// HashEmbedder 按字符哈希生成确定性的向量，并记录收到的输入。
type HashEmbedder struct {
	mu       sync.Mutex
	Queries  []string
	Passages []string
	Fail     bool
}

// EmbedQuery 记录并向量化查询。
func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Fail {
		return nil, errors.New("embedding backend unavailable")
	}
	e.Queries = append(e.Queries, text)
	return Vector(text), nil
}

// EmbedPassages 记录并向量化段落。
func (e *HashEmbedder) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Fail {
		return nil, errors.New("embedding backend unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e.Passages = append(e.Passages, t)
		out[i] = Vector(t)
	}
	return out, nil
}

// Vector 把文本中每个字符计入对应的维度，常数维度保证向量非零。
func Vector(text string) []float32 {
	v := make([]float32, hashDims)
	v[0] = 1
	for _, r := range strings.ToLower(text) {
		v[1+int(r)%(hashDims-1)]++
	}
	return v
}
