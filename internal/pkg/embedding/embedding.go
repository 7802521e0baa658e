package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	einoembedding "github.com/cloudwego/eino/components/embedding"
)

// ErrUnavailable 向量服务不可用
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder 向量化边界接口
//
// Matcher 通过该接口做语义匹配，实现可能基于远端服务，
// 调用失败时由调用方降级到关键词匹配。
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// einoEmbedder 适配 eino 的 embedding 组件
type einoEmbedder struct {
	embedder einoembedding.Embedder
}

// NewEinoEmbedder 基于 eino embedding 组件创建 Embedder
func NewEinoEmbedder(embedder einoembedding.Embedder) Embedder {
	return &einoEmbedder{embedder: embedder}
}

func (e *einoEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding for text of length %d", len(text))
	}
	return vectors[0], nil
}

// Probed 带可用性闩锁的 Embedder 包装
//
// 首次失败后标记为不可用，后续调用直接返回 ErrUnavailable，
// 不再逐次重试远端服务。
type Probed struct {
	inner Embedder

	mu          sync.Mutex
	unavailable bool
}

// NewProbed 包装 inner；inner 为 nil 时视为永久不可用
func NewProbed(inner Embedder) *Probed {
	return &Probed{
		inner:       inner,
		unavailable: inner == nil,
	}
}

func (p *Probed) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	p.mu.Lock()
	if p.unavailable {
		p.mu.Unlock()
		return nil, ErrUnavailable
	}
	p.mu.Unlock()

	vector, err := p.inner.EmbedQuery(ctx, text)
	if err != nil {
		p.mu.Lock()
		p.unavailable = true
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vector, nil
}

// Available 当前是否可用
func (p *Probed) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.unavailable
}

// CosineSimilarity 计算余弦相似度，零向量返回 0
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
