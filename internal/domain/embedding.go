package domain

import (
	"context"
	"fmt"
)

// ImageEmbedding is the provider output for one image: the vector plus the decoded pixel size.
type ImageEmbedding struct {
	Vector []float32
	Width  int
	Height int
}

// TextEmbedder vectorizes a text phrase into the shared image-text space.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ImageEmbedder vectorizes raw image bytes and reports their pixel size.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte) (ImageEmbedding, error)
}

// Embedder is the shared vectorization contract between layers.
type Embedder interface {
	TextEmbedder
	ImageEmbedder
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PromptEmbedder is a domain decorator that renders text queries through a prompt template
// (e.g. "a photo of %s") before embedding. Images pass through untouched.
type PromptEmbedder struct {
	inner    Embedder
	template string
}

// NewPromptEmbedder creates a decorator around inner. The template must contain one %s verb.
func NewPromptEmbedder(inner Embedder, template string) *PromptEmbedder {
	return &PromptEmbedder{inner: inner, template: template}
}

// EmbedText renders the template and delegates to the inner embedder.
func (e *PromptEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedText(ctx, fmt.Sprintf(e.template, text))
	if err != nil {
		return nil, fmt.Errorf("prompt embed: %w", err)
	}
	return vec, nil
}

// EmbedImage delegates to the inner embedder.
func (e *PromptEmbedder) EmbedImage(ctx context.Context, data []byte) (ImageEmbedding, error) {
	emb, err := e.inner.EmbedImage(ctx, data)
	if err != nil {
		return ImageEmbedding{}, fmt.Errorf("prompt embed image: %w", err)
	}
	return emb, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *PromptEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
