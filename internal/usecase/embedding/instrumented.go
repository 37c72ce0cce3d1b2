package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/metrics"
)

// QuotaChecker is the local interface for call quota enforcement.
type QuotaChecker interface {
	Check(ctx context.Context) error
	Record(n int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEmbedder wraps an Embedder with quota enforcement, dimension checks and logging.
// Transport metrics (requests, duration) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	dim      int
	quota    QuotaChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. dim is the expected vector length (0 disables the check).
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, dim int) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		dim:      dim,
		logger:   zap.NewNop(),
	}
}

// WithQuota enables call quota enforcement.
func (p *InstrumentedEmbedder) WithQuota(q QuotaChecker) *InstrumentedEmbedder {
	p.quota = q
	return p
}

// WithLogger sets the logger.
func (p *InstrumentedEmbedder) WithLogger(l *zap.Logger) *InstrumentedEmbedder {
	if l != nil {
		p.logger = l
	}
	return p
}

// EmbedText checks the quota, delegates and validates the vector length.
func (p *InstrumentedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := p.checkQuota(ctx, "text"); err != nil {
		return nil, err
	}

	start := time.Now()
	vec, err := p.inner.EmbedText(ctx, text)
	duration := time.Since(start)
	if err != nil {
		p.logFailure("text", duration, err)
		return nil, fmt.Errorf("embed text: %w", err)
	}
	p.recordCall()

	if err := p.checkDim(len(vec)); err != nil {
		return nil, err
	}

	p.logger.Debug("Text embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(vec)),
	)
	return vec, nil
}

// EmbedImage checks the quota, delegates and validates the vector length and image size.
func (p *InstrumentedEmbedder) EmbedImage(ctx context.Context, data []byte) (domain.ImageEmbedding, error) {
	if err := p.checkQuota(ctx, "image"); err != nil {
		return domain.ImageEmbedding{}, err
	}

	start := time.Now()
	emb, err := p.inner.EmbedImage(ctx, data)
	duration := time.Since(start)
	if err != nil {
		p.logFailure("image", duration, err)
		return domain.ImageEmbedding{}, fmt.Errorf("embed image: %w", err)
	}
	p.recordCall()

	if err := p.checkDim(len(emb.Vector)); err != nil {
		return domain.ImageEmbedding{}, err
	}
	if emb.Width <= 0 || emb.Height <= 0 {
		return domain.ImageEmbedding{}, fmt.Errorf("image size %dx%d: %w",
			emb.Width, emb.Height, domain.ErrEmbeddingProviderError)
	}

	p.logger.Debug("Image embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("bytes", len(data)),
		zap.Int("width", emb.Width),
		zap.Int("height", emb.Height),
	)
	return emb, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) checkQuota(ctx context.Context, kind string) error {
	if p.quota == nil {
		return nil
	}
	if err := p.quota.Check(ctx); err != nil {
		p.logger.Error("Embedding quota exceeded",
			zap.String("provider", p.provider),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return fmt.Errorf("quota check: %w", err)
	}
	return nil
}

func (p *InstrumentedEmbedder) recordCall() {
	if p.quota == nil {
		return
	}
	p.quota.Record(1)
	metrics.EmbeddingQuotaRemaining.WithLabelValues(p.provider, "daily").Set(float64(p.quota.RemainingDaily()))
	metrics.EmbeddingQuotaRemaining.WithLabelValues(p.provider, "monthly").Set(float64(p.quota.RemainingMonthly()))
}

func (p *InstrumentedEmbedder) checkDim(n int) error {
	if p.dim > 0 && n != p.dim {
		return fmt.Errorf("provider returned %d dimensions, want %d: %w",
			n, p.dim, domain.ErrEmbeddingProviderError)
	}
	return nil
}

func (p *InstrumentedEmbedder) logFailure(kind string, duration time.Duration, err error) {
	p.logger.Error("Embedding request failed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("kind", kind),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
}
