package clipsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
)

// Embedder vectorizes text and images into one shared space.
// EmbedImage also reports the decoded pixel size of the image.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte) (ImageEmbedding, error)
}

// ImageEmbedding is the provider output for one image.
type ImageEmbedding struct {
	Vector []float32
	Width  int
	Height int
}

// Hit is one ranked image.
type Hit struct {
	ID        string
	ScopeID   string
	Location  string
	Width     int
	Height    int
	Extension string
	Score     float64
}

// Results is the ranked output of a search, best hit first.
type Results struct {
	Hits []Hit
	// Partial is set when the scan stopped early on a store fault.
	// Hits then hold the best matches among the rows read before the fault.
	Partial bool
	// Scanned counts rows compared against the query.
	Scanned int
	// Excluded counts rows dropped for a zero norm or an undecodable feature.
	Excluded int
}

// Status is the processing outcome of one ingested item.
type Status string

// Outcome status values.
const (
	StatusInserted Status = Status(ingest.StatusInserted)
	StatusSkipped  Status = Status(ingest.StatusSkipped)
	StatusFailed   Status = Status(ingest.StatusFailed)
)

// Outcome reports what happened to one ingested item.
type Outcome struct {
	ID      string
	Status  Status
	StoreID string
	// Err is the skip reason or failure. Nil for inserted items.
	Err error
}

// Item is one image handed to Ingest. Either Path or Data is set.
// Items without a Path are always copied into the content store (see
// WithContentRoot and WithMinio), whether or not CopyIntoStore is given, and
// so are deduplicated by content.
type Item struct {
	ID      string
	ScopeID string
	Path    string
	Data    []byte
	ModTime time.Time
}

func rankingToResults(r result.Ranking) Results {
	hits := make([]Hit, len(r.Matches))
	for i := range r.Matches {
		m := &r.Matches[i]
		hits[i] = Hit{
			ID:        m.ID(),
			ScopeID:   m.ScopeID(),
			Location:  m.Location(),
			Width:     m.Width(),
			Height:    m.Height(),
			Extension: string(m.Format()),
			Score:     m.Score(),
		}
	}
	return Results{Hits: hits, Partial: r.Partial, Scanned: r.Scanned, Excluded: r.Excluded}
}

func toOutcome(o ingest.Outcome) Outcome {
	return Outcome{
		ID:      o.ID(),
		Status:  Status(o.Status()),
		StoreID: o.StoreID(),
		Err:     o.Err(),
	}
}

func toOutcomes(in []ingest.Outcome) []Outcome {
	out := make([]Outcome, len(in))
	for i, o := range in {
		out[i] = toOutcome(o)
	}
	return out
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, providerError(err)
	}
	return vec, nil
}

func (a *embedderAdapter) EmbedImage(ctx context.Context, data []byte) (domain.ImageEmbedding, error) {
	emb, err := a.inner.EmbedImage(ctx, data)
	if err != nil {
		return domain.ImageEmbedding{}, providerError(err)
	}
	return domain.ImageEmbedding(emb), nil
}

// providerError classifies a custom embedder failure. Context errors and
// domain sentinels pass through.
func providerError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, domain.ErrEmbeddingProviderError), errors.Is(err, domain.ErrEmbeddingQuotaExceeded),
		errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrUnsupportedFormat):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent adapter
	}
	return nil
}
