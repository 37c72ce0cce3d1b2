package search

import (
	"context"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/scope"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
)

// FeatureStore opens filtered scans over stored image records.
type FeatureStore interface {
	Scan(ctx context.Context, expr filter.Expression, chunkSize int) (domimg.Cursor, error)
}

// DatasetResolver maps a dataset id to its member scope ids.
// The bool is false when the dataset is not registered.
type DatasetResolver interface {
	DatasetMembers(ctx context.Context, id string) ([]string, bool, error)
}

// Ranker ranks the stored corpus against a query vector.
type Ranker interface {
	Rank(
		ctx context.Context, query []float32, sel scope.Selector,
		filters request.Filters, topN int,
	) (result.Ranking, error)
}

// Embedder vectorizes text and image queries.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte) (domain.ImageEmbedding, error)
}
