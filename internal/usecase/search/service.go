package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/scope"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/query"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
	"github.com/U201311/clip-image-search-v2/internal/metrics"
)

// Service answers text and image similarity searches.
type Service struct {
	ranker   Ranker
	datasets DatasetResolver
	embed    Embedder
	logger   *zap.Logger
}

// New creates a search service.
func New(ranker Ranker, datasets DatasetResolver, embed Embedder) *Service {
	return &Service{ranker: ranker, datasets: datasets, embed: embed, logger: zap.NewNop()}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Search embeds the query, resolves the dataset scope and ranks the corpus.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Ranking, error) {
	start := time.Now()
	kind, vec, err := s.vectorize(ctx, req.Query())
	if err != nil {
		return result.Ranking{}, err
	}
	defer func() {
		metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	sel, err := s.resolveScope(ctx, req.DatasetID())
	if err != nil {
		return result.Ranking{}, err
	}
	if sel.IsEmpty() {
		return result.Ranking{Matches: []result.Match{}}, nil
	}

	ranking, err := s.ranker.Rank(ctx, vec, sel, req.Filters(), req.TopN())
	if err != nil {
		return ranking, fmt.Errorf("rank: %w", err)
	}
	return ranking, nil
}

func (s *Service) vectorize(ctx context.Context, q query.Query) (string, []float32, error) {
	switch q := q.(type) {
	case query.Text:
		vec, err := s.embed.EmbedText(ctx, q.Phrase())
		if err != nil {
			return "text", nil, fmt.Errorf("vectorize text query: %w", err)
		}
		return "text", vec, nil
	case query.Image:
		emb, err := s.embed.EmbedImage(ctx, q.Data())
		if err != nil {
			return "image", nil, fmt.Errorf("vectorize image query: %w", err)
		}
		return "image", emb.Vector, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported query type %T", domain.ErrInvalidQuery, q)
	}
}

func (s *Service) resolveScope(ctx context.Context, datasetID string) (scope.Selector, error) {
	if datasetID == "" {
		return scope.All(), nil
	}
	members, found, err := s.datasets.DatasetMembers(ctx, datasetID)
	if err != nil {
		return scope.Selector{}, fmt.Errorf("resolve dataset %s: %w", datasetID, err)
	}
	if !found {
		return scope.Selector{}, fmt.Errorf("dataset %s: %w", datasetID, domain.ErrScopeNotFound)
	}
	s.logger.Debug("Dataset scope resolved",
		zap.String("dataset_id", datasetID),
		zap.Int("members", len(members)),
	)
	return scope.Members(members), nil
}
