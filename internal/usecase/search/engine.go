package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/scope"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
	"github.com/U201311/clip-image-search-v2/internal/metrics"
)

// DefaultChunkSize is the number of records decoded per scan step.
const DefaultChunkSize = 8192

const closeTimeout = 5 * time.Second

// Engine ranks stored records against a query by exact cosine similarity.
// It scans the filtered corpus chunk by chunk and keeps only the best topN,
// so memory stays bounded by chunkSize*dim + topN.
type Engine struct {
	store     FeatureStore
	codec     domain.Codec
	chunkSize int
	logger    *zap.Logger
}

// NewEngine creates an engine. The codec fixes the feature dimension and storage width.
func NewEngine(store FeatureStore, codec domain.Codec) *Engine {
	return &Engine{
		store:     store,
		codec:     codec,
		chunkSize: DefaultChunkSize,
		logger:    zap.NewNop(),
	}
}

// WithChunkSize sets the scan chunk size.
func (e *Engine) WithChunkSize(n int) *Engine {
	if n > 0 {
		e.chunkSize = n
	}
	return e
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Rank returns the topN records most similar to query, best first.
//
// A store failure mid-scan returns the ranking accumulated so far with
// Partial set, together with an error wrapping domain.ErrStoreFailure.
func (e *Engine) Rank(
	ctx context.Context, query []float32, sel scope.Selector,
	filters request.Filters, topN int,
) (result.Ranking, error) {
	dim := e.codec.Dim()
	if len(query) != dim {
		return result.Ranking{}, fmt.Errorf("%w: query has %d components, want %d",
			domain.ErrVectorDimMismatch, len(query), dim)
	}
	q, ok := normalized(query)
	if !ok {
		return result.Ranking{}, fmt.Errorf("%w: query vector has zero norm", domain.ErrInvalidQuery)
	}
	if topN <= 0 {
		return result.Ranking{Matches: []result.Match{}}, nil
	}

	expr, err := buildExpression(sel, filters)
	if err != nil {
		return result.Ranking{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}

	cur, err := e.store.Scan(ctx, expr, e.chunkSize)
	if err != nil {
		return result.Ranking{}, fmt.Errorf("open scan: %w", err)
	}
	defer e.release(ctx, cur)

	s := &scan{
		query:  q,
		dim:    dim,
		codec:  e.codec,
		top:    newTopN(topN),
		matrix: make([]float32, 0, e.chunkSize*dim),
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.ranking(true), err //nolint:wrapcheck // caller's own cancellation
		}

		recs, err := cur.Next(ctx)
		if err != nil {
			metrics.SearchPartialTotal.Inc()
			e.logger.Warn("Similarity scan interrupted",
				zap.Int("scanned", s.scanned),
				zap.Int("chunks", s.chunks),
				zap.Error(err),
			)
			if !errors.Is(err, domain.ErrStoreFailure) {
				err = fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
			}
			return s.ranking(true), fmt.Errorf("scan chunk %d: %w", s.chunks+1, err)
		}
		if len(recs) == 0 {
			break
		}
		s.consume(recs)
	}

	e.logger.Debug("Similarity scan completed",
		zap.Int("chunks", s.chunks),
		zap.Int("scanned", s.scanned),
		zap.Int("excluded", s.excluded),
		zap.Int("topn", topN),
	)
	return s.ranking(false), nil
}

func (e *Engine) release(ctx context.Context, cur domimg.Cursor) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := cur.Close(closeCtx); err != nil {
		e.logger.Warn("Failed to close scan cursor", zap.Error(err))
	}
}

// buildExpression pushes the selector and metadata filters down to the store.
func buildExpression(sel scope.Selector, f request.Filters) (filter.Expression, error) {
	conds := make([]filter.Condition, 0, 5)

	status, err := filter.NewRange(domimg.AttrStatus, filter.Exactly(domimg.StatusActive))
	if err != nil {
		return filter.Expression{}, fmt.Errorf("status filter: %w", err)
	}
	conds = append(conds, status)

	if f.MinWidth > 0 {
		c, err := filter.NewRange(domimg.AttrWidth, filter.AtLeast(float64(f.MinWidth)))
		if err != nil {
			return filter.Expression{}, fmt.Errorf("width filter: %w", err)
		}
		conds = append(conds, c)
	}
	if f.MinHeight > 0 {
		c, err := filter.NewRange(domimg.AttrHeight, filter.AtLeast(float64(f.MinHeight)))
		if err != nil {
			return filter.Expression{}, fmt.Errorf("height filter: %w", err)
		}
		conds = append(conds, c)
	}
	if len(f.Extensions) > 0 {
		exts := make([]string, len(f.Extensions))
		for i, ext := range f.Extensions {
			exts[i] = string(ext)
		}
		c, err := filter.NewAnyOf(domimg.AttrExtension, exts)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("extension filter: %w", err)
		}
		conds = append(conds, c)
	}
	if ids := sel.IDs(); len(ids) > 0 {
		c, err := filter.NewAnyOf(domimg.AttrScopeID, ids)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("scope filter: %w", err)
		}
		conds = append(conds, c)
	}

	expr, err := filter.NewExpression(conds...)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("build expression: %w", err)
	}
	return expr, nil
}

// scan is the per-request accumulator.
type scan struct {
	query    []float32
	dim      int
	codec    domain.Codec
	top      *topN
	matrix   []float32
	rows     []int
	scores   []float32
	seq      int
	chunks   int
	scanned  int
	excluded int
}

// consume decodes one chunk into the reusable matrix, normalizes every row,
// scores all rows against the query and merges them into the heap.
func (s *scan) consume(recs []domimg.Record) {
	s.chunks++
	metrics.SearchChunksTotal.Inc()

	need := len(recs) * s.dim
	if cap(s.matrix) < need {
		s.matrix = make([]float32, 0, need)
	}
	s.matrix = s.matrix[:need]
	s.rows = s.rows[:0]

	n := 0
	for i := range recs {
		row := s.matrix[n*s.dim : (n+1)*s.dim]
		if err := s.codec.DecodeInto(row, recs[i].Feature()); err != nil || !normalizeInPlace(row) {
			s.excluded++
			continue
		}
		s.rows = append(s.rows, i)
		n++
	}

	s.scores = dotRows(s.scores[:0], s.matrix[:n*s.dim], s.query, s.dim)
	for j, score := range s.scores {
		seq := s.seq
		s.seq++
		if !s.top.admits(score, seq) {
			continue
		}
		rec := &recs[s.rows[j]]
		s.top.push(candidate{match: result.New(rec, clamp(score)), score: score, seq: seq})
	}

	s.scanned += n
	metrics.SearchCandidatesTotal.Add(float64(n))
	if excluded := len(recs) - n; excluded > 0 {
		metrics.SearchExcludedTotal.Add(float64(excluded))
	}
}

func (s *scan) ranking(partial bool) result.Ranking {
	return result.Ranking{
		Matches:  s.top.sorted(),
		Partial:  partial,
		Scanned:  s.scanned,
		Excluded: s.excluded,
	}
}

// dotRows computes one dot product per dim-wide row of matrix against q.
func dotRows(dst, matrix, q []float32, dim int) []float32 {
	for off := 0; off+dim <= len(matrix); off += dim {
		row := matrix[off : off+dim]
		var sum float32
		for i := range row {
			sum += row[i] * q[i]
		}
		dst = append(dst, sum)
	}
	return dst
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// normalizeInPlace scales v to unit length. It returns false for zero or non-finite norms.
func normalizeInPlace(v []float32) bool {
	norm := l2Norm(v)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return true
}

func normalized(v []float32) ([]float32, bool) {
	out := make([]float32, len(v))
	copy(out, v)
	if !normalizeInPlace(out) {
		return nil, false
	}
	return out, true
}

// clamp keeps float32 rounding from pushing a cosine outside [-1, 1].
func clamp(score float32) float64 {
	return max(-1, min(1, float64(score)))
}
