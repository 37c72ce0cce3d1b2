package clipsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/query"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
)

// SearchOption narrows a search.
type SearchOption func(*searchParams)

type searchParams struct {
	topN       int
	minWidth   int
	minHeight  int
	extensions []string
}

// Limit sets the number of hits returned. Values above the client maximum are clamped.
func Limit(n int) SearchOption {
	return func(p *searchParams) { p.topN = n }
}

// MinSize keeps images at least width by height pixels. Zero disables a bound.
func MinSize(width, height int) SearchOption {
	return func(p *searchParams) {
		p.minWidth = width
		p.minHeight = height
	}
}

// Extensions keeps images encoded in one of the given formats ("png", "jpg", "jpeg", "gif", "bmp").
func Extensions(exts ...string) SearchOption {
	return func(p *searchParams) { p.extensions = append(p.extensions, exts...) }
}

// SearchText ranks the images of a dataset against a natural-language phrase.
// An empty datasetID searches every stored image.
func (c *Client) SearchText(ctx context.Context, datasetID, text string, opts ...SearchOption) (res Results, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_text", start, err) }()

	q, err := query.NewText(text)
	if err != nil {
		return Results{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	return c.search(ctx, q, datasetID, opts)
}

// SearchImage ranks the images of a dataset against an example image.
func (c *Client) SearchImage(ctx context.Context, datasetID string, data []byte, opts ...SearchOption) (res Results, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_image", start, err) }()

	q, err := query.NewImage(data)
	if err != nil {
		return Results{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	return c.search(ctx, q, datasetID, opts)
}

// search returns partial results together with ErrStoreFailure when the scan
// stopped early.
func (c *Client) search(ctx context.Context, q query.Query, datasetID string, opts []SearchOption) (Results, error) {
	var p searchParams
	for _, o := range opts {
		o(&p)
	}
	if p.topN < 0 {
		return Results{}, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidQuery)
	}
	if p.topN == 0 {
		p.topN = c.topN.def
	}
	if c.topN.max > 0 && p.topN > c.topN.max {
		p.topN = c.topN.max
	}

	filters, err := request.NewFilters(p.minWidth, p.minHeight, p.extensions)
	if err != nil {
		return Results{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	req, err := request.New(q, datasetID, p.topN, filters)
	if err != nil {
		return Results{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}

	ranking, err := c.searchSvc.Search(ctx, &req)
	if err != nil {
		if ranking.Partial {
			return rankingToResults(ranking), fmt.Errorf("search: %w", err)
		}
		return Results{}, fmt.Errorf("search: %w", err)
	}
	return rankingToResults(ranking), nil
}
