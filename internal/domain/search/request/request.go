package request

import (
	"fmt"

	"github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/query"
)

// Search parameter limits.
const (
	DefaultTopN = 10
	MaxTopN     = 1000
)

// Filters are the metadata predicates a search can carry. Zero values disable a predicate.
type Filters struct {
	MinWidth   int
	MinHeight  int
	Extensions []image.Format
}

// IsEmpty reports whether no predicate is set.
func (f Filters) IsEmpty() bool {
	return f.MinWidth <= 0 && f.MinHeight <= 0 && len(f.Extensions) == 0
}

// NewFilters validates raw filter input. Extensions accept any case and "jpeg".
func NewFilters(minWidth, minHeight int, extensions []string) (Filters, error) {
	if minWidth < 0 {
		return Filters{}, fmt.Errorf("minimum_width must not be negative")
	}
	if minHeight < 0 {
		return Filters{}, fmt.Errorf("minimum_height must not be negative")
	}
	var formats []image.Format
	seen := make(map[image.Format]struct{}, len(extensions))
	for _, ext := range extensions {
		f, err := image.ParseFormat(ext)
		if err != nil {
			return Filters{}, fmt.Errorf("extension_choice: %w", err)
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		formats = append(formats, f)
	}
	return Filters{MinWidth: minWidth, MinHeight: minHeight, Extensions: formats}, nil
}

// Request is a validated search.
type Request struct {
	q         query.Query
	datasetID string
	topN      int
	filters   Filters
}

// New validates and normalizes search parameters.
// topN 0 means DefaultTopN; values above MaxTopN are clamped. An empty datasetID searches everything.
func New(q query.Query, datasetID string, topN int, filters Filters) (Request, error) {
	if q == nil {
		return Request{}, fmt.Errorf("query is required")
	}
	if topN < 0 {
		return Request{}, fmt.Errorf("topn must not be negative")
	}
	if topN == 0 {
		topN = DefaultTopN
	}
	if topN > MaxTopN {
		topN = MaxTopN
	}
	return Request{q: q, datasetID: datasetID, topN: topN, filters: filters}, nil
}

// Query returns the text or image query.
func (r *Request) Query() query.Query { return r.q }

// DatasetID returns the dataset restricting the search ("" for none).
func (r *Request) DatasetID() string { return r.datasetID }

// TopN returns the number of matches to return.
func (r *Request) TopN() int { return r.topN }

// Filters returns the metadata predicates.
func (r *Request) Filters() Filters { return r.filters }
