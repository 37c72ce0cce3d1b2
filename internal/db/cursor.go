package db

import (
	"context"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
)

// AggregateQuery is the input for a cursor-based filtered scan.
type AggregateQuery struct {
	IndexName string
	Filters   filter.Expression
	// Load lists the hash fields returned for every row.
	Load []string
	// BatchSize is the number of rows per Next call.
	BatchSize int
	// MaxIdle lets the server reclaim a cursor the client abandoned.
	MaxIdle time.Duration
}

// Row is one document returned by a scan, as field -> raw value.
type Row map[string]string

// Cursor yields the rows of a scan in server order.
// Next returns an empty batch with done=true once the scan is exhausted.
// Close releases server resources and is safe to call more than once.
type Cursor interface {
	Next(ctx context.Context) (rows []Row, done bool, err error)
	Close(ctx context.Context) error
}
