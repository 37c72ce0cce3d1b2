package image

import (
	"context"
	"fmt"

	"github.com/U201311/clip-image-search-v2/internal/db"
	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
)

// Cursor yields decoded records from a store scan.
type Cursor struct {
	inner db.Cursor
}

// Next returns the next non-empty batch. An empty batch with a nil error means the scan is exhausted.
func (c *Cursor) Next(ctx context.Context) ([]domimg.Record, error) {
	for {
		rows, done, err := c.inner.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreFailure, err)
		}
		if done {
			return nil, nil
		}
		if len(rows) == 0 {
			continue
		}

		recs := make([]domimg.Record, len(rows))
		for i, row := range rows {
			recs[i] = parseHashFields(row)
		}
		return recs, nil
	}
}

// Close releases the server-side cursor.
func (c *Cursor) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}
