package image

import "context"

// Cursor streams stored records in batches.
type Cursor interface {
	// Next returns the next batch. An empty batch with a nil error means the scan is exhausted.
	Next(ctx context.Context) ([]Record, error)
	// Close releases the scan. It is safe to call after exhaustion.
	Close(ctx context.Context) error
}
