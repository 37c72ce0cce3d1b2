package ingest

import (
	"context"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
)

// ImageEmbedder vectorizes image bytes and reports their pixel size.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte) (domain.ImageEmbedding, error)
}

// RecordStore persists image records.
type RecordStore interface {
	Insert(ctx context.Context, rec *domimg.Record) (string, error)
}

// ContentStore keeps image copies under content-addressed keys.
// PutIfAbsent returns content.ErrExists when the key is already stored.
type ContentStore interface {
	PutIfAbsent(ctx context.Context, key string, data []byte, modTime time.Time) (string, error)
	Delete(ctx context.Context, key string) error
}

// WorkspaceResolver lists the files registered in a workspace.
type WorkspaceResolver interface {
	WorkspaceFiles(ctx context.Context, workspaceID string) ([]ingest.Item, error)
}
