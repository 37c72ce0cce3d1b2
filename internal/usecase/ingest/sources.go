package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
)

// IngestDir walks root lazily and ingests every regular file below it.
// Walk errors stop the run and surface as enumeration errors.
func (s *Service) IngestDir(ctx context.Context, root string, opts ingest.Options) ([]ingest.Outcome, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", domain.ErrEnumeration, root, err)
	}
	return s.Ingest(ctx, walkFiles(abs), opts)
}

// IngestWorkspace ingests the files registered in a workspace. Each record is
// scoped to its workspace file id.
func (s *Service) IngestWorkspace(
	ctx context.Context, workspaceID string, opts ingest.Options,
) ([]ingest.Outcome, error) {
	if s.workspaces == nil {
		return nil, errors.New("workspace resolver is not configured")
	}
	files, err := s.workspaces.WorkspaceFiles(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %s: %w", workspaceID, err)
	}
	return s.Ingest(ctx, fromSlice(files), opts)
}

// IngestUpload ingests one uploaded image. Uploads are always copied into the content store.
func (s *Service) IngestUpload(ctx context.Context, id, scopeID string, data []byte) (ingest.Outcome, error) {
	item := ingest.Item{ID: id, ScopeID: scopeID, Data: data, ModTime: s.now()}
	outcomes, err := s.Ingest(ctx, fromSlice([]ingest.Item{item}), ingest.Options{CopyIntoStore: true})
	if err != nil {
		return ingest.Outcome{}, err
	}
	if len(outcomes) != 1 {
		return ingest.Outcome{}, fmt.Errorf("upload %s produced %d outcomes", id, len(outcomes))
	}
	return outcomes[0], nil
}

// walkFiles yields every regular file below root in lexical order.
func walkFiles(root string) iter.Seq2[ingest.Item, error] {
	return func(yield func(ingest.Item, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(ingest.Item{Path: path}, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(ingest.Item{}, err)
		}
	}
}

func fromSlice(items []ingest.Item) iter.Seq2[ingest.Item, error] {
	return func(yield func(ingest.Item, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}
