package scope

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/db"
	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
)

// store is the consumer interface for scope lookups (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Repo resolves datasets to member ids and workspaces to their files.
//
// Layout:
//
//	<prefix>dataset:<id>          HASH  name, created_at
//	<prefix>dataset:<id>:files    SET   member scope ids
//	<prefix>workspace:<id>:files  HASH  file id -> absolute path
type Repo struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates a scope repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, now: time.Now}
}

// DatasetMembers returns the member ids of a dataset. found is false for an unregistered dataset.
func (r *Repo) DatasetMembers(ctx context.Context, datasetID string) ([]string, bool, error) {
	key := r.datasetKey(datasetID)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("check dataset %s: %w", datasetID, err)
	}
	if !exists {
		return nil, false, nil
	}

	members, err := r.store.SMembers(ctx, r.datasetFilesKey(datasetID))
	if err != nil {
		return nil, true, fmt.Errorf("dataset %s members: %w", datasetID, err)
	}
	sort.Strings(members)
	return members, true, nil
}

// RegisterDataset creates or updates a dataset and adds members to it.
func (r *Repo) RegisterDataset(ctx context.Context, datasetID, name string, members ...string) error {
	if datasetID == "" {
		return fmt.Errorf("dataset id is required")
	}
	fields := map[string]string{
		"name":       name,
		"created_at": strconv.FormatInt(r.now().UnixMilli(), 10),
	}
	if err := r.store.HSet(ctx, r.datasetKey(datasetID), fields); err != nil {
		return fmt.Errorf("register dataset %s: %w", datasetID, err)
	}
	if err := r.store.SAdd(ctx, r.datasetFilesKey(datasetID), members...); err != nil {
		return fmt.Errorf("add dataset %s members: %w", datasetID, err)
	}
	return nil
}

// WorkspaceFiles lists the files of a workspace ordered by file id.
// Each item is identified and scoped by its file id.
func (r *Repo) WorkspaceFiles(ctx context.Context, workspaceID string) ([]ingest.Item, error) {
	files, err := r.store.HGetAll(ctx, r.workspaceFilesKey(workspaceID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("workspace %s: %w", workspaceID, domain.ErrScopeNotFound)
		}
		return nil, fmt.Errorf("workspace %s files: %w", workspaceID, err)
	}

	items := make([]ingest.Item, 0, len(files))
	for fileID, path := range files {
		items = append(items, ingest.Item{ID: fileID, ScopeID: fileID, Path: path})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// RegisterWorkspaceFiles records file id -> path entries for a workspace.
func (r *Repo) RegisterWorkspaceFiles(ctx context.Context, workspaceID string, files map[string]string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace id is required")
	}
	if len(files) == 0 {
		return nil
	}
	if err := r.store.HSet(ctx, r.workspaceFilesKey(workspaceID), files); err != nil {
		return fmt.Errorf("register workspace %s files: %w", workspaceID, err)
	}
	return nil
}

func (r *Repo) datasetKey(id string) string { return r.prefix + "dataset:" + id }

func (r *Repo) datasetFilesKey(id string) string { return r.datasetKey(id) + ":files" }

func (r *Repo) workspaceFilesKey(id string) string { return r.prefix + "workspace:" + id + ":files" }
