package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/U201311/clip-image-search-v2/internal/db"
	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
)

const defaultCursorIdle = 5 * time.Minute

// store is the consumer interface for image records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Aggregate(ctx context.Context, q *db.AggregateQuery) (db.Cursor, error)
}

// Repo implements the feature store on top of Redis hashes and an FT index.
type Repo struct {
	store      store
	prefix     string
	cursorIdle time.Duration
	newID      func() string
}

// New creates an image repository. prefix namespaces every key it writes.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, cursorIdle: defaultCursorIdle, newID: uuid.NewString}
}

// WithCursorIdle sets how long the server keeps an abandoned scan cursor.
func (r *Repo) WithCursorIdle(d time.Duration) *Repo {
	if d > 0 {
		r.cursorIdle = d
	}
	return r
}

// EnsureIndex creates the record index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	name := r.indexName()
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	if err := r.store.CreateIndex(ctx, buildIndex(name, r.keyPrefix())); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// Insert writes a record under a fresh store-assigned id in a single HSET.
func (r *Repo) Insert(ctx context.Context, rec *domimg.Record) (string, error) {
	id := r.newID()
	key := r.key(id)
	if err := r.store.HSet(ctx, key, buildHashFields(id, rec)); err != nil {
		return "", fmt.Errorf("hset %s: %w: %w", key, domain.ErrStoreFailure, err)
	}
	return id, nil
}

// Get returns a record by its store id.
func (r *Repo) Get(ctx context.Context, id string) (domimg.Record, error) {
	key := r.key(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domimg.Record{}, domain.ErrNotFound
		}
		return domimg.Record{}, fmt.Errorf("hgetall %s: %w: %w", key, domain.ErrStoreFailure, err)
	}
	rec := parseHashFields(m)
	return rec.WithID(id), nil
}

// Delete removes a record by its store id.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.key(id)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w: %w", key, domain.ErrStoreFailure, err)
	}
	return nil
}

// Scan opens a filtered cursor over the records, chunkSize rows per batch.
func (r *Repo) Scan(ctx context.Context, expr filter.Expression, chunkSize int) (domimg.Cursor, error) {
	inner, err := r.store.Aggregate(ctx, &db.AggregateQuery{
		IndexName: r.indexName(),
		Filters:   expr,
		Load:      loadFields,
		BatchSize: chunkSize,
		MaxIdle:   r.cursorIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w: %w", r.indexName(), domain.ErrStoreFailure, err)
	}
	return &Cursor{inner: inner}, nil
}

func (r *Repo) keyPrefix() string { return r.prefix + "image:" }

func (r *Repo) key(id string) string { return r.keyPrefix() + id }

func (r *Repo) indexName() string { return r.prefix + "image:idx" }
