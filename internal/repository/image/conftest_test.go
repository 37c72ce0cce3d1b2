package image

import (
	"context"
	"testing"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/db"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn     func(ctx context.Context, key string) (map[string]string, error)
	delFn         func(ctx context.Context, key string) error
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	aggregateFn   func(ctx context.Context, q *db.AggregateQuery) (db.Cursor, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) Aggregate(ctx context.Context, q *db.AggregateQuery) (db.Cursor, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, q)
	}
	return &rowCursor{}, nil
}

// rowCursor replays fixed batches and then reports done.
type rowCursor struct {
	batches [][]db.Row
	failAt  int // 1-based batch index that returns err; 0 disables
	err     error
	calls   int
	closed  bool
}

func (c *rowCursor) Next(_ context.Context) ([]db.Row, bool, error) {
	c.calls++
	if c.failAt > 0 && c.calls == c.failAt {
		return nil, false, c.err
	}
	if len(c.batches) == 0 {
		return nil, true, nil
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	return b, false, nil
}

func (c *rowCursor) Close(_ context.Context) error {
	c.closed = true
	return nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	r := New(ms, "test:")
	r.newID = func() string { return "rec-1" }
	return r, ms
}

func testRecord(t *testing.T) domimg.Record {
	t.Helper()
	rec, err := domimg.New("", domimg.Meta{
		ScopeID:     "ws-file-9",
		Location:    "/data/png/ab/abcd.png",
		Format:      domimg.FormatPNG,
		Width:       640,
		Height:      480,
		FileSize:    2048,
		CreatedTime: time.UnixMilli(1_700_000_000_000).UTC(),
	}, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 8)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	return rec
}
