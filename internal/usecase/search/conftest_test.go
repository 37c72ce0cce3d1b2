package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/scope"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
)

// --- Feature store ---

type mockCursor struct {
	batches [][]domimg.Record
	pos     int
	failAt  int
	err     error
	closed  int
}

func (c *mockCursor) Next(_ context.Context) ([]domimg.Record, error) {
	if c.err != nil && c.pos == c.failAt {
		return nil, c.err
	}
	if c.pos >= len(c.batches) {
		return nil, nil
	}
	b := c.batches[c.pos]
	c.pos++
	return b, nil
}

func (c *mockCursor) Close(_ context.Context) error {
	c.closed++
	return nil
}

type mockStore struct {
	cursor    *mockCursor
	scanErr   error
	scans     int
	lastExpr  filter.Expression
	lastChunk int
}

func newMockStore(batches ...[]domimg.Record) *mockStore {
	return &mockStore{cursor: &mockCursor{batches: batches, failAt: -1}}
}

func (m *mockStore) Scan(_ context.Context, expr filter.Expression, chunkSize int) (domimg.Cursor, error) {
	m.scans++
	m.lastExpr = expr
	m.lastChunk = chunkSize
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.cursor, nil
}

// --- Dataset resolver ---

type mockDatasets struct {
	members map[string][]string
	err     error
}

func (m *mockDatasets) DatasetMembers(_ context.Context, id string) ([]string, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	members, ok := m.members[id]
	return members, ok, nil
}

// --- Embedder ---

type mockEmbedder struct {
	vec        []float32
	err        error
	textCalls  int
	imageCalls int
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	m.textCalls++
	return m.vec, m.err
}

func (m *mockEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.ImageEmbedding, error) {
	m.imageCalls++
	return domain.ImageEmbedding{Vector: m.vec, Width: 1, Height: 1}, m.err
}

// --- Ranker ---

type mockRanker struct {
	ranking result.Ranking
	err     error
	called  bool
	lastSel scope.Selector
	lastVec []float32
	lastN   int
}

func (m *mockRanker) Rank(
	_ context.Context, q []float32, sel scope.Selector, _ request.Filters, topN int,
) (result.Ranking, error) {
	m.called = true
	m.lastSel = sel
	m.lastVec = q
	m.lastN = topN
	return m.ranking, m.err
}

// --- Builders ---

func testCodec(t *testing.T, dim int) domain.Codec {
	t.Helper()
	c, err := domain.NewCodec(domain.StorageFloat32, dim)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func testRecord(t *testing.T, codec domain.Codec, id string, vec ...float32) domimg.Record {
	t.Helper()
	feature, err := codec.Encode(vec)
	if err != nil {
		t.Fatalf("encode %s: %v", id, err)
	}
	return domimg.Reconstruct(id, domimg.Meta{
		ScopeID:     "scope-" + id,
		Location:    fmt.Sprintf("/data/%s.png", id),
		Format:      domimg.FormatPNG,
		Width:       64,
		Height:      48,
		FileSize:    1024,
		CreatedTime: time.Unix(1700000000, 0),
	}, domimg.StatusActive, feature)
}

func matchIDs(r result.Ranking) []string {
	ids := make([]string, len(r.Matches))
	for i := range r.Matches {
		ids[i] = r.Matches[i].ID()
	}
	return ids
}
