package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	"github.com/U201311/clip-image-search-v2/internal/storage/content"
)

// --- Embedder ---

type mockEmbedder struct {
	mu     sync.Mutex
	vec    []float32
	width  int
	height int
	err    error
	fn     func(ctx context.Context, data []byte) error
	calls  int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{vec: []float32{1, 0}, width: 8, height: 6}
}

func (m *mockEmbedder) EmbedImage(ctx context.Context, data []byte) (domain.ImageEmbedding, error) {
	m.mu.Lock()
	m.calls++
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, data); err != nil {
			return domain.ImageEmbedding{}, err
		}
	}
	if m.err != nil {
		return domain.ImageEmbedding{}, m.err
	}
	return domain.ImageEmbedding{Vector: m.vec, Width: m.width, Height: m.height}, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Record store ---

type mockRecords struct {
	mu      sync.Mutex
	records []domimg.Record
	err     error
	failN   int
}

func (m *mockRecords) Insert(_ context.Context, rec *domimg.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil && m.failN != 0 {
		if m.failN > 0 {
			m.failN--
		}
		return "", m.err
	}
	id := fmt.Sprintf("rec-%d", len(m.records)+1)
	m.records = append(m.records, rec.WithID(id))
	return id, nil
}

func (m *mockRecords) byID(id string) (domimg.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID() == id {
			return r, true
		}
	}
	return domimg.Record{}, false
}

// --- Content store ---

type mockContent struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	mtimes  map[string]time.Time
	deleted []string
}

func newMockContent() *mockContent {
	return &mockContent{blobs: map[string][]byte{}, mtimes: map[string]time.Time{}}
}

func (m *mockContent) PutIfAbsent(_ context.Context, key string, data []byte, modTime time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; ok {
		return "", content.ErrExists
	}
	m.blobs[key] = data
	m.mtimes[key] = modTime
	return "mem://" + key, nil
}

func (m *mockContent) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// --- Workspaces ---

type mockWorkspaces struct {
	files map[string][]ingest.Item
}

func (m *mockWorkspaces) WorkspaceFiles(_ context.Context, id string) ([]ingest.Item, error) {
	files, ok := m.files[id]
	if !ok {
		return nil, domain.ErrScopeNotFound
	}
	return files, nil
}

// --- Builders ---

func testCodec(t *testing.T) domain.Codec {
	t.Helper()
	c, err := domain.NewCodec(domain.StorageFloat32, 2)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func newTestService(t *testing.T, embed *mockEmbedder, records *mockRecords) *Service {
	t.Helper()
	return New(embed, records, testCodec(t))
}

// pngBytes returns a distinct small PNG per shade.
func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.RGBA{R: shade, G: 10, B: 20, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func seqOf(items ...ingest.Item) iter.Seq2[ingest.Item, error] {
	return fromSlice(items)
}

func statuses(outcomes []ingest.Outcome) []ingest.Status {
	out := make([]ingest.Status, len(outcomes))
	for i := range outcomes {
		out[i] = outcomes[i].Status()
	}
	return out
}
