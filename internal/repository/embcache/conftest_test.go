package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/db"
	"github.com/U201311/clip-image-search-v2/internal/domain"
)

type mockEmbedder struct {
	text       []float32
	image      domain.ImageEmbedding
	err        error
	textCalls  int
	imageCalls int
	healthErr  error
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	m.textCalls++
	return m.text, m.err
}

func (m *mockEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.ImageEmbedding, error) {
	m.imageCalls++
	return m.image, m.err
}

func (m *mockEmbedder) HealthCheck(_ context.Context) error { return m.healthErr }

// mockKVStore is an in-memory key-value store.
type mockKVStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
	ce := New(inner, ms, "test:emb_cache:ViT-B/32:", nil, zap.NewNop())
	return ce, ms
}
