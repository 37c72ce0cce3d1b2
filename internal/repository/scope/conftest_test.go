package scope

import (
	"context"
	"testing"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/db"
)

// mockStore is an in-memory hash/set store.
type mockStore struct {
	hashes map[string]map[string]string
	sets   map[string][]string
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{hashes: map[string]map[string]string{}, sets: map[string][]string{}}
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.err != nil {
		return m.err
	}
	h := m.hashes[key]
	if h == nil {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	h, ok := m.hashes[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return h, nil
}

func (m *mockStore) Exists(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.hashes[key]
	return ok, nil
}

func (m *mockStore) SAdd(_ context.Context, key string, members ...string) error {
	if m.err != nil {
		return m.err
	}
	m.sets[key] = append(m.sets[key], members...)
	return nil
}

func (m *mockStore) SMembers(_ context.Context, key string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.sets[key]...), nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := newMockStore()
	r := New(ms, "test:")
	r.now = func() time.Time { return time.UnixMilli(42) }
	return r, ms
}
