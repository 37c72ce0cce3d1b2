package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/domain"
)

func TestQuotaTracker_RejectWhenExceeded(t *testing.T) {
	q := NewQuotaTracker("test:", 100, 0, QuotaActionReject, zap.NewNop())
	q.Record(100)

	if err := q.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
}

func TestQuotaTracker_WarnWhenExceeded(t *testing.T) {
	q := NewQuotaTracker("test:", 100, 0, QuotaActionWarn, zap.NewNop())
	q.Record(200)

	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for warn action, got %v", err)
	}
}

func TestQuotaTracker_MonthlyReject(t *testing.T) {
	q := NewQuotaTracker("test:", 0, 500, QuotaActionReject, zap.NewNop())
	q.Record(500)

	if err := q.Check(context.Background()); !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
}

func TestQuotaTracker_Remaining(t *testing.T) {
	q := NewQuotaTracker("test:", 100, 1000, QuotaActionReject, zap.NewNop())
	q.Record(30)

	if got := q.RemainingDaily(); got != 70 {
		t.Errorf("RemainingDaily() = %d, want 70", got)
	}
	if got := q.RemainingMonthly(); got != 970 {
		t.Errorf("RemainingMonthly() = %d, want 970", got)
	}

	q.Record(500)
	if got := q.RemainingDaily(); got != 0 {
		t.Errorf("RemainingDaily() = %d, want 0 once exceeded", got)
	}
}

func TestQuotaTracker_Unlimited(t *testing.T) {
	q := NewQuotaTracker("test:", 0, 0, QuotaActionReject, zap.NewNop())
	q.Record(1_000_000)

	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("unlimited quota rejected: %v", err)
	}
	if q.RemainingDaily() != -1 || q.RemainingMonthly() != -1 {
		t.Error("expected -1 for unlimited")
	}
}

func TestQuotaTracker_DayRollover(t *testing.T) {
	now := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	q := NewQuotaTracker("test:", 10, 10, QuotaActionReject, zap.NewNop())
	q.now = func() time.Time { return now }
	q.lastDayReset = truncateToDay(now)
	q.lastMonthReset = truncateToMonth(now)

	q.Record(10)
	if err := q.Check(context.Background()); err == nil {
		t.Fatal("expected rejection before rollover")
	}

	now = now.Add(2 * time.Minute)
	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("expected counters reset after rollover, got %v", err)
	}
	if q.MonthlyUsed() != 0 {
		t.Errorf("monthly counter not reset: %d", q.MonthlyUsed())
	}
}

type mockQuotaStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockQuotaStore() *mockQuotaStore {
	return &mockQuotaStore{data: make(map[string]int64)}
}

func (m *mockQuotaStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockQuotaStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func TestQuotaTracker_WithStore_LoadsValues(t *testing.T) {
	store := newMockQuotaStore()
	q := NewQuotaTracker("clipsearch:quota:openai:", 1000, 10000, QuotaActionReject, zap.NewNop())
	store.data[q.dailyKey(q.lastDayReset)] = 300
	store.data[q.monthlyKey(q.lastMonthReset)] = 5000

	q.WithStore(context.Background(), store)

	if q.DailyUsed() != 300 {
		t.Errorf("DailyUsed() = %d, want 300", q.DailyUsed())
	}
	if q.MonthlyUsed() != 5000 {
		t.Errorf("MonthlyUsed() = %d, want 5000", q.MonthlyUsed())
	}
}

func TestQuotaTracker_Record_PersistsToStore(t *testing.T) {
	store := newMockQuotaStore()
	q := NewQuotaTracker("clipsearch:quota:openai:", 1000, 10000, QuotaActionWarn, zap.NewNop())
	q.WithStore(context.Background(), store)

	q.Record(2)
	q.Record(3)

	store.mu.Lock()
	daily := store.data[q.dailyKey(q.lastDayReset)]
	monthly := store.data[q.monthlyKey(q.lastMonthReset)]
	store.mu.Unlock()

	if daily != 5 || monthly != 5 {
		t.Errorf("stored daily=%d monthly=%d, want 5/5", daily, monthly)
	}
}

func TestQuotaTracker_StoreErrorsAreNotFatal(t *testing.T) {
	store := newMockQuotaStore()
	store.getErr = errors.New("connection refused")
	q := NewQuotaTracker("test:", 1000, 0, QuotaActionReject, zap.NewNop())
	q.WithStore(context.Background(), store)

	if q.DailyUsed() != 0 {
		t.Errorf("expected 0 on load error, got %d", q.DailyUsed())
	}

	store.mu.Lock()
	store.setErr = errors.New("write timeout")
	store.mu.Unlock()

	q.Record(50)
	if q.DailyUsed() != 50 {
		t.Errorf("in-memory counter = %d, want 50", q.DailyUsed())
	}
}

func TestQuotaTracker_KeyFormat(t *testing.T) {
	q := NewQuotaTracker("clipsearch:quota:openai:", 0, 0, QuotaActionWarn, zap.NewNop())
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	if got := q.dailyKey(day); got != "clipsearch:quota:openai:daily:2026-03-09" {
		t.Errorf("dailyKey() = %q", got)
	}
	if got := q.monthlyKey(day); got != "clipsearch:quota:openai:monthly:2026-03" {
		t.Errorf("monthlyKey() = %q", got)
	}
}
