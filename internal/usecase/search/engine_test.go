package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"testing"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/scope"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/filter"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
)

func TestRank_DimMismatchBeforeScan(t *testing.T) {
	store := newMockStore()
	e := NewEngine(store, testCodec(t, 3))

	_, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, 5)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if store.scans != 0 {
		t.Error("store must not be scanned")
	}
}

func TestRank_ZeroNormQuery(t *testing.T) {
	store := newMockStore()
	e := NewEngine(store, testCodec(t, 2))

	_, err := e.Rank(context.Background(), []float32{0, 0}, scope.All(), request.Filters{}, 5)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if store.scans != 0 {
		t.Error("store must not be scanned")
	}
}

func TestRank_NonPositiveTopN(t *testing.T) {
	store := newMockStore()
	e := NewEngine(store, testCodec(t, 2))

	for _, n := range []int{0, -3} {
		r, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, n)
		if err != nil {
			t.Fatalf("topN=%d: %v", n, err)
		}
		if len(r.Matches) != 0 {
			t.Errorf("topN=%d: expected no matches, got %d", n, len(r.Matches))
		}
	}
	if store.scans != 0 {
		t.Error("store must not be scanned")
	}
}

func TestRank_OrdersByCosine(t *testing.T) {
	codec := testCodec(t, 2)
	store := newMockStore([]domimg.Record{
		testRecord(t, codec, "up", 0, 1),
		testRecord(t, codec, "diag", 3, 3),
		testRecord(t, codec, "back", -1, 0),
		testRecord(t, codec, "right", 5, 0),
	})
	e := NewEngine(store, codec)

	r, err := e.Rank(context.Background(), []float32{2, 0}, scope.All(), request.Filters{}, 3)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	if got := matchIDs(r); !slices.Equal(got, []string{"right", "diag", "up"}) {
		t.Fatalf("order = %v", got)
	}
	if math.Abs(r.Matches[0].Score()-1) > 1e-6 {
		t.Errorf("score[0] = %f, want 1", r.Matches[0].Score())
	}
	if math.Abs(r.Matches[1].Score()-math.Sqrt2/2) > 1e-6 {
		t.Errorf("score[1] = %f, want 0.7071", r.Matches[1].Score())
	}
	if r.Scanned != 4 || r.Excluded != 0 || r.Partial {
		t.Errorf("stats = %+v", r)
	}
	if store.cursor.closed != 1 {
		t.Errorf("cursor closed %d times", store.cursor.closed)
	}
}

func TestRank_TiesKeepArrivalOrder(t *testing.T) {
	codec := testCodec(t, 2)
	store := newMockStore(
		[]domimg.Record{testRecord(t, codec, "a", 1, 1), testRecord(t, codec, "b", 1, 1)},
		[]domimg.Record{testRecord(t, codec, "c", 1, 1), testRecord(t, codec, "d", 1, 1)},
	)
	e := NewEngine(store, codec).WithChunkSize(2)

	r, err := e.Rank(context.Background(), []float32{1, 1}, scope.All(), request.Filters{}, 3)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got := matchIDs(r); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v, want arrival order on ties", got)
	}
}

func TestRank_ExcludesBadRows(t *testing.T) {
	codec := testCodec(t, 2)
	short := domimg.Reconstruct("short", domimg.Meta{Format: domimg.FormatPNG}, domimg.StatusActive, []byte{1, 2, 3})
	store := newMockStore([]domimg.Record{
		testRecord(t, codec, "zero", 0, 0),
		short,
		testRecord(t, codec, "ok", 1, 0),
	})
	e := NewEngine(store, codec)

	r, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, 10)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got := matchIDs(r); !slices.Equal(got, []string{"ok"}) {
		t.Errorf("matches = %v", got)
	}
	if r.Excluded != 2 || r.Scanned != 1 {
		t.Errorf("excluded=%d scanned=%d", r.Excluded, r.Scanned)
	}
}

func TestRank_PartialOnCursorFault(t *testing.T) {
	codec := testCodec(t, 2)
	store := newMockStore(
		[]domimg.Record{testRecord(t, codec, "a", 1, 0), testRecord(t, codec, "b", 0, 1)},
		[]domimg.Record{testRecord(t, codec, "never", 1, 0)},
	)
	store.cursor.failAt = 1
	store.cursor.err = errors.New("connection reset")
	e := NewEngine(store, codec)

	r, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, 5)
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if !r.Partial {
		t.Error("ranking must be flagged partial")
	}
	if got := matchIDs(r); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("partial matches = %v", got)
	}
	if store.cursor.closed != 1 {
		t.Errorf("cursor closed %d times", store.cursor.closed)
	}
}

func TestRank_ScanOpenError(t *testing.T) {
	store := newMockStore()
	store.scanErr = domain.ErrStoreFailure
	e := NewEngine(store, testCodec(t, 2))

	if _, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, 5); !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
}

func TestRank_EmptyCorpus(t *testing.T) {
	store := newMockStore()
	e := NewEngine(store, testCodec(t, 2))

	r, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(r.Matches) != 0 || r.Partial {
		t.Errorf("ranking = %+v", r)
	}
	if store.cursor.closed != 1 {
		t.Error("cursor not closed")
	}
}

func TestRank_Canceled(t *testing.T) {
	codec := testCodec(t, 2)
	store := newMockStore([]domimg.Record{testRecord(t, codec, "a", 1, 0)})
	e := NewEngine(store, codec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Rank(ctx, []float32{1, 0}, scope.All(), request.Filters{}, 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.cursor.closed != 1 {
		t.Error("cursor not closed on cancellation")
	}
}

func TestRank_PushesFiltersDown(t *testing.T) {
	store := newMockStore()
	e := NewEngine(store, testCodec(t, 2)).WithChunkSize(128)
	filters := request.Filters{
		MinWidth:   100,
		MinHeight:  50,
		Extensions: []domimg.Format{domimg.FormatPNG, domimg.FormatJPG},
	}

	_, err := e.Rank(context.Background(), []float32{1, 0}, scope.Members([]string{"f1", "f2"}), filters, 5)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if store.lastChunk != 128 {
		t.Errorf("chunk size = %d", store.lastChunk)
	}

	conds := store.lastExpr.Conditions()
	byKey := make(map[string]filter.Condition, len(conds))
	for _, c := range conds {
		byKey[c.Key()] = c
	}
	if len(byKey) != 5 {
		t.Fatalf("conditions = %d, want 5", len(byKey))
	}

	status := byKey[domimg.AttrStatus].Range()
	if status.GTE() == nil || *status.GTE() != 1 || status.LTE() == nil || *status.LTE() != 1 {
		t.Error("status must be exactly 1")
	}
	if w := byKey[domimg.AttrWidth].Range().GTE(); w == nil || *w != 100 {
		t.Error("width must be >= 100")
	}
	if h := byKey[domimg.AttrHeight].Range().GTE(); h == nil || *h != 50 {
		t.Error("height must be >= 50")
	}
	if got := byKey[domimg.AttrExtension].Values(); !slices.Equal(got, []string{"png", "jpg"}) {
		t.Errorf("extensions = %v", got)
	}
	if got := byKey[domimg.AttrScopeID].Values(); !slices.Equal(got, []string{"f1", "f2"}) {
		t.Errorf("scope ids = %v", got)
	}
}

func TestRank_NoFiltersOnlyStatus(t *testing.T) {
	store := newMockStore()
	e := NewEngine(store, testCodec(t, 2))

	if _, err := e.Rank(context.Background(), []float32{1, 0}, scope.All(), request.Filters{}, 5); err != nil {
		t.Fatalf("Rank: %v", err)
	}
	conds := store.lastExpr.Conditions()
	if len(conds) != 1 || conds[0].Key() != domimg.AttrStatus {
		t.Errorf("conditions = %+v", conds)
	}
	if store.lastChunk != DefaultChunkSize {
		t.Errorf("chunk size = %d, want %d", store.lastChunk, DefaultChunkSize)
	}
}

func TestRank_MatchesFullSort(t *testing.T) {
	const (
		dim   = 16
		total = 500
		topN  = 25
	)
	codec := testCodec(t, dim)
	rng := rand.New(rand.NewPCG(7, 11))

	recs := make([]domimg.Record, total)
	var prev []float32
	for i := range recs {
		vec := make([]float32, dim)
		if i%4 == 3 {
			// Every fourth record repeats its predecessor, so ties cross chunk boundaries.
			copy(vec, prev)
		} else {
			for j := range vec {
				vec[j] = rng.Float32()*2 - 1
			}
		}
		prev = vec
		recs[i] = testRecord(t, codec, fmt.Sprintf("r%03d", i), vec...)
	}
	q := make([]float32, dim)
	for j := range q {
		q[j] = rng.Float32()*2 - 1
	}

	qn, _ := normalized(q)
	type ref struct {
		id    string
		score float32
	}
	refs := make([]ref, total)
	for i := range recs {
		row, err := codec.Decode(recs[i].Feature())
		if err != nil {
			t.Fatal(err)
		}
		normalizeInPlace(row)
		refs[i] = ref{id: recs[i].ID(), score: dotRows(nil, row, qn, dim)[0]}
	}
	sort.SliceStable(refs, func(a, b int) bool { return refs[a].score > refs[b].score })

	want := make([]string, topN)
	for i := range want {
		want[i] = refs[i].id
	}

	for _, chunk := range []int{1, 3, 7, 64, total} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			var batches [][]domimg.Record
			for off := 0; off < total; off += chunk {
				batches = append(batches, recs[off:min(off+chunk, total)])
			}
			store := newMockStore(batches...)
			e := NewEngine(store, codec).WithChunkSize(chunk)

			r, err := e.Rank(context.Background(), q, scope.All(), request.Filters{}, topN)
			if err != nil {
				t.Fatalf("Rank: %v", err)
			}
			if store.lastChunk != chunk {
				t.Errorf("chunk size = %d, want %d", store.lastChunk, chunk)
			}
			if got := matchIDs(r); !slices.Equal(got, want) {
				t.Fatalf("top-%d mismatch:\n got %v\nwant %v", topN, got, want)
			}
			if r.Scanned != total {
				t.Errorf("scanned = %d", r.Scanned)
			}
		})
	}
}

func TestTopN_Bounded(t *testing.T) {
	h := newTopN(2)
	for i, s := range []float32{0.1, 0.9, 0.5, 0.9, 0.2} {
		if h.admits(s, i) {
			h.push(candidate{score: s, seq: i})
		}
	}
	if len(h.items) != 2 {
		t.Fatalf("heap size = %d", len(h.items))
	}
	if h.items[0].score != 0.9 || h.items[0].seq != 3 {
		t.Errorf("root = %+v, want later 0.9", h.items[0])
	}
}
