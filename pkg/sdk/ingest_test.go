package clipsearch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
)

func TestIngest_Items(t *testing.T) {
	var seen []ingest.Item
	var gotOpts ingest.Options
	c := &Client{ingestSvc: &mockIngestUC{
		ingestFn: func(_ context.Context, items iter.Seq2[ingest.Item, error], opts ingest.Options) ([]ingest.Outcome, error) {
			gotOpts = opts
			var out []ingest.Outcome
			for it, err := range items {
				if err != nil {
					t.Fatalf("unexpected enumeration error: %v", err)
				}
				seen = append(seen, it)
				out = append(out, ingest.NewInserted(it.Identifier(), "rec-"+it.Identifier()))
			}
			return out, nil
		},
	}}

	out, err := c.Ingest(context.Background(), []Item{
		{ID: "one", Data: []byte{1}},
		{Path: "/img/two.png", ScopeID: "s2"},
	}, IntoScope("default"), CopyIntoStore())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if gotOpts.ScopeID != "default" || !gotOpts.CopyIntoStore {
		t.Errorf("options = %+v", gotOpts)
	}
	if len(seen) != 2 || seen[1].Path != "/img/two.png" || seen[1].ScopeID != "s2" {
		t.Errorf("items = %+v", seen)
	}
	if len(out) != 2 || out[0].ID != "one" || out[1].StoreID != "rec-/img/two.png" || out[1].Status != StatusInserted {
		t.Errorf("outcomes = %+v", out)
	}
}

func TestIngestDir_EnumerationError(t *testing.T) {
	c := &Client{ingestSvc: &mockIngestUC{
		dirFn: func(_ context.Context, root string, _ ingest.Options) ([]ingest.Outcome, error) {
			return []ingest.Outcome{
				ingest.NewInserted(root+"/a.png", "r1"),
				ingest.NewSkipped(root+"/b.txt", fmt.Errorf("%w: %w", domain.ErrInputSkipped, domain.ErrUnsupportedFormat)),
			}, fmt.Errorf("%w: permission denied", domain.ErrEnumeration)
		},
	}}

	out, err := c.IngestDir(context.Background(), "/photos")
	if !errors.Is(err, ErrEnumeration) {
		t.Fatalf("expected ErrEnumeration, got %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("outcomes = %+v", out)
	}
	if out[1].Status != StatusSkipped || !errors.Is(out[1].Err, ErrUnsupportedFormat) {
		t.Errorf("skipped outcome = %+v", out[1])
	}
}

func TestIngestWorkspace(t *testing.T) {
	c := &Client{ingestSvc: &mockIngestUC{
		workspaceFn: func(_ context.Context, id string, opts ingest.Options) ([]ingest.Outcome, error) {
			if id != "w1" || !opts.CopyIntoStore {
				t.Errorf("id/opts = %q/%+v", id, opts)
			}
			return []ingest.Outcome{ingest.NewFailed("f1", domain.ErrStoreFailure)}, nil
		},
	}}

	out, err := c.IngestWorkspace(context.Background(), "w1", CopyIntoStore())
	if err != nil {
		t.Fatalf("IngestWorkspace: %v", err)
	}
	if len(out) != 1 || out[0].Status != StatusFailed || !errors.Is(out[0].Err, ErrStoreFailure) {
		t.Errorf("outcomes = %+v", out)
	}
}

func TestIngestUpload(t *testing.T) {
	c := &Client{ingestSvc: &mockIngestUC{
		uploadFn: func(_ context.Context, id, scopeID string, data []byte) (ingest.Outcome, error) {
			if id != "u1" || scopeID != "u1" || len(data) != 2 {
				t.Errorf("upload args = %q %q %d", id, scopeID, len(data))
			}
			return ingest.NewSkipped(id, fmt.Errorf("%w: %w", domain.ErrInputSkipped, domain.ErrDuplicateContent)), nil
		},
	}}

	o, err := c.IngestUpload(context.Background(), "u1", "u1", []byte{1, 2})
	if err != nil {
		t.Fatalf("IngestUpload: %v", err)
	}
	if o.Status != StatusSkipped || !errors.Is(o.Err, ErrDuplicateContent) {
		t.Errorf("outcome = %+v", o)
	}

	c.ingestSvc.(*mockIngestUC).uploadFn = func(context.Context, string, string, []byte) (ingest.Outcome, error) {
		return ingest.Outcome{}, context.Canceled
	}
	if _, err := c.IngestUpload(context.Background(), "u2", "u2", []byte{1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
