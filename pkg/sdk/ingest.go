package clipsearch

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
)

// IngestOption controls one ingestion run.
type IngestOption func(*ingest.Options)

// IntoScope writes scopeID to every record whose item names no scope of its own.
func IntoScope(scopeID string) IngestOption {
	return func(o *ingest.Options) { o.ScopeID = scopeID }
}

// CopyIntoStore copies accepted files into the content store and skips content already stored.
func CopyIntoStore() IngestOption {
	return func(o *ingest.Options) { o.CopyIntoStore = true }
}

func ingestOptions(opts []IngestOption) ingest.Options {
	var o ingest.Options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Ingest embeds and stores items. Outcomes follow input order, one per item.
// Items given as Data without a Path are copied into the content store.
func (c *Client) Ingest(ctx context.Context, items []Item, opts ...IngestOption) (out []Outcome, err error) {
	start := time.Now()
	defer func() {
		c.obs.observeOutcomes("ingest", out)
		c.obs.observe("ingest", start, err)
	}()

	outcomes, err := c.ingestSvc.Ingest(ctx, itemSeq(items), ingestOptions(opts))
	out = toOutcomes(outcomes)
	if err != nil {
		return out, fmt.Errorf("ingest: %w", err)
	}
	return out, nil
}

// IngestDir ingests every regular file below root, in lexical path order.
// On an enumeration error the outcomes of the files already dispatched are
// returned together with ErrEnumeration.
func (c *Client) IngestDir(ctx context.Context, root string, opts ...IngestOption) (out []Outcome, err error) {
	start := time.Now()
	defer func() {
		c.obs.observeOutcomes("ingest_dir", out)
		c.obs.observe("ingest_dir", start, err)
	}()

	outcomes, err := c.ingestSvc.IngestDir(ctx, root, ingestOptions(opts))
	out = toOutcomes(outcomes)
	if err != nil {
		return out, fmt.Errorf("ingest dir %s: %w", root, err)
	}
	return out, nil
}

// IngestWorkspace ingests the files registered for a workspace. Each record is
// scoped to its workspace file id.
func (c *Client) IngestWorkspace(
	ctx context.Context, workspaceID string, opts ...IngestOption,
) (out []Outcome, err error) {
	start := time.Now()
	defer func() {
		c.obs.observeOutcomes("ingest_workspace", out)
		c.obs.observe("ingest_workspace", start, err)
	}()

	outcomes, err := c.ingestSvc.IngestWorkspace(ctx, workspaceID, ingestOptions(opts))
	out = toOutcomes(outcomes)
	if err != nil {
		return out, fmt.Errorf("ingest workspace %s: %w", workspaceID, err)
	}
	return out, nil
}

// IngestUpload stores one uploaded image under scopeID. Uploads are always
// copied into the content store.
func (c *Client) IngestUpload(ctx context.Context, id, scopeID string, data []byte) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			c.obs.observeOutcomes("ingest_upload", []Outcome{out})
		}
		c.obs.observe("ingest_upload", start, err)
	}()

	o, err := c.ingestSvc.IngestUpload(ctx, id, scopeID, data)
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest upload %s: %w", id, err)
	}
	return toOutcome(o), nil
}

func itemSeq(items []Item) iter.Seq2[ingest.Item, error] {
	return func(yield func(ingest.Item, error) bool) {
		for _, it := range items {
			if !yield(ingest.Item(it), nil) {
				return
			}
		}
	}
}
