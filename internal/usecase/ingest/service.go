package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/U201311/clip-image-search-v2/internal/domain"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	"github.com/U201311/clip-image-search-v2/internal/metrics"
	"github.com/U201311/clip-image-search-v2/internal/storage/content"
)

// DefaultMaxFileBytes caps the size of a single source image.
const DefaultMaxFileBytes = 64 << 20

const cleanupTimeout = 5 * time.Second

// Service runs the ingestion pipeline: read, sniff, embed, copy, insert.
type Service struct {
	embed        ImageEmbedder
	records      RecordStore
	codec        domain.Codec
	content      ContentStore
	workspaces   WorkspaceResolver
	workers      int
	queueSize    int
	maxFileBytes int64
	now          func() time.Time
	logger       *zap.Logger
}

// New creates an ingestion service. The codec fixes the feature dimension and storage width.
func New(embed ImageEmbedder, records RecordStore, codec domain.Codec) *Service {
	return &Service{
		embed:        embed,
		records:      records,
		codec:        codec,
		maxFileBytes: DefaultMaxFileBytes,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
}

// WithContentStore enables CopyIntoStore.
func (s *Service) WithContentStore(c ContentStore) *Service {
	s.content = c
	return s
}

// WithWorkspaces enables IngestWorkspace.
func (s *Service) WithWorkspaces(w WorkspaceResolver) *Service {
	s.workspaces = w
	return s
}

// WithWorkers sets the worker count. Zero means GOMAXPROCS.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithQueueSize sets the job queue capacity. Zero means twice the worker count.
func (s *Service) WithQueueSize(n int) *Service {
	if n > 0 {
		s.queueSize = n
	}
	return s
}

// WithMaxFileBytes sets the largest accepted source file.
func (s *Service) WithMaxFileBytes(n int64) *Service {
	if n > 0 {
		s.maxFileBytes = n
	}
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// ErrNoContentStore is returned when a run needs the content store and none is set.
var ErrNoContentStore = errors.New("content store is not configured")

type job struct {
	idx  int
	item ingest.Item
}

// Ingest processes items on a bounded worker pool and returns one outcome per
// dispatched item, in input order.
//
// An enumeration error stops dispatching, lets dispatched items finish and is
// returned wrapped in domain.ErrEnumeration together with the outcomes so far.
// Cancellation during dispatch behaves the same way with ctx.Err().
func (s *Service) Ingest(
	ctx context.Context, items iter.Seq2[ingest.Item, error], opts ingest.Options,
) ([]ingest.Outcome, error) {
	if opts.CopyIntoStore && s.content == nil {
		return nil, ErrNoContentStore
	}

	workers := s.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := s.queueSize
	if queueSize <= 0 {
		queueSize = 2 * workers
	}

	var (
		mu       sync.Mutex
		outcomes = make([]ingest.Outcome, 0)
		jobs     = make(chan job, queueSize)
		g        errgroup.Group
	)

	for range workers {
		g.Go(func() error {
			for j := range jobs {
				o := s.process(ctx, j.item, opts)
				mu.Lock()
				outcomes[j.idx] = o
				mu.Unlock()
			}
			return nil
		})
	}

	dispatchErr := s.dispatch(ctx, items, jobs, func() int {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, ingest.Outcome{})
		return len(outcomes) - 1
	}, func(idx int) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = outcomes[:idx]
	})
	close(jobs)
	_ = g.Wait()

	s.logSummary(outcomes, dispatchErr)
	return outcomes, dispatchErr
}

// dispatch feeds the job queue until the sequence ends, fails or ctx is done.
// reserve allocates an outcome slot; release drops a slot that was never sent.
func (s *Service) dispatch(
	ctx context.Context, items iter.Seq2[ingest.Item, error], jobs chan<- job,
	reserve func() int, release func(idx int),
) error {
	for item, err := range items {
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEnumeration, err)
		}
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // caller's own cancellation
		}

		idx := reserve()
		select {
		case jobs <- job{idx: idx, item: item}:
		case <-ctx.Done():
			release(idx)
			return ctx.Err() //nolint:wrapcheck // caller's own cancellation
		}
	}
	return nil
}

// process runs one item through the pipeline. It never returns an error:
// every failure is folded into the outcome.
func (s *Service) process(ctx context.Context, item ingest.Item, opts ingest.Options) ingest.Outcome {
	start := time.Now()
	o := s.processItem(ctx, item, opts)

	metrics.IngestItemDuration.Observe(time.Since(start).Seconds())
	metrics.IngestOutcomesTotal.WithLabelValues(string(o.Status())).Inc()

	switch o.Status() {
	case ingest.StatusFailed:
		s.logger.Warn("Ingestion item failed", zap.String("item", o.ID()), zap.Error(o.Err()))
	case ingest.StatusSkipped:
		s.logger.Debug("Ingestion item skipped", zap.String("item", o.ID()), zap.Error(o.Err()))
	default:
		s.logger.Debug("Ingestion item inserted",
			zap.String("item", o.ID()),
			zap.String("store_id", o.StoreID()),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return o
}

func (s *Service) processItem(ctx context.Context, item ingest.Item, opts ingest.Options) ingest.Outcome {
	id := item.Identifier()

	src, err := s.load(item)
	if err != nil {
		return ingest.NewSkipped(id, err)
	}

	format, err := domimg.Detect(src.data)
	if err != nil {
		return ingest.NewSkipped(id, err)
	}

	// Path-less items have no location of their own and are always copied.
	copyIntoStore := opts.CopyIntoStore || src.path == ""
	if copyIntoStore && s.content == nil {
		return ingest.NewFailed(id, fmt.Errorf("item has no path: %w", ErrNoContentStore))
	}

	emb, err := s.embed.EmbedImage(ctx, src.data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ingest.NewFailed(id, ctxErr)
		}
		return ingest.NewSkipped(id, err)
	}
	if emb.Width <= 0 || emb.Height <= 0 {
		return ingest.NewSkipped(id, fmt.Errorf("image size %dx%d: %w",
			emb.Width, emb.Height, domain.ErrEmbeddingProviderError))
	}
	feature, err := s.codec.Encode(emb.Vector)
	if err != nil {
		return ingest.NewSkipped(id, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err))
	}

	location := src.path
	var blobKey string
	if copyIntoStore {
		key := content.Key(content.Digest(src.data), string(format))
		loc, err := s.content.PutIfAbsent(ctx, key, src.data, src.modTime)
		if err != nil {
			if errors.Is(err, content.ErrExists) {
				return ingest.NewSkipped(id, fmt.Errorf("%w: %s", domain.ErrDuplicateContent, key))
			}
			return ingest.NewFailed(id, fmt.Errorf("copy into content store: %w", err))
		}
		location = loc
		blobKey = key
	}

	scopeID := item.ScopeID
	if scopeID == "" {
		scopeID = opts.ScopeID
	}
	rec, err := domimg.New("", domimg.Meta{
		ScopeID:     scopeID,
		Location:    location,
		Format:      format,
		Width:       emb.Width,
		Height:      emb.Height,
		FileSize:    int64(len(src.data)),
		CreatedTime: src.modTime,
	}, feature, s.codec.ByteLen())
	if err != nil {
		s.removeBlob(ctx, blobKey)
		return ingest.NewSkipped(id, fmt.Errorf("%w: %w", domain.ErrInputSkipped, err))
	}

	storeID, err := s.records.Insert(ctx, &rec)
	if err != nil {
		s.removeBlob(ctx, blobKey)
		return ingest.NewFailed(id, err)
	}
	return ingest.NewInserted(id, storeID)
}

// removeBlob undoes a content copy so a retry is not taken for a duplicate.
func (s *Service) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.content.Delete(cleanupCtx, key); err != nil {
		s.logger.Error("Failed to remove orphaned content", zap.String("key", key), zap.Error(err))
	}
}

type source struct {
	path    string
	data    []byte
	modTime time.Time
}

// load returns the item bytes, reading from disk when the item carries a path.
func (s *Service) load(item ingest.Item) (source, error) {
	if item.Data != nil {
		if int64(len(item.Data)) > s.maxFileBytes {
			return source{}, fmt.Errorf("%w: %d bytes exceeds limit %d",
				domain.ErrInputSkipped, len(item.Data), s.maxFileBytes)
		}
		modTime := item.ModTime
		if modTime.IsZero() {
			modTime = s.now()
		}
		path := ""
		if item.Path != "" {
			path, _ = filepath.Abs(item.Path)
		}
		return source{path: path, data: item.Data, modTime: modTime}, nil
	}

	if item.Path == "" {
		return source{}, fmt.Errorf("%w: item has neither path nor data", domain.ErrInputSkipped)
	}
	path, err := filepath.Abs(item.Path)
	if err != nil {
		return source{}, fmt.Errorf("%w: resolve %s: %w", domain.ErrInputSkipped, item.Path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return source{}, fmt.Errorf("%w: %w", domain.ErrInputSkipped, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return source{}, fmt.Errorf("%w: %w", domain.ErrInputSkipped, err)
	}
	if !info.Mode().IsRegular() {
		return source{}, fmt.Errorf("%w: %s is not a regular file", domain.ErrInputSkipped, path)
	}
	if info.Size() > s.maxFileBytes {
		return source{}, fmt.Errorf("%w: %s is %d bytes, limit %d",
			domain.ErrInputSkipped, path, info.Size(), s.maxFileBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, s.maxFileBytes+1))
	if err != nil {
		return source{}, fmt.Errorf("%w: read %s: %w", domain.ErrInputSkipped, path, err)
	}
	if int64(len(data)) > s.maxFileBytes {
		return source{}, fmt.Errorf("%w: %s grew past limit %d", domain.ErrInputSkipped, path, s.maxFileBytes)
	}
	return source{path: path, data: data, modTime: info.ModTime()}, nil
}

func (s *Service) logSummary(outcomes []ingest.Outcome, err error) {
	var inserted, skipped, failed int
	for i := range outcomes {
		switch outcomes[i].Status() {
		case ingest.StatusInserted:
			inserted++
		case ingest.StatusSkipped:
			skipped++
		case ingest.StatusFailed:
			failed++
		}
	}
	fields := []zap.Field{
		zap.Int("items", len(outcomes)),
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	}
	if err != nil {
		s.logger.Warn("Ingestion stopped early", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("Ingestion completed", fields...)
}
