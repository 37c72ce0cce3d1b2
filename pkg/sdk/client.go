package clipsearch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/app"
	"github.com/U201311/clip-image-search-v2/internal/domain/ingest"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/request"
	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
)

// Internal interfaces, swapped for mocks in tests.
type searchUseCase interface {
	Search(ctx context.Context, req *request.Request) (result.Ranking, error)
}

type ingestUseCase interface {
	Ingest(ctx context.Context, items iter.Seq2[ingest.Item, error], opts ingest.Options) ([]ingest.Outcome, error)
	IngestDir(ctx context.Context, root string, opts ingest.Options) ([]ingest.Outcome, error)
	IngestWorkspace(ctx context.Context, workspaceID string, opts ingest.Options) ([]ingest.Outcome, error)
	IngestUpload(ctx context.Context, id, scopeID string, data []byte) (ingest.Outcome, error)
}

type scopeUseCase interface {
	RegisterDataset(ctx context.Context, datasetID, name string, members ...string) error
	RegisterWorkspaceFiles(ctx context.Context, workspaceID string, files map[string]string) error
}

// Client is the clip image search SDK entry point.
type Client struct {
	closer    func()
	searchSvc searchUseCase
	ingestSvc ingestUseCase
	scopeSvc  scopeUseCase
	healthSvc healthUseCase
	topN      topNLimits
	obs       *observer
}

type topNLimits struct {
	def int
	max int
}

// New creates a Client, connects to the feature store and ensures the image index.
// The provided context bounds the readiness check and index creation.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}
	if err := cc.validate(); err != nil {
		return nil, err
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	zl := cc.zapLogger
	if zl == nil {
		zl = zap.NewNop()
	}
	var appOpts []app.Option
	if cc.embedder != nil {
		appOpts = append(appOpts, app.WithProvider(&embedderAdapter{inner: cc.embedder}))
	}
	a, err := app.New(ctx, cc.cfg, zl, appOpts...)
	if err != nil {
		return nil, fmt.Errorf("clipsearch: %w", err)
	}

	return &Client{
		closer:    a.Close,
		searchSvc: a.Search,
		ingestSvc: a.Ingest,
		scopeSvc:  a.Scopes,
		healthSvc: a.Health,
		topN:      topNLimits{def: cc.cfg.Search.DefaultTopN, max: cc.cfg.Search.MaxTopN},
		obs:       obs,
	}, nil
}

func (cc *clientConfig) validate() error {
	cc.cfg.ApplyDefaults()
	if len(cc.cfg.Database.Addrs) == 0 {
		return errors.New("clipsearch: database address required (use WithRedis)")
	}
	if cc.embedder == nil && cc.cfg.Embedding.BaseURL == "" {
		return errors.New("clipsearch: embedding provider required (use WithEmbedding or WithEmbedder)")
	}
	if cc.cfg.Embedding.Dimensions < 0 {
		return fmt.Errorf("clipsearch: dimensions must not be negative, got %d", cc.cfg.Embedding.Dimensions)
	}
	if cc.cfg.Search.DefaultTopN > cc.cfg.Search.MaxTopN {
		return fmt.Errorf("clipsearch: default topn %d exceeds max topn %d",
			cc.cfg.Search.DefaultTopN, cc.cfg.Search.MaxTopN)
	}
	if cc.cfg.Ingest.Workers < 0 {
		return fmt.Errorf("clipsearch: workers must not be negative, got %d", cc.cfg.Ingest.Workers)
	}
	if c := cc.cfg.Storage.Content; c.Backend == "minio" && (c.Minio.Endpoint == "" || c.Minio.Bucket == "") {
		return errors.New("clipsearch: minio endpoint and bucket are required")
	}
	return nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// RegisterDataset maps a dataset id to the scope ids it contains.
// Registering again replaces the member list.
func (c *Client) RegisterDataset(ctx context.Context, datasetID, name string, members ...string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("register_dataset", start, err) }()
	if datasetID == "" {
		return errors.New("clipsearch: dataset id is required")
	}
	if err = c.scopeSvc.RegisterDataset(ctx, datasetID, name, members...); err != nil {
		return fmt.Errorf("register dataset %s: %w", datasetID, err)
	}
	return nil
}

// RegisterWorkspaceFiles records the files of a workspace as file id → path.
func (c *Client) RegisterWorkspaceFiles(ctx context.Context, workspaceID string, files map[string]string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("register_workspace", start, err) }()
	if workspaceID == "" {
		return errors.New("clipsearch: workspace id is required")
	}
	if err = c.scopeSvc.RegisterWorkspaceFiles(ctx, workspaceID, files); err != nil {
		return fmt.Errorf("register workspace %s: %w", workspaceID, err)
	}
	return nil
}
