package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/config"
	"github.com/U201311/clip-image-search-v2/internal/db"
	dbRedis "github.com/U201311/clip-image-search-v2/internal/db/redis"
	"github.com/U201311/clip-image-search-v2/internal/domain"
	"github.com/U201311/clip-image-search-v2/internal/metrics"
	"github.com/U201311/clip-image-search-v2/internal/repository/embcache"
	imagerepo "github.com/U201311/clip-image-search-v2/internal/repository/image"
	quotarepo "github.com/U201311/clip-image-search-v2/internal/repository/quota"
	scoperepo "github.com/U201311/clip-image-search-v2/internal/repository/scope"
	"github.com/U201311/clip-image-search-v2/internal/storage/content"
	openaiEmb "github.com/U201311/clip-image-search-v2/internal/transport/openai"
	embeddinguc "github.com/U201311/clip-image-search-v2/internal/usecase/embedding"
	healthuc "github.com/U201311/clip-image-search-v2/internal/usecase/health"
	ingestuc "github.com/U201311/clip-image-search-v2/internal/usecase/ingest"
	searchuc "github.com/U201311/clip-image-search-v2/internal/usecase/search"
)

// Quota counters outlive their period so a restart late in the day still sees them.
const (
	quotaDailyTTL   = 48 * time.Hour
	quotaMonthlyTTL = 62 * 24 * time.Hour
)

// ContentStore is the content-addressed blob store used for copies.
type ContentStore interface {
	ingestuc.ContentStore
	HealthCheck(ctx context.Context) error
}

// App is the composition root shared by the HTTP server and the ingest CLI.
type App struct {
	Config   config.Config
	Store    db.Store
	Codec    domain.Codec
	Images   *imagerepo.Repo
	Scopes   *scoperepo.Repo
	Content  ContentStore
	Embedder domain.Embedder
	Quota    *embeddinguc.QuotaTracker
	Search   *searchuc.Service
	Ingest   *ingestuc.Service
	Health   *healthuc.Service

	provider domain.Embedder
}

// Option customizes wiring.
type Option func(*App)

// WithProvider replaces the OpenAI-compatible client with e. The quota, cache
// and prompt decorators still wrap it.
func WithProvider(e domain.Embedder) Option {
	return func(a *App) { a.provider = e }
}

// New connects to the feature store and wires every service from cfg.
// Metrics must be registered by the caller before New.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create feature store: %w", err)
	}
	a := &App{Config: cfg, Store: store}
	for _, o := range opts {
		o(a)
	}
	if err := a.wire(ctx, logger); err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, logger *zap.Logger) error {
	cfg := a.Config

	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := a.Store.WaitForReady(ctx, readiness); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))

	dim, err := domain.ResolveFeatureDim(cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("resolve feature dimension: %w", err)
	}
	a.Codec, err = domain.NewCodec(domain.StorageType(cfg.Embedding.StorageType), dim)
	if err != nil {
		return fmt.Errorf("create codec: %w", err)
	}

	a.Images = imagerepo.New(a.Store, cfg.Storage.KeyPrefix).
		WithCursorIdle(time.Duration(cfg.Search.CursorIdleSec) * time.Second)
	if err := a.Images.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure image index: %w", err)
	}
	a.Scopes = scoperepo.New(a.Store, cfg.Storage.KeyPrefix)

	a.Content, err = newContentStore(ctx, cfg.Storage.Content)
	if err != nil {
		return err
	}

	a.buildQuota(ctx, logger)
	a.Embedder = a.buildEmbedder(dim, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", dim),
		zap.String("storage_type", cfg.Embedding.StorageType),
	)

	engine := searchuc.NewEngine(a.Images, a.Codec).
		WithChunkSize(cfg.Search.ChunkSize).
		WithLogger(logger.Named("engine"))
	a.Search = searchuc.New(engine, a.Scopes, a.Embedder).WithLogger(logger.Named("search"))

	a.Ingest = ingestuc.New(a.Embedder, a.Images, a.Codec).
		WithContentStore(a.Content).
		WithWorkspaces(a.Scopes).
		WithWorkers(cfg.Ingest.Workers).
		WithQueueSize(cfg.Ingest.QueueSize).
		WithMaxFileBytes(cfg.Ingest.MaxFileBytes).
		WithLogger(logger.Named("ingest"))

	a.Health = healthuc.New(a.Store, newEmbeddingHealthChecker(a.Embedder)).
		WithContent(a.Content).
		WithLogger(logger)
	return nil
}

// Close releases the feature store connection.
func (a *App) Close() {
	a.Store.Close()
}

func (a *App) buildQuota(ctx context.Context, logger *zap.Logger) {
	q := a.Config.Embedding.Quota
	if q.DailyLimit <= 0 && q.MonthlyLimit <= 0 {
		return
	}
	action := embeddinguc.QuotaActionWarn
	if q.Action == string(embeddinguc.QuotaActionReject) {
		action = embeddinguc.QuotaActionReject
	}
	prefix := a.Config.Storage.KeyPrefix + "quota:" + a.Config.Embedding.Provider + ":"
	a.Quota = embeddinguc.NewQuotaTracker(prefix, q.DailyLimit, q.MonthlyLimit, action, logger).
		WithStore(ctx, quotarepo.New(a.Store, quotaDailyTTL, quotaMonthlyTTL))
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented -> Cached -> Prompt.
// Cache hits never reach the quota.
func (a *App) buildEmbedder(dim int, logger *zap.Logger) domain.Embedder {
	cfg := a.Config.Embedding

	embedder := a.provider
	if embedder == nil {
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Logger:   logger,
		})
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, dim).
		WithLogger(logger)
	// A typed nil *QuotaTracker must not reach the QuotaChecker interface.
	if a.Quota != nil {
		instrumented = instrumented.WithQuota(a.Quota)
	}
	embedder = instrumented

	if cfg.Cache {
		prefix := a.Config.Storage.KeyPrefix + "emb:" + cfg.Model + ":"
		embedder = embcache.New(embedder, a.Store, prefix, metrics.EmbeddingCacheTotal, logger).
			WithTTL(time.Duration(cfg.CacheTTLSec) * time.Second)
	}

	if cfg.TextPrompt != "" {
		return domain.NewPromptEmbedder(embedder, cfg.TextPrompt)
	}
	return embedder
}

func newContentStore(ctx context.Context, cfg config.ContentConfig) (ContentStore, error) {
	switch cfg.Backend {
	case "minio":
		s, err := content.DialMinio(ctx, content.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Prefix:    cfg.Minio.Prefix,
			Secure:    cfg.Minio.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio content store: %w", err)
		}
		return s, nil
	default:
		s, err := content.NewLocalStore(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("create local content store: %w", err)
		}
		return s, nil
	}
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
