package clipsearch

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	cfg config.Config

	embedder Embedder

	logger     *slog.Logger
	zapLogger  *zap.Logger
	metricsReg prometheus.Registerer
}

// WithRedis sets the feature store addresses. A single address connects to a
// standalone instance.
func WithRedis(addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Database.Addrs = addrs
	})
}

// WithRedisAuth sets ACL credentials for the feature store.
func WithRedisAuth(username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Database.Username = username
		c.cfg.Database.Password = password
	})
}

// WithKeyPrefix namespaces every key the client writes. Default: "clipsearch:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Storage.KeyPrefix = prefix
	})
}

// WithEmbedding points the client at an OpenAI-compatible embedding endpoint.
func WithEmbedding(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.BaseURL = baseURL
		c.cfg.Embedding.APIKey = apiKey
		c.cfg.Embedding.Model = model
	})
}

// WithEmbedder replaces the OpenAI-compatible client with a custom provider.
// The model name still selects the feature dimension unless WithDimensions is set.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithDimensions overrides the feature dimension derived from the model name.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.Dimensions = dim
	})
}

// WithFloat64Storage stores features as float64 instead of float32.
func WithFloat64Storage() Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.StorageType = "float64"
	})
}

// WithTextPrompt renders text queries through a template such as "a photo of %s".
func WithTextPrompt(template string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.TextPrompt = template
	})
}

// WithEmbeddingCache caches text embeddings in the feature store. ttl 0 keeps them forever.
func WithEmbeddingCache(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.Cache = true
		c.cfg.Embedding.CacheTTLSec = int(ttl / time.Second)
	})
}

// WithContentRoot keeps copied images under dir on the local filesystem. Default: "./data".
func WithContentRoot(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Storage.Content.Backend = "local"
		c.cfg.Storage.Content.Root = dir
	})
}

// MinioOptions selects an S3-compatible bucket for copied images.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// WithMinio keeps copied images in an S3-compatible bucket.
func WithMinio(o MinioOptions) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Storage.Content.Backend = "minio"
		c.cfg.Storage.Content.Minio = config.MinioConfig(o)
	})
}

// WithWorkers sets the number of concurrent ingestion workers. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Ingest.Workers = n
	})
}

// WithChunkSize sets how many rows one scan step reads. Default: 8192.
func WithChunkSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Search.ChunkSize = n
	})
}

// WithTopNLimits sets the result count used when a search names none and the cap on requested counts.
func WithTopNLimits(defaultN, maxN int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Search.DefaultTopN = defaultN
		c.cfg.Search.MaxTopN = maxN
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPipelineLogger receives the internal engine and pipeline logs. Default: discarded.
func WithPipelineLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.zapLogger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
