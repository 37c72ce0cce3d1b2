package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/U201311/clip-image-search-v2/internal/db"
	"github.com/U201311/clip-image-search-v2/internal/domain"
)

const (
	kindText  = "text"
	kindImage = "image"

	imageHeaderLen = 8
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder caches text and image embeddings in a key-value store,
// keyed by the SHA-256 of the input.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. keyPrefix should include the model name so
// vectors of different models never collide.
// cacheTotal is a counter vec with labels "kind" and "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	keyPrefix string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// WithTTL expires cache entries after ttl. Zero keeps them forever.
func (c *CachedEmbedder) WithTTL(ttl time.Duration) *CachedEmbedder {
	c.ttl = ttl
	return c
}

// EmbedText returns a cached text embedding or calls the inner embedder.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(kindText, []byte(text))

	if data, ok := c.getFromCache(ctx, key); ok {
		if vec, err := bytesToVector(data); err == nil {
			c.incCache(kindText, "hit")
			return vec, nil
		}
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key))
	}
	c.incCache(kindText, "miss")

	vec, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, vectorToCacheBytes(vec))
	return vec, nil
}

// EmbedImage returns a cached image embedding (with its pixel size) or calls the inner embedder.
func (c *CachedEmbedder) EmbedImage(ctx context.Context, data []byte) (domain.ImageEmbedding, error) {
	key := c.cacheKey(kindImage, data)

	if raw, ok := c.getFromCache(ctx, key); ok {
		if emb, err := decodeImageEntry(raw); err == nil {
			c.incCache(kindImage, "hit")
			return emb, nil
		}
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key))
	}
	c.incCache(kindImage, "miss")

	emb, err := c.inner.EmbedImage(ctx, data)
	if err != nil {
		return domain.ImageEmbedding{}, fmt.Errorf("embed image: %w", err)
	}

	c.putToCache(ctx, key, encodeImageEntry(emb))
	return emb, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) incCache(kind, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(kind, result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(kind string, input []byte) string {
	h := sha256.Sum256(input)
	return c.keyPrefix + kind + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, data []byte) {
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// encodeImageEntry lays out width and height (uint32 LE) followed by the vector.
func encodeImageEntry(emb domain.ImageEmbedding) []byte {
	buf := make([]byte, imageHeaderLen, imageHeaderLen+len(emb.Vector)*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(emb.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(emb.Height))
	return append(buf, vectorToCacheBytes(emb.Vector)...)
}

func decodeImageEntry(data []byte) (domain.ImageEmbedding, error) {
	if len(data) < imageHeaderLen {
		return domain.ImageEmbedding{}, fmt.Errorf("invalid image cache data: len=%d", len(data))
	}
	vec, err := bytesToVector(data[imageHeaderLen:])
	if err != nil {
		return domain.ImageEmbedding{}, err
	}
	return domain.ImageEmbedding{
		Vector: vec,
		Width:  int(binary.LittleEndian.Uint32(data[0:])),
		Height: int(binary.LittleEndian.Uint32(data[4:])),
	}, nil
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
