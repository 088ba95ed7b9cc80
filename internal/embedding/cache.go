package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores vectors by key. Batch calls keep a provider batch to one
// round trip each way.
type Cache interface {
	// GetMany returns one entry per key; a nil entry is a miss
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	SetMany(ctx context.Context, entries map[string][]float32) error
}

// RedisCache keeps vectors in Redis as little-endian float32 blobs
type RedisCache struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedisCache connects to the Redis instance at url
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisCache{Client: client, Prefix: "bookrag:emb:", TTL: ttl}, nil
}

// GetMany reads all keys with a single MGET
func (c *RedisCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	out := make([][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Prefix + k
	}

	values, err := c.Client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := decodeVector([]byte(s))
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// SetMany writes all entries in one pipeline
func (c *RedisCache) SetMany(ctx context.Context, entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := c.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range entries {
			p.Set(ctx, c.Prefix+k, encodeVector(v), c.TTL)
		}
		return nil
	})
	return err
}

// Close releases the Redis connection
func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// Cached serves repeated texts from a cache and only sends misses upstream.
// Cache failures are logged and never fail an embedding call.
type Cached struct {
	Gateway Gateway
	Cache   Cache
	Model   string
	Logger  *slog.Logger
}

// NewCached wraps gw with cache
func NewCached(gw Gateway, cache Cache, model string, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{Gateway: gw, Cache: cache, Model: model, Logger: logger}
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	out, err := c.Cache.GetMany(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			c.Logger.Warn("embedding cache read failed", "error", err)
		}
		out = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if out[i] == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.Gateway.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(missTexts))
	}

	fresh := make(map[string][]float32, len(missIdx))
	for j, i := range missIdx {
		out[i] = vectors[j]
		fresh[keys[i]] = vectors[j]
	}
	if err := c.Cache.SetMany(ctx, fresh); err != nil {
		c.Logger.Warn("embedding cache write failed", "error", err)
	}
	return out, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(c.Model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
