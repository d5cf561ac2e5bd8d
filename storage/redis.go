package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/land-registry/interfaces"
)

const redisKeyPrefix = "land:"

// RedisBackend keeps content in Redis string keys
// "<prefix><content type>:<content id>".
type RedisBackend struct {
	client      *redis.Client
	prefix      string
	ttl         time.Duration
	log         *slog.Logger
	locationURI string
}

// NewRedisBackend wraps client. A zero ttl keeps keys forever.
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration, locationURI string, log *slog.Logger) *RedisBackend {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisBackend{
		client:      client,
		prefix:      prefix,
		ttl:         ttl,
		log:         log,
		locationURI: locationURI,
	}
}

// NewRedisBackendFromURL parses a redis:// URL with go-redis.
func NewRedisBackendFromURL(rawURL, prefix string, ttl time.Duration, log *slog.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis URL: %v", interfaces.ErrInvalidLocationURI, err)
	}
	return NewRedisBackend(redis.NewClient(opts), prefix, ttl, redactURL(rawURL), log), nil
}

func (b *RedisBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(id, contentType)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Fetched content from Redis",
		slog.String("key", b.key(id, contentType)),
		slog.Int("size", len(data)))
	return data, nil
}

func (b *RedisBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	if err := b.client.Set(ctx, b.key(id, contentType), data, b.ttl).Err(); err != nil {
		return id, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in Redis",
		slog.String("key", b.key(id, contentType)),
		slog.String("contentID", id.String()))
	return id, nil
}

func (b *RedisBackend) Available(ctx context.Context) bool {
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.log.Debug("Redis backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *RedisBackend) Name() string {
	return "redis-" + b.client.Options().Addr
}

func (b *RedisBackend) LocationURI() string {
	return b.locationURI
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) key(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return b.prefix + contentType.String() + ":" + id.String()
}

// redactURL drops the password from a connection URL.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "***" + raw[at:]
}
