package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmsflow/approvals/pkg/services"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "approvals:users:"
	// DefaultCacheTTL bounds how stale a renamed user may appear on new tasks.
	DefaultCacheTTL = 10 * time.Minute
)

// CachedDirectory caches another directory's answers in Redis. Cache
// failures fall through to the wrapped directory.
type CachedDirectory struct {
	next   services.UserDirectory
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(next services.UserDirectory, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedDirectory{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "user_cache"),
	}
}

// NewRedisClient connects to the Redis server at redisURL.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (c *CachedDirectory) ResolveUserName(ctx context.Context, userID string) (string, error) {
	key := cacheKeyPrefix + userID

	name, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return name, nil
	}

	if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "User cache read failed", "user_id", userID, "error", err)
	}

	name, err = c.next.ResolveUserName(ctx, userID)
	if err != nil {
		return "", err
	}

	if name == "" {
		return "", nil
	}

	err = c.client.Set(ctx, key, name, c.ttl).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "User cache write failed", "user_id", userID, "error", err)
	}

	return name, nil
}

// Invalidate drops a cached name, e.g. after the user was renamed.
func (c *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, cacheKeyPrefix+userID).Err()
}
