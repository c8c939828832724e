// Package cache keeps a read-through copy of published posts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"inkwell/app/models"
)

// PostCache stores published posts by id. GetPost returns nil, nil on a miss.
//
// Readers fill the cache in two steps: Generation before loading the post
// from storage, then SetPost with that generation. InvalidatePost bumps the
// generation, so a fill that raced with a mutation is dropped.
type PostCache interface {
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	Generation(ctx context.Context, id int64) (int64, error)
	SetPost(ctx context.Context, post *models.Post, generation int64) error
	InvalidatePost(ctx context.Context, id int64) error
}

// Nop is a PostCache that never holds anything.
type Nop struct{}

func (Nop) GetPost(context.Context, int64) (*models.Post, error) { return nil, nil }
func (Nop) Generation(context.Context, int64) (int64, error)     { return 0, nil }
func (Nop) SetPost(context.Context, *models.Post, int64) error   { return nil }
func (Nop) InvalidatePost(context.Context, int64) error          { return nil }

const defaultTTL = 5 * time.Minute

// generationTTL outlives any read that could still hold a generation.
const generationTTL = 24 * time.Hour

// setIfGeneration stores the post only while the generation is unchanged.
// A missing generation key counts as 0.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClient connects and pings the server once.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func postKey(id int64) string {
	return fmt.Sprintf("inkwell:post:%d", id)
}

func generationKey(id int64) string {
	return fmt.Sprintf("inkwell:post:%d:gen", id)
}

// GetPost retrieves a post from cache
func (c *RedisCache) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	data, err := c.client.Get(ctx, postKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var post models.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return &post, nil
}

func (c *RedisCache) Generation(ctx context.Context, id int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// SetPost stores a post with the configured TTL unless the post was
// invalidated after generation was read.
func (c *RedisCache) SetPost(ctx context.Context, post *models.Post, generation int64) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}
	keys := []string{postKey(post.ID), generationKey(post.ID)}
	err = setIfGeneration.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// InvalidatePost drops the cached copy and voids fills already in flight.
func (c *RedisCache) InvalidatePost(ctx context.Context, id int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Expire(ctx, generationKey(id), generationTTL)
		pipe.Del(ctx, postKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}
