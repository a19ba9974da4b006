package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	redisIndexKey  = "eruna:sessions"
	redisKeyPrefix = "eruna:session:"
)

// Redis keeps each snapshot under its own key and the live ids in a set.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr and pings it.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return NewRedis(rdb), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *Redis) Put(ctx context.Context, id string, data []byte) error {
	if err := r.client.Set(ctx, redisKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", id, err)
	}
	if err := r.client.SAdd(ctx, redisIndexKey, id).Err(); err != nil {
		return fmt.Errorf("indexing session %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if err := r.client.SRem(ctx, redisIndexKey, id).Err(); err != nil {
		return fmt.Errorf("unindexing session %s: %w", id, err)
	}
	return nil
}

// All returns every indexed snapshot. Ids whose key has vanished are
// dropped from the index.
func (r *Redis) All(ctx context.Context) (map[string][]byte, error) {
	ids, err := r.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, redisKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			if err := r.client.SRem(ctx, redisIndexKey, id).Err(); err != nil {
				return nil, fmt.Errorf("unindexing stale session %s: %w", id, err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading session %s: %w", id, err)
		}
		out[id] = data
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
