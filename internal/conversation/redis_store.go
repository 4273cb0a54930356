package conversation

import (
	"context"
	"fmt"
	"time"

	"pdbot/internal/models"
	"pdbot/internal/redis"
)

const redisSessionPrefix = "conversation:session:"

// RedisStore keeps sessions in redis so several instances share them.
// Idle expiry is the key TTL, refreshed on every save.
type RedisStore struct {
	client *redis.Client
	idle   time.Duration
}

// NewRedisStore creates a redis backed session store.
func NewRedisStore(client *redis.Client, idle time.Duration) *RedisStore {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &RedisStore{client: client, idle: idle}
}

func sessionKey(key string) string {
	return redisSessionPrefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (*models.Session, error) {
	var sess models.Session
	found, err := r.client.GetJSON(ctx, sessionKey(key), &sess)
	if err != nil {
		if found {
			// undecodable, drop it
			_ = r.client.Del(ctx, sessionKey(key))
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

func (r *RedisStore) Save(ctx context.Context, sess *models.Session) error {
	if err := r.client.SetJSON(ctx, sessionKey(sess.SenderKey), sess, r.idle); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, sessionKey(key)); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
