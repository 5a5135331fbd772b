package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

// AcquireAttempt takes the per-group gateway lock so only one control number
// is in flight per group at a time. Returns false when another attempt holds
// the lock.
func (r *Redis) AcquireAttempt(ctx context.Context, groupID string, ttl time.Duration) (bool, error) {
	key := "gateway_attempt:" + groupID
	ok, err := r.Client.SetNX(ctx, key, time.Now().UnixNano(), ttl).Result()
	return ok, err
}

// ReleaseAttempt drops the per-group gateway lock.
func (r *Redis) ReleaseAttempt(ctx context.Context, groupID string) error {
	key := "gateway_attempt:" + groupID
	_, err := r.Client.Del(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}
