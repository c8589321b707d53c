package stores

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV opaque string blobs under a key prefix, used as client side storage
type KV struct {
	rc     RedisClient
	prefix string
	ttl    time.Duration
}

func NewKV(rc RedisClient, prefix string) *KV {
	return &KV{rc: rc, prefix: prefix}
}

// WithTTL entries expire after d, zero keeps them forever
func (s *KV) WithTTL(d time.Duration) *KV {
	s.ttl = d
	return s
}

func (s *KV) Get(key string) (string, bool) {
	val, err := s.rc.Get(context.Background(), s.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger().Infow("kv get fail", "key", key, "err", err)
		}
		return "", false
	}
	return val, true
}

func (s *KV) Set(key, value string) error {
	return s.rc.Set(context.Background(), s.prefix+key, value, s.ttl).Err()
}

func (s *KV) Remove(key string) error {
	return s.rc.Del(context.Background(), s.prefix+key).Err()
}
