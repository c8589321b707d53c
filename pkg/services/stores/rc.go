package stores

import (
	"context"
	"sync"

	"github.com/cupogo/andvari/utils/zlog"
	"github.com/redis/go-redis/v9"

	"github.com/liut/kaiwa/pkg/settings"
)

type RedisClient = redis.UniversalClient

var (
	rcOnce sync.Once
	rcu    RedisClient
)

// HasRedis reports whether a redis uri is configured
func HasRedis() bool {
	return len(settings.Current.RedisURI) > 0
}

// SgtRC start return a singleton instance of redis client
func SgtRC() RedisClient {
	rcOnce.Do(func() {
		rcu = MustOpenRC(settings.Current.RedisURI)
	})

	return rcu
}

// MustOpenRC parse uri, connect and ping
func MustOpenRC(redisURI string) RedisClient {
	opt, err := redis.ParseURL(redisURI)
	if err != nil {
		logger().Panicw("prase redisURI fail", "uri", redisURI, "err", err)
	}
	rc := redis.NewClient(opt)
	pingStatus := rc.Ping(context.Background())
	if err = pingStatus.Err(); err != nil {
		logger().Panicw("ping redis fail", "err", err)
	}
	return rc
}

func logger() zlog.Logger {
	return zlog.Get()
}
