package providers

import "github.com/go-redis/redis/v8"

// NewRedisProvider returns the client backing the redis invocation ledger.
func NewRedisProvider(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
