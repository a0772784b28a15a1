package issuancelock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks in Redis so that several server replicas share them
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisLockerConfig configures a Redis locker
type RedisLockerConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisLocker connects to Redis and creates a locker
func NewRedisLocker(cfg *RedisLockerConfig, logger *zap.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "decertify:issuance:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &RedisLocker{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
		logger:    logger.Named("redis_lock"),
	}, nil
}

func (r *RedisLocker) lockKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.lockKey(key), token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{r.lockKey(key)}, token).Err(); err != nil && err != redis.Nil {
			r.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}
