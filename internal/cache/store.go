package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "cinema-checkout/pkg/app_errors"

	"github.com/redis/go-redis/v9"
)

// Store is the key/value layer behind persisted checkout state and the order cache.
type Store interface {
	// Get 取得 key 的值；不存在時回傳 ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 寫入；ttl <= 0 表示不過期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// CompareAndSwap replaces key with value only while it still holds expected.
	// A nil expected means "absent"; a nil value deletes the key.
	CompareAndSwap(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error)
}

type RedisStoreImpl struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) Store {
	return &RedisStoreImpl{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStoreImpl) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStoreImpl) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStoreImpl) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStoreImpl) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

/*
比較並交換 (使用Lua腳本確保原子性)
 1. 讀取目前的值，與 expected 比對 (ARGV[2] == '0' 表示預期 key 不存在)
 2. 不符合時直接回傳 0
 3. 符合時寫入新值或刪除 key (ARGV[3] == '0' 表示刪除)
*/
var compareAndSwapScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])

	if ARGV[2] == '1' then
		if current ~= ARGV[1] then
			return 0
		end
	elseif current then
		return 0
	end

	if ARGV[3] == '0' then
		redis.call('DEL', KEYS[1])
		return 1
	end

	local ttl = tonumber(ARGV[5])
	if ttl > 0 then
		redis.call('SET', KEYS[1], ARGV[4], 'PX', ttl)
	else
		redis.call('SET', KEYS[1], ARGV[4])
	end
	return 1
`)

func (s *RedisStoreImpl) CompareAndSwap(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	hasExpected, hasValue := "0", "0"
	if expected != nil {
		hasExpected = "1"
	}
	if value != nil {
		hasValue = "1"
	}
	if ttl < 0 {
		ttl = 0
	}

	res, err := compareAndSwapScript.Run(ctx, s.client, []string{s.key(key)},
		string(expected), hasExpected, hasValue, string(value), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap %s: %w", key, err)
	}
	return res == 1, nil
}
