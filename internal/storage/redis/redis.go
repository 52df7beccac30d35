package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type OTPStore struct {
	client      *redis.Client
	maxAttempts int
}

// verifyScript consumes the challenge on a match and counts failed attempts
// otherwise, dropping the challenge once the limit is reached.
var verifyScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
	return 0
end
if code == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[2]) then
	redis.call('DEL', KEYS[1])
end
return 0
`)

var discardScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func New(ctx context.Context, addr, pass string, db, maxAttempts int) (*OTPStore, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &OTPStore{
		client:      client,
		maxAttempts: maxAttempts,
	}, nil
}

// * Save перезаписывает challenge и сбрасывает счетчик попыток
func (r *OTPStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	const op = "storage.redis.Save"

	k := otpKey(key)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, map[string]interface{}{
			"code":      code,
			"attempts":  0,
			"issued_at": time.Now().Unix(),
		})
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Verify атомарно сравнивает и удаляет challenge (Lua)
func (r *OTPStore) Verify(ctx context.Context, key, code string) (bool, error) {
	const op = "storage.redis.Verify"

	res, err := verifyScript.Run(ctx, r.client, []string{otpKey(key)}, code, r.maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return res == 1, nil
}

func (r *OTPStore) Discard(ctx context.Context, key, code string) error {
	const op = "storage.redis.Discard"

	if err := discardScript.Run(ctx, r.client, []string{otpKey(key)}, code).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Close закрывает соединение с базой данных.
func (r *OTPStore) Close() {
	r.client.Close()
}

func otpKey(key string) string {
	return fmt.Sprintf("otp:challenge:%s", key)
}
