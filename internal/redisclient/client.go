package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock acquires a distributed lock and returns the owner token needed to release it.
// An empty token means someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock failed: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock deletes the lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored value and whether the key exists
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func couponKey(userID uuid.UUID) string {
	return fmt.Sprintf("session:coupon:%s", userID)
}

// SetAppliedCoupon stores the coupon code the user applied to the current cart
func (c *Client) SetAppliedCoupon(ctx context.Context, userID uuid.UUID, code string, ttl time.Duration) error {
	return c.rdb.Set(ctx, couponKey(userID), code, ttl).Err()
}

// AppliedCoupon returns "" when no coupon is applied
func (c *Client) AppliedCoupon(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := c.rdb.Get(ctx, couponKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return code, err
}

// ClearAppliedCoupon empties the session coupon slot
func (c *Client) ClearAppliedCoupon(ctx context.Context, userID uuid.UUID) error {
	return c.rdb.Del(ctx, couponKey(userID)).Err()
}
