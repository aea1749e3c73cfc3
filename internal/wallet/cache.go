package wallet

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBalanceClient is the minimal client surface used by CachedLedger.
type RedisBalanceClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedLedger serves Balance reads from Redis in front of a base ledger.
// The cache is a read optimization only: every write goes to the base ledger
// first and then invalidates the cached balance, so the entry sum stays the
// sole source of truth. Cache errors degrade to base reads.
type CachedLedger struct {
	base      Ledger
	client    RedisBalanceClient
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewCachedLedger wraps base with a Redis balance cache.
func NewCachedLedger(base Ledger, client RedisBalanceClient, ttl time.Duration, logger *zap.Logger) *CachedLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLedger{
		base:      base,
		client:    client,
		ttl:       ttl,
		keyPrefix: "balance:",
		logger:    logger,
	}
}

func (c *CachedLedger) Reserve(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	balance, err := c.base.Reserve(ctx, playerID, amount, referenceID)
	c.invalidate(ctx, playerID)
	return balance, err
}

func (c *CachedLedger) Settle(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	balance, err := c.base.Settle(ctx, playerID, amount, referenceID)
	c.invalidate(ctx, playerID)
	return balance, err
}

func (c *CachedLedger) Refund(ctx context.Context, playerID string, amount int64, referenceID string) error {
	err := c.base.Refund(ctx, playerID, amount, referenceID)
	c.invalidate(ctx, playerID)
	return err
}

func (c *CachedLedger) Deposit(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	balance, err := c.base.Deposit(ctx, playerID, amount, referenceID)
	c.invalidate(ctx, playerID)
	return balance, err
}

func (c *CachedLedger) Balance(ctx context.Context, playerID string) (int64, error) {
	key := c.keyPrefix + playerID
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if cached, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("balance cache read failed", zap.String("playerId", playerID), zap.Error(err))
	}

	balance, err := c.base.Balance(ctx, playerID)
	if err != nil {
		return 0, err
	}
	if setErr := c.client.Set(ctx, key, strconv.FormatInt(balance, 10), c.ttl).Err(); setErr != nil {
		c.logger.Warn("balance cache write failed", zap.String("playerId", playerID), zap.Error(setErr))
	}
	return balance, nil
}

// invalidate is best effort; a stale cached balance only lives until its TTL
// and is never used for the reserve check.
func (c *CachedLedger) invalidate(ctx context.Context, playerID string) {
	if err := c.client.Del(ctx, c.keyPrefix+playerID).Err(); err != nil {
		c.logger.Warn("balance cache invalidate failed", zap.String("playerId", playerID), zap.Error(err))
	}
}
