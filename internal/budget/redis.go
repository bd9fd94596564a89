package budget

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisLedger stores per-caller spend in Redis so usage accounting survives
// restarts and is shared across replicas.
type RedisLedger struct {
	client       *redis.Client
	logger       *zap.Logger
	defaultLimit float64
	keyPrefix    string
}

// NewRedisLedger builds a Redis-backed ledger.
func NewRedisLedger(client *redis.Client, defaultLimit float64, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{
		client:       client,
		logger:       logger,
		defaultLimit: defaultLimit,
		keyPrefix:    "medwatch:usage:",
	}
}

func (l *RedisLedger) spentKey(callerID string) string { return l.keyPrefix + callerID }
func (l *RedisLedger) limitKey(callerID string) string { return l.keyPrefix + callerID + ":limit" }

// SetLimit overrides the limit for one caller.
func (l *RedisLedger) SetLimit(ctx context.Context, callerID string, limit float64) error {
	return l.client.Set(ctx, l.limitKey(callerID), limit, 0).Err()
}

func (l *RedisLedger) limitFor(ctx context.Context, callerID string) (float64, error) {
	val, err := l.client.Get(ctx, l.limitKey(callerID)).Result()
	if err == redis.Nil {
		return l.defaultLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read limit for %s: %w", callerID, err)
	}
	limit, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse limit for %s: %w", callerID, err)
	}
	return limit, nil
}

// CheckLimit returns the caller's current position. Advisory only.
func (l *RedisLedger) CheckLimit(ctx context.Context, callerID string) (*Usage, error) {
	limit, err := l.limitFor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	spent, err := l.client.Get(ctx, l.spentKey(callerID)).Float64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read usage for %s: %w", callerID, err)
	}
	return usage(callerID, spent, limit), nil
}

// RecordUsage adds to the caller's spend unconditionally.
func (l *RedisLedger) RecordUsage(ctx context.Context, callerID string, amount float64) error {
	if err := l.client.IncrByFloat(ctx, l.spentKey(callerID), amount).Err(); err != nil {
		return fmt.Errorf("record usage for %s: %w", callerID, err)
	}
	return nil
}

// TryReserve increments first, then rolls back when the new total overshoots
// the limit. INCRBYFLOAT is atomic, so two concurrent reservations can never
// both land under the limit unless they genuinely fit.
func (l *RedisLedger) TryReserve(ctx context.Context, callerID string, amount float64) (*Usage, error) {
	limit, err := l.limitFor(ctx, callerID)
	if err != nil {
		return nil, err
	}

	newTotal, err := l.client.IncrByFloat(ctx, l.spentKey(callerID), amount).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve usage for %s: %w", callerID, err)
	}

	if limit > 0 && newTotal > limit {
		if rbErr := l.client.IncrByFloat(ctx, l.spentKey(callerID), -amount).Err(); rbErr != nil {
			l.logger.Error("Failed to roll back denied reservation",
				zap.String("caller_id", callerID),
				zap.Float64("amount", amount),
				zap.Error(rbErr))
		}
		return usage(callerID, newTotal-amount, limit), ErrLimitExceeded
	}
	return usage(callerID, newTotal, limit), nil
}

func usage(callerID string, spent, limit float64) *Usage {
	remaining := limit - spent
	if limit <= 0 {
		remaining = 0
	}
	return &Usage{CallerID: callerID, Spent: spent, Limit: limit, Remaining: remaining}
}
