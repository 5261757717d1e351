package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callloop/postcall-gateway/pkg/logger"
	"github.com/callloop/postcall-gateway/pkg/redis"
)

var (
	ErrAlreadyProcessed  = errors.New("call already processed")
	ErrLockAcquireFailed = errors.New("failed to acquire processing lock")
)

type IdempotencyConfig struct {
	LockTTL      time.Duration
	ProcessedTTL time.Duration
	SweepTTL     time.Duration

	LockKeyPrefix      string
	ProcessedKeyPrefix string
	SweepKeyPrefix     string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		SweepTTL:           time.Hour,
		LockKeyPrefix:      "automation:lock:",
		ProcessedKeyPrefix: "automation:processed:",
		SweepKeyPrefix:     "automation:sweep:",
	}
}

// IdempotencyService guards against duplicate automation runs. Delayed
// delivery is at-least-once, so the processed marker and the short lock are
// what keep a caller from getting the same follow-up twice.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	CallKey      string
	lockAcquired bool
}

// AcquireProcessingLock checks the processed marker, then takes the short
// lock. Retry runs pass skipProcessedCheck because their call is already
// marked processed by the original run.
func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, callKey string, skipProcessedCheck bool) (*ProcessingContext, error) {
	if !skipProcessedCheck {
		exists, err := s.redis.Exist(s.config.ProcessedKeyPrefix + callKey)
		if err != nil {
			logger.Warn("Failed to check processed status", "call", callKey, "error", err)
			// Better to risk a duplicate than to wedge the queue.
		} else if exists > 0 {
			return nil, ErrAlreadyProcessed
		}
	}

	lockKey := s.config.LockKeyPrefix + callKey
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := s.redis.SetNX(lockKey, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire lock", "call", callKey, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		logger.Info("Lock already held by another consumer", "call", callKey)
		return nil, ErrLockAcquireFailed
	}

	return &ProcessingContext{
		CallKey:      callKey,
		lockAcquired: true,
	}, nil
}

// MarkProcessed sets the long-term processed marker and releases the lock.
func (s *IdempotencyService) MarkProcessed(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(s.config.ProcessedKeyPrefix+pc.CallKey, []byte("1"), s.config.ProcessedTTL); err != nil {
		logger.Error("Failed to mark call as processed", "call", pc.CallKey, "error", err)
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	return s.ReleaseLock(ctx, pc)
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}
	if err := s.redis.Del(s.config.LockKeyPrefix + pc.CallKey); err != nil {
		logger.Warn("Failed to release lock", "call", pc.CallKey, "error", err)
		return err
	}
	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, callKey string) (bool, error) {
	exists, err := s.redis.Exist(s.config.ProcessedKeyPrefix + callKey)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// MarkSweep claims a message log for one sweep cycle. Returns false when
// another sweep run already claimed it, which keeps a doubled sweep from
// incrementing retry counters twice.
func (s *IdempotencyService) MarkSweep(ctx context.Context, logID int64) (bool, error) {
	key := fmt.Sprintf("%s%d", s.config.SweepKeyPrefix, logID)
	return s.redis.SetNX(key, []byte("1"), s.config.SweepTTL)
}
