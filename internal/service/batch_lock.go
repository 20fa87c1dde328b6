package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type lockStore interface {
	Available() bool
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// BatchLock guards batch jobs in this process and, when Redis is configured,
// across every process sharing it.
type BatchLock struct {
	store  lockStore
	local  *keyedMutex
	logger *zap.Logger
}

// NewBatchLock builds a lock; store may be nil for single-process use.
func NewBatchLock(store lockStore, logger *zap.Logger) *BatchLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchLock{store: store, local: newKeyedMutex(), logger: logger}
}

// Acquire returns ok=false when another run holds key. The returned release
// func must be called once the run finishes.
func (l *BatchLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	unlockLocal, ok := l.local.TryLock(key)
	if !ok {
		return nil, false, nil
	}
	if l.store == nil || !l.store.Available() {
		return unlockLocal, true, nil
	}

	token := uuid.NewString()
	acquired, err := l.store.AcquireLock(ctx, key, token, ttl)
	if err != nil {
		unlockLocal()
		return nil, false, err
	}
	if !acquired {
		unlockLocal()
		return nil, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.ReleaseLock(releaseCtx, key, token); err != nil {
			l.logger.Warn("failed to release batch lock", zap.String("key", key), zap.Error(err))
		}
		unlockLocal()
	}, true, nil
}
