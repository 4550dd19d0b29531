package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/BorisSavianov/doxa-backend/pkg/errors"
)

// LockClient 分布式锁（Redis 实现见 pkg/redis）
type LockClient interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ProcedureLocker 同一程序的引擎操作串行执行
type ProcedureLocker interface {
	Lock(ctx context.Context, procedureID string) (unlock func(), err error)
}

// NewProcedureLocker client 为 nil 时退化为进程内互斥（单实例部署）。
// 两种实现最多等待 ttl，仍未拿到锁则返回 ErrLockNotAcquired。
func NewProcedureLocker(client LockClient, ttl time.Duration, logger *zap.Logger) ProcedureLocker {
	if client == nil {
		return &localLocker{ttl: ttl, locks: make(map[string]*localLock)}
	}
	return &redisLocker{client: client, ttl: ttl, logger: logger}
}

// ── Redis 实现 ──

// 锁被占用时的重试间隔
const lockRetryInterval = 50 * time.Millisecond

type redisLocker struct {
	client LockClient
	ttl    time.Duration
	logger *zap.Logger
}

func (l *redisLocker) Lock(ctx context.Context, procedureID string) (func(), error) {
	key := "procedure:" + procedureID
	deadline := time.Now().Add(l.ttl)
	for {
		release, err := l.client.AcquireLock(ctx, key, l.ttl)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, pkgerrors.ErrLockNotAcquired) {
			l.logger.Error("获取程序锁失败", zap.String("procedure_id", procedureID), zap.Error(err))
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, pkgerrors.ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// ── 进程内实现 ──

type localLock struct {
	ch   chan struct{}
	refs int
}

type localLocker struct {
	ttl   time.Duration
	mu    sync.Mutex
	locks map[string]*localLock
}

func (l *localLocker) Lock(ctx context.Context, procedureID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[procedureID]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[procedureID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	default:
		if err := l.wait(ctx, lk); err != nil {
			l.release(procedureID, lk, false)
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(procedureID, lk, true) })
	}, nil
}

func (l *localLocker) wait(ctx context.Context, lk *localLock) error {
	timer := time.NewTimer(l.ttl)
	defer timer.Stop()

	select {
	case lk.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return pkgerrors.ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *localLocker) release(procedureID string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, procedureID)
	}
	l.mu.Unlock()
}
