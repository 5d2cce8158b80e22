package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// 🔒 执行锁
// =============================================================================

// ErrLockHeld 锁已被其他持有者占用
var ErrLockHeld = errors.New("lock held by another owner")

// Release 释放锁；只会删除自己持有的锁
type Release func(ctx context.Context) error

// Locker 执行锁接口（内存或 Redis 实现）
type Locker interface {
	// Acquire 获取 key 对应的锁，已被占用时返回 ErrLockHeld
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

type memoryEntry struct {
	owner   string
	expires time.Time
}

// MemoryLocker 进程内锁，适用于单实例部署与测试
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]memoryEntry),
		clock: time.Now,
	}
}

// Acquire 获取锁。ttl <= 0 表示不过期。
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		return nil, ErrLockHeld
	}

	owner := uuid.NewString()
	entry := memoryEntry{owner: owner}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	l.held[key] = entry

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.owner == owner {
			delete(l.held, key)
		}
		return nil
	}, nil
}

// Held 返回 key 当前是否被持有
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[key]
	return ok && (e.expires.IsZero() || l.clock().Before(e.expires))
}
