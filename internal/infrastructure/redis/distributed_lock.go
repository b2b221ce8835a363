package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/metrics"
)

var (
	ErrLockNotAcquired = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned    = errors.New("ロックの所有者ではありません")
)

const (
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	extendScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// DistributedLock は Redis を使用した分散ロック
// 複数プロセスで同じ運行を扱う場合に、整理ジョブを1つだけ動かすために使う
type DistributedLock struct {
	client  *redis.Client
	key     string
	value   string
	ttl     time.Duration
	metrics *metrics.Metrics
}

// LockManager は分散ロックを管理する
type LockManager struct {
	client   *redis.Client
	metrics  *metrics.Metrics
	newToken func() string
}

// NewLockManager は LockManager を作成する
// m は nil でもよい
func NewLockManager(client *redis.Client, m *metrics.Metrics) *LockManager {
	return &LockManager{client: client, metrics: m, newToken: uuid.NewString}
}

// AcquireLock はロックを取得する
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	start := time.Now()
	lockKey := fmt.Sprintf("lock:%s", key)
	lockValue := m.newToken()

	ok, err := m.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		observe(m.metrics, "acquire", "failed", start)
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	if !ok {
		observe(m.metrics, "acquire", "failed", start)
		return nil, ErrLockNotAcquired
	}
	observe(m.metrics, "acquire", "success", start)

	return &DistributedLock{
		client:  m.client,
		key:     lockKey,
		value:   lockValue,
		ttl:     ttl,
		metrics: m.metrics,
	}, nil
}

// AcquireLockWithRetry はリトライ付きでロックを取得する
func (m *LockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (*DistributedLock, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, ttl)
		if err == nil {
			return lock, nil
		}
		lastErr = err
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, lastErr
}

// Key はロックのキーを返す
func (l *DistributedLock) Key() string {
	return l.key
}

// Release はロックを解放する（所有者確認と削除を Lua スクリプトでアトミックに実行）
func (l *DistributedLock) Release(ctx context.Context) error {
	start := time.Now()
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int()
	if err != nil {
		observe(l.metrics, "release", "failed", start)
		return fmt.Errorf("ロック解放に失敗: %w", err)
	}
	if result == 0 {
		observe(l.metrics, "release", "failed", start)
		return ErrLockNotOwned
	}
	observe(l.metrics, "release", "success", start)
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("ロック延長に失敗: %w", err)
	}
	if result == 0 {
		return ErrLockNotOwned
	}
	l.ttl = ttl
	return nil
}

func observe(m *metrics.Metrics, operation, status string, start time.Time) {
	if m != nil {
		m.DistributedLockDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	}
}
