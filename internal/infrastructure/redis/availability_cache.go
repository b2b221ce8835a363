package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache は座席の空き状況をバージョン付きのキーでキャッシュする
// 座席が変わるとバージョンが進むため、削除せずに TTL で古いエントリを消す
// バージョンはプロセスごとに0から数え直すので、キーにはプロセス固有の epoch も含める
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	epoch  string
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl, epoch: uuid.NewString()}
}

// Get は指定バージョンの空き状況をキャッシュから取得する
func (c *AvailabilityCache) Get(ctx context.Context, tripID string, version uint64) (*seat.Availability, error) {
	data, err := c.client.Get(ctx, c.key(tripID, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}

	var a seat.Availability
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}
	return &a, nil
}

// Set は空き状況を a.Version のキーで保存する
func (c *AvailabilityCache) Set(ctx context.Context, a *seat.Availability) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("キャッシュの変換に失敗: %w", err)
	}
	if err := c.client.Set(ctx, c.key(a.TripID, a.Version), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) key(tripID string, version uint64) string {
	return fmt.Sprintf("seats:availability:%s:%s:v%d", tripID, c.epoch, version)
}
