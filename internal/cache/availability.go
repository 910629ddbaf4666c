package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/config"
	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

// NewClient はRedisクライアントを作成します。アドレスが未設定の場合は nil を返します
func NewClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// AvailabilityCache はテーブルごと・日付ごとの空き区間をRedisに保存します
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache は新しいAvailabilityCacheを作成します
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// Key は空き区間を保存するキーを返します
func Key(tableID int64, date string) string {
	return fmt.Sprintf("availability:%d:%s", tableID, date)
}

// VersionKey はテーブルの空き区間の版を保存するキーを返します
// 版は Invalidate のたびに進み、期限はありません
func VersionKey(tableID int64) string {
	return fmt.Sprintf("availability:%d:version", tableID)
}

type entry struct {
	Version int64            `json:"version"`
	Free    []model.Interval `json:"free"`
}

// Get はキャッシュ済みの空き区間と、テーブルの現在の版を返します
// キャッシュがない場合や保存時の版が古い場合は ok が false になります
func (c *AvailabilityCache) Get(ctx context.Context, tableID int64, date string) ([]model.Interval, int64, bool, error) {
	vals, err := c.client.MGet(ctx, VersionKey(tableID), Key(tableID, date)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get availability: %w", err)
	}
	if len(vals) != 2 {
		return nil, 0, false, fmt.Errorf("failed to get availability: unexpected reply length %d", len(vals))
	}

	version, err := parseVersion(vals[0])
	if err != nil {
		return nil, 0, false, err
	}
	if vals[1] == nil {
		return nil, version, false, nil
	}
	raw, ok := vals[1].(string)
	if !ok {
		return nil, 0, false, fmt.Errorf("failed to decode availability: unexpected type %T", vals[1])
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, 0, false, fmt.Errorf("failed to decode availability: %w", err)
	}
	if e.Version != version {
		return nil, version, false, nil
	}
	return e.Free, version, true, nil
}

func parseVersion(v interface{}) (int64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to decode availability version: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("failed to decode availability version: unexpected type %T", v)
	}
}

// Set は空き区間を版とともに TTL 付きで保存します
func (c *AvailabilityCache) Set(ctx context.Context, tableID int64, date string, version int64, free []model.Interval) error {
	data, err := json.Marshal(entry{Version: version, Free: free})
	if err != nil {
		return fmt.Errorf("failed to encode availability: %w", err)
	}
	return c.client.Set(ctx, Key(tableID, date), data, c.ttl).Err()
}

// Invalidate は版を進め、指定した日付のキャッシュを削除します
func (c *AvailabilityCache) Invalidate(ctx context.Context, tableID int64, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = Key(tableID, d)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, VersionKey(tableID))
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate availability: %w", err)
	}
	return nil
}
