package ledger

import (
	"context"

	"github.com/uma-arai/sbcntr-restaurant/internal/model"
)

// AvailabilityCache は日付単位の空き区間キャッシュです
// Get はテーブルの現在の版を返し、Set はその版で保存します
// Invalidate で版が進むため、古い版で保存された区間はヒットしません
type AvailabilityCache interface {
	Get(ctx context.Context, tableID int64, date string) (free []model.Interval, version int64, ok bool, err error)
	Set(ctx context.Context, tableID int64, date string, version int64, free []model.Interval) error
	Invalidate(ctx context.Context, tableID int64, dates ...string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64, string) ([]model.Interval, int64, bool, error) {
	return nil, 0, false, nil
}

func (noopCache) Set(context.Context, int64, string, int64, []model.Interval) error { return nil }

func (noopCache) Invalidate(context.Context, int64, ...string) error { return nil }
