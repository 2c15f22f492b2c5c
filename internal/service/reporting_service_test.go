package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

func TestReportingService_Stats(t *testing.T) {
	items := &mockItemRepository{
		countByGroupFn: func(ctx context.Context, groupID int64) (int, int, error) { return 50, 12, nil },
	}
	usages := &mockUsageRepository{
		countUniqueUsersFn: func(ctx context.Context, groupID int64) (int, error) { return 12, nil },
	}
	var cached *model.GroupStats
	cache := &mockStatsCache{
		setFn: func(ctx context.Context, groupID int64, stats *model.GroupStats) error {
			cached = stats
			return nil
		},
	}
	svc := NewReportingService(items, usages, cache)

	stats, err := svc.Stats(context.Background(), 1)

	require.NoError(t, err)
	want := &model.GroupStats{TotalCoupons: 50, ActivatedCoupons: 12, RemainingCoupons: 38, UniqueUsers: 12}
	assert.Equal(t, want, stats)
	assert.Equal(t, want, cached)
}

func TestReportingService_Stats_CacheHit(t *testing.T) {
	items := &mockItemRepository{
		countByGroupFn: func(ctx context.Context, groupID int64) (int, int, error) {
			t.Fatal("store must not be queried on cache hit")
			return 0, 0, nil
		},
	}
	hit := &model.GroupStats{TotalCoupons: 3, ActivatedCoupons: 1, RemainingCoupons: 2, UniqueUsers: 1}
	cache := &mockStatsCache{
		getFn: func(ctx context.Context, groupID int64) (*model.GroupStats, bool, error) { return hit, true, nil },
	}
	svc := NewReportingService(items, &mockUsageRepository{}, cache)

	stats, err := svc.Stats(context.Background(), 1)

	require.NoError(t, err)
	assert.Same(t, hit, stats)
}

func TestReportingService_Stats_CacheErrorsIgnored(t *testing.T) {
	items := &mockItemRepository{
		countByGroupFn: func(ctx context.Context, groupID int64) (int, int, error) { return 2, 0, nil },
	}
	cache := &mockStatsCache{
		getFn: func(ctx context.Context, groupID int64) (*model.GroupStats, bool, error) {
			return nil, false, errors.New("redis down")
		},
		setFn: func(ctx context.Context, groupID int64, stats *model.GroupStats) error {
			return errors.New("redis down")
		},
	}
	svc := NewReportingService(items, &mockUsageRepository{}, cache)

	stats, err := svc.Stats(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.RemainingCoupons)
}

func TestReportingService_Stats_StoreError(t *testing.T) {
	usages := &mockUsageRepository{
		countUniqueUsersFn: func(ctx context.Context, groupID int64) (int, error) {
			return 0, errors.New("db down")
		},
	}
	svc := NewReportingService(&mockItemRepository{}, usages, nil)

	_, err := svc.Stats(context.Background(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "count users")
}

func TestReportingService_UsageCount(t *testing.T) {
	usages := &mockUsageRepository{
		countByGroupFn: func(ctx context.Context, groupID int64) (int, error) { return 9, nil },
	}
	svc := NewReportingService(&mockItemRepository{}, usages, nil)

	n, err := svc.UsageCount(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 9, n)
}
