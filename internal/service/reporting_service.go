package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

// UsageCounterInterface defines the read-only usage ledger queries used for reporting.
type UsageCounterInterface interface {
	CountByGroup(ctx context.Context, groupID int64) (int, error)
	CountUniqueUsers(ctx context.Context, groupID int64) (int, error)
}

// StatsCache stores group stats for a short time. Stats may lag behind
// in-flight redemptions; nothing enforces an invariant from this cache.
type StatsCache interface {
	Get(ctx context.Context, groupID int64) (*model.GroupStats, bool, error)
	Set(ctx context.Context, groupID int64, stats *model.GroupStats) error
}

// ReportingService aggregates catalog and ledger counts.
type ReportingService struct {
	itemRepo  ItemRepositoryInterface
	usageRepo UsageCounterInterface
	cache     StatsCache
}

// NewReportingService creates a ReportingService. cache may be nil.
func NewReportingService(itemRepo ItemRepositoryInterface, usageRepo UsageCounterInterface, cache StatsCache) *ReportingService {
	return &ReportingService{itemRepo: itemRepo, usageRepo: usageRepo, cache: cache}
}

// Stats returns total, activated and remaining item counts and the number
// of distinct redeeming users for a group. No locks are taken.
func (s *ReportingService) Stats(ctx context.Context, groupID int64) (*model.GroupStats, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, groupID)
		if err != nil {
			log.Warn().Err(err).Int64("group_id", groupID).Msg("stats cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	var total, activated, users int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, activated, err = s.itemRepo.CountByGroup(gctx, groupID)
		if err != nil {
			return fmt.Errorf("count items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		users, err = s.usageRepo.CountUniqueUsers(gctx, groupID)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &model.GroupStats{
		TotalCoupons:     total,
		ActivatedCoupons: activated,
		RemainingCoupons: total - activated,
		UniqueUsers:      users,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, groupID, stats); err != nil {
			log.Warn().Err(err).Int64("group_id", groupID).Msg("stats cache write failed")
		}
	}
	return stats, nil
}

// UsageCount returns the number of usage receipts recorded for a group.
func (s *ReportingService) UsageCount(ctx context.Context, groupID int64) (int, error) {
	n, err := s.usageRepo.CountByGroup(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("count usages: %w", err)
	}
	return n, nil
}
