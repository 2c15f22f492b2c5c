package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

// GroupRepositoryInterface defines the interface for coupon group data access.
type GroupRepositoryInterface interface {
	Insert(ctx context.Context, name string) (*model.CouponGroup, error)
	GetByID(ctx context.Context, id int64) (*model.CouponGroup, error)
	GetByName(ctx context.Context, name string) (*model.CouponGroup, error)
	List(ctx context.Context, limit, offset int) ([]model.CouponGroup, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// ItemRepositoryInterface defines the interface for coupon item data access.
type ItemRepositoryInterface interface {
	Insert(ctx context.Context, item *model.NewItem) (*model.CouponGroupItem, error)
	GetByCode(ctx context.Context, code string) (*model.CouponGroupItem, error)
	ListByGroup(ctx context.Context, groupID int64) ([]model.CouponGroupItem, error)
	GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.CouponGroupItem, error)
	GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id int64) (*model.CouponGroupItem, error)
	IncrementUsage(ctx context.Context, tx database.TxQuerier, id int64) error
	CountByGroup(ctx context.Context, groupID int64) (total int, activated int, err error)
}

// CatalogService manages coupon groups and their items.
type CatalogService struct {
	groupRepo     GroupRepositoryInterface
	itemRepo      ItemRepositoryInterface
	reporting     *ReportingService
	groupsPerPage int
	itemsPerPage  int
}

// NewCatalogService creates a CatalogService. Non-positive page sizes default to 10.
func NewCatalogService(groupRepo GroupRepositoryInterface, itemRepo ItemRepositoryInterface, reporting *ReportingService, groupsPerPage, itemsPerPage int) *CatalogService {
	if groupsPerPage <= 0 {
		groupsPerPage = 10
	}
	if itemsPerPage <= 0 {
		itemsPerPage = 10
	}
	return &CatalogService{
		groupRepo:     groupRepo,
		itemRepo:      itemRepo,
		reporting:     reporting,
		groupsPerPage: groupsPerPage,
		itemsPerPage:  itemsPerPage,
	}
}

// CreateGroup creates a new group.
// Returns ErrDuplicateName if the name is taken.
func (s *CatalogService) CreateGroup(ctx context.Context, name string) (*model.CouponGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > model.MaxGroupNameLength {
		return nil, ErrInvalidRequest
	}

	group, err := s.groupRepo.Insert(ctx, name)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("group_id", group.ID).Str("group_name", group.Name).Msg("coupon group created")
	return group, nil
}

// GetGroup returns a group by id, or ErrGroupNotFound.
func (s *CatalogService) GetGroup(ctx context.Context, id int64) (*model.CouponGroup, error) {
	group, err := s.groupRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// GetGroupByName returns a group by name, or ErrGroupNotFound.
func (s *CatalogService) GetGroupByName(ctx context.Context, name string) (*model.CouponGroup, error) {
	group, err := s.groupRepo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// ListGroups returns one page of groups, newest first. Pages are 1-based.
func (s *CatalogService) ListGroups(ctx context.Context, page int) (*model.GroupPage, error) {
	if page < 1 {
		page = 1
	}

	total, err := s.groupRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}

	groups, err := s.groupRepo.List(ctx, s.groupsPerPage, (page-1)*s.groupsPerPage)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	return &model.GroupPage{
		Groups:      groups,
		Total:       total,
		Pages:       pageCount(total, s.groupsPerPage),
		CurrentPage: page,
	}, nil
}

// DeleteGroup removes a group together with its items and usage receipts.
func (s *CatalogService) DeleteGroup(ctx context.Context, id int64) error {
	deleted, err := s.groupRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if !deleted {
		return ErrGroupNotFound
	}
	log.Info().Int64("group_id", id).Msg("coupon group deleted")
	return nil
}

// AddItem adds one code to a group.
// Returns ErrDuplicateCode if the code exists in any group.
func (s *CatalogService) AddItem(ctx context.Context, groupID int64, code string, reward model.Reward, usageLimit int) (*model.CouponGroupItem, error) {
	code = strings.TrimSpace(code)
	if code == "" || reward == nil || usageLimit < 1 {
		return nil, ErrInvalidRequest
	}
	if err := validateReward(reward); err != nil {
		return nil, err
	}

	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	item, err := s.itemRepo.Insert(ctx, &model.NewItem{
		GroupID:    groupID,
		Code:       code,
		Reward:     reward,
		UsageLimit: usageLimit,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("group_id", groupID).Str("code", code).Msg("coupon added to group")
	return item, nil
}

// GetItemByCode returns an item by code, or ErrCodeNotFound.
func (s *CatalogService) GetItemByCode(ctx context.Context, code string) (*model.CouponGroupItem, error) {
	item, err := s.itemRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item == nil {
		return nil, ErrCodeNotFound
	}
	return item, nil
}

// ListItems returns all items of a group.
func (s *CatalogService) ListItems(ctx context.Context, groupID int64) ([]model.CouponGroupItem, error) {
	items, err := s.itemRepo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// GroupDetail returns a group with its stats and one page of items in
// natural code order. The page is clamped to the available range.
func (s *CatalogService) GroupDetail(ctx context.Context, groupID int64, page int) (*model.GroupDetail, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	stats, err := s.reporting.Stats(ctx, groupID)
	if err != nil {
		return nil, err
	}
	usageCount, err := s.reporting.UsageCount(ctx, groupID)
	if err != nil {
		return nil, err
	}

	items, err := s.ListItems(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sortNatural(items)

	pages := pageCount(len(items), s.itemsPerPage)
	page = max(1, min(page, pages))
	start := min((page-1)*s.itemsPerPage, len(items))
	end := min(start+s.itemsPerPage, len(items))

	return &model.GroupDetail{
		Group:       *group,
		Stats:       *stats,
		UsageCount:  usageCount,
		Items:       items[start:end],
		Pages:       pages,
		CurrentPage: page,
	}, nil
}

func validateReward(r model.Reward) error {
	switch v := r.(type) {
	case model.BalanceReward:
		if v.Amount <= 0 {
			return ErrInvalidReward
		}
	case model.ExtensionReward:
		if v.Days <= 0 {
			return ErrInvalidReward
		}
	default:
		return ErrInvalidReward
	}
	return nil
}

func pageCount(total, perPage int) int {
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

var digitRuns = regexp.MustCompile(`\d+|\D+`)

// sortNatural orders items by code, comparing digit runs numerically
// so that "A2" sorts before "A10".
func sortNatural(items []model.CouponGroupItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return naturalLess(items[i].Code, items[j].Code)
	})
}

func naturalLess(a, b string) bool {
	pa := digitRuns.FindAllString(a, -1)
	pb := digitRuns.FindAllString(b, -1)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] == pb[i] {
			continue
		}
		na, errA := strconv.ParseUint(pa[i], 10, 64)
		nb, errB := strconv.ParseUint(pb[i], 10, 64)
		if errA == nil && errB == nil {
			if na != nb {
				return na < nb
			}
			return len(pa[i]) < len(pb[i])
		}
		return pa[i] < pb[i]
	}
	return len(pa) < len(pb)
}
