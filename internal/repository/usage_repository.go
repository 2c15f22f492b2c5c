package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/internal/service"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

// UsageRepository provides access to the usage ledger. Rows are only ever
// inserted; they disappear solely through cascade when the group is deleted.
type UsageRepository struct {
	pool PoolInterface
}

// NewUsageRepository creates a new UsageRepository with the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// NewUsageRepositoryWithPool creates a new UsageRepository with a custom pool interface.
// This is primarily used for testing.
func NewUsageRepositoryWithPool(pool PoolInterface) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Exists reports whether the user already redeemed a code of the group.
func (r *UsageRepository) Exists(ctx context.Context, groupID, userID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM coupon_group_usages WHERE group_id = $1 AND user_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check usage for group %d user %d: %w", groupID, userID, err)
	}
	return exists, nil
}

// ExistsForUpdate is Exists inside tx, locking the receipt row if present.
// A missing row cannot be locked; the primary key on (group_id, user_id)
// rejects the second of two concurrent inserts instead.
func (r *UsageRepository) ExistsForUpdate(ctx context.Context, tx database.TxQuerier, groupID, userID int64) (bool, error) {
	query := `SELECT 1 FROM coupon_group_usages WHERE group_id = $1 AND user_id = $2 FOR UPDATE`

	var one int
	err := tx.QueryRow(ctx, query, groupID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock usage for group %d user %d: %w", groupID, userID, err)
	}
	return true, nil
}

// Insert writes the receipt within a transaction.
// Returns service.ErrAlreadyRedeemed if the user already holds one for the group.
func (r *UsageRepository) Insert(ctx context.Context, tx database.TxQuerier, groupID, userID, itemID int64) error {
	query := `INSERT INTO coupon_group_usages (group_id, user_id, coupon_item_id) VALUES ($1, $2, $3)`

	_, err := tx.Exec(ctx, query, groupID, userID, itemID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return service.ErrAlreadyRedeemed
		}
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// Get returns the user's receipt for a group, or nil if there is none.
func (r *UsageRepository) Get(ctx context.Context, groupID, userID int64) (*model.CouponGroupUsage, error) {
	query := `SELECT group_id, user_id, coupon_item_id, used_at FROM coupon_group_usages WHERE group_id = $1 AND user_id = $2`

	var u model.CouponGroupUsage
	err := r.pool.QueryRow(ctx, query, groupID, userID).Scan(&u.GroupID, &u.UserID, &u.CouponItemID, &u.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage for group %d user %d: %w", groupID, userID, err)
	}
	return &u, nil
}

// CountByGroup returns the number of receipts for a group.
func (r *UsageRepository) CountByGroup(ctx context.Context, groupID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM coupon_group_usages WHERE group_id = $1`, groupID)
}

// CountUniqueUsers returns the number of distinct users that redeemed in a group.
func (r *UsageRepository) CountUniqueUsers(ctx context.Context, groupID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(DISTINCT user_id) FROM coupon_group_usages WHERE group_id = $1`, groupID)
}

func (r *UsageRepository) count(ctx context.Context, query string, groupID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usages for group %d: %w", groupID, err)
	}
	return n, nil
}
