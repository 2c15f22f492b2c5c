package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/internal/service"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const itemColumns = `id, group_id, code, amount, days, usage_limit, usage_count, is_used, created_at`

// ItemRepository provides data access for coupon group items using pgx.
type ItemRepository struct {
	pool PoolInterface
}

// NewItemRepository creates a new ItemRepository with the given pool.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// NewItemRepositoryWithPool creates a new ItemRepository with a custom pool interface.
// This is primarily used for testing.
func NewItemRepositoryWithPool(pool PoolInterface) *ItemRepository {
	return &ItemRepository{pool: pool}
}

func scanItem(row pgx.Row) (*model.CouponGroupItem, error) {
	var item model.CouponGroupItem
	err := row.Scan(
		&item.ID,
		&item.GroupID,
		&item.Code,
		&item.Amount,
		&item.Days,
		&item.UsageLimit,
		&item.UsageCount,
		&item.IsUsed,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Insert adds an item to its group.
// Returns service.ErrDuplicateCode if the code exists in any group and
// service.ErrGroupNotFound if the group is gone.
func (r *ItemRepository) Insert(ctx context.Context, item *model.NewItem) (*model.CouponGroupItem, error) {
	var amount int64
	var days *int
	switch rw := item.Reward.(type) {
	case model.BalanceReward:
		amount = rw.Amount
	case model.ExtensionReward:
		d := rw.Days
		days = &d
	default:
		return nil, service.ErrInvalidReward
	}

	query := `INSERT INTO coupon_group_items (group_id, code, amount, days, usage_limit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + itemColumns

	created, err := scanItem(r.pool.QueryRow(ctx, query, item.GroupID, item.Code, amount, days, item.UsageLimit))
	if err != nil {
		switch database.PgCode(err) {
		case database.CodeUniqueViolation:
			return nil, service.ErrDuplicateCode
		case database.CodeForeignKeyViolation:
			return nil, service.ErrGroupNotFound
		}
		return nil, fmt.Errorf("insert item %s: %w", item.Code, err)
	}
	return created, nil
}

// GetByCode retrieves an item by its code without locking.
// Returns nil, nil if the code is not found (service layer handles this).
func (r *ItemRepository) GetByCode(ctx context.Context, code string) (*model.CouponGroupItem, error) {
	query := `SELECT ` + itemColumns + ` FROM coupon_group_items WHERE code = $1`

	item, err := scanItem(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get item by code %s: %w", code, err)
	}
	return item, nil
}

// ListByGroup returns all items of a group in insertion order.
// Returns an empty slice (not nil) when the group has no items.
func (r *ItemRepository) ListByGroup(ctx context.Context, groupID int64) ([]model.CouponGroupItem, error) {
	query := `SELECT ` + itemColumns + ` FROM coupon_group_items WHERE group_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("list items for group %d: %w", groupID, err)
	}
	defer rows.Close()

	items := []model.CouponGroupItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}
	return items, nil
}

// GetByCodeForUpdate retrieves an item with a row lock (SELECT FOR UPDATE).
// This locks the row until the transaction completes.
// Returns service.ErrCodeNotFound if the code doesn't exist.
func (r *ItemRepository) GetByCodeForUpdate(ctx context.Context, tx database.TxQuerier, code string) (*model.CouponGroupItem, error) {
	query := `SELECT ` + itemColumns + ` FROM coupon_group_items WHERE code = $1 FOR UPDATE`

	item, err := scanItem(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCodeNotFound
		}
		return nil, fmt.Errorf("get item for update %s: %w", code, err)
	}
	return item, nil
}

// GetByIDForUpdate is GetByCodeForUpdate keyed by item id.
func (r *ItemRepository) GetByIDForUpdate(ctx context.Context, tx database.TxQuerier, id int64) (*model.CouponGroupItem, error) {
	query := `SELECT ` + itemColumns + ` FROM coupon_group_items WHERE id = $1 FOR UPDATE`

	item, err := scanItem(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCodeNotFound
		}
		return nil, fmt.Errorf("get item %d for update: %w", id, err)
	}
	return item, nil
}

// IncrementUsage counts one redemption against the item and recomputes the
// exhausted flag. Must be called within a transaction after locking the row.
// Returns service.ErrLimitExhausted if the limit was already reached.
func (r *ItemRepository) IncrementUsage(ctx context.Context, tx database.TxQuerier, id int64) error {
	query := `UPDATE coupon_group_items
		SET usage_count = usage_count + 1, is_used = usage_count + 1 >= usage_limit
		WHERE id = $1 AND usage_count < usage_limit`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment usage for item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrLimitExhausted
	}
	return nil
}

// CountByGroup returns the number of items in a group and how many of them
// have been redeemed at least once.
func (r *ItemRepository) CountByGroup(ctx context.Context, groupID int64) (int, int, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE usage_count > 0) FROM coupon_group_items WHERE group_id = $1`

	var total, activated int
	if err := r.pool.QueryRow(ctx, query, groupID).Scan(&total, &activated); err != nil {
		return 0, 0, fmt.Errorf("count items for group %d: %w", groupID, err)
	}
	return total, activated, nil
}
