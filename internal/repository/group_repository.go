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

// GroupRepository provides data access for coupon groups using pgx.
type GroupRepository struct {
	pool PoolInterface
}

// NewGroupRepository creates a new GroupRepository with the given pool.
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// NewGroupRepositoryWithPool creates a new GroupRepository with a custom pool interface.
func NewGroupRepositoryWithPool(pool PoolInterface) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// Insert creates a group.
// Returns service.ErrDuplicateName if the name is taken.
func (r *GroupRepository) Insert(ctx context.Context, name string) (*model.CouponGroup, error) {
	group := model.CouponGroup{Name: name}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO coupon_groups (name) VALUES ($1) RETURNING id, created_at`,
		name).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, service.ErrDuplicateName
		}
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &group, nil
}

// GetByID returns nil, nil when the group does not exist.
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*model.CouponGroup, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM coupon_groups WHERE id = $1`, id)
}

// GetByName returns nil, nil when the group does not exist.
func (r *GroupRepository) GetByName(ctx context.Context, name string) (*model.CouponGroup, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM coupon_groups WHERE name = $1`, name)
}

func (r *GroupRepository) getOne(ctx context.Context, query string, arg any) (*model.CouponGroup, error) {
	var group model.CouponGroup
	err := r.pool.QueryRow(ctx, query, arg).Scan(&group.ID, &group.Name, &group.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get group %v: %w", arg, err)
	}
	return &group, nil
}

// List returns groups newest-first.
func (r *GroupRepository) List(ctx context.Context, limit, offset int) ([]model.CouponGroup, error) {
	query := `SELECT id, name, created_at FROM coupon_groups ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := []model.CouponGroup{}
	for rows.Next() {
		var g model.CouponGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}

// Count returns the number of groups.
func (r *GroupRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_groups`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return n, nil
}

// Delete removes a group; items and usages go with it through ON DELETE CASCADE.
// Reports whether a row was deleted.
func (r *GroupRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupon_groups WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete group %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
