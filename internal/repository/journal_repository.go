package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

const journalColumns = `id, group_id, item_id, user_id, resource_id, new_expiry_ms, status, created_at, updated_at`

// JournalRepository stores pending renewal effects. It owns a pool separate
// from the redemption pool so that writing an entry while a redemption
// transaction holds a connection cannot starve the main pool.
type JournalRepository struct {
	pool PoolInterface
}

// NewJournalRepository creates a new JournalRepository with the given pool.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// NewJournalRepositoryWithPool creates a new JournalRepository with a custom pool interface.
func NewJournalRepositoryWithPool(pool PoolInterface) *JournalRepository {
	return &JournalRepository{pool: pool}
}

func scanEntry(row pgx.Row) (*model.EffectJournalEntry, error) {
	var e model.EffectJournalEntry
	var status string
	err := row.Scan(&e.ID, &e.GroupID, &e.ItemID, &e.UserID, &e.ResourceID, &e.NewExpiryMS, &status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = model.EffectStatus(status)
	return &e, nil
}

// Insert commits a new entry immediately on the journal pool.
func (r *JournalRepository) Insert(ctx context.Context, entry *model.EffectJournalEntry) error {
	query := `INSERT INTO coupon_effect_journal (id, group_id, item_id, user_id, resource_id, new_expiry_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		entry.ID, entry.GroupID, entry.ItemID, entry.UserID, entry.ResourceID, entry.NewExpiryMS, string(entry.Status),
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", entry.ID, err)
	}
	return nil
}

// SetStatus updates an entry through q, or through the journal pool when q is nil.
func (r *JournalRepository) SetStatus(ctx context.Context, q database.TxQuerier, id string, status model.EffectStatus) error {
	var exec PoolInterface = r.pool
	if q != nil {
		exec = q
	}
	_, err := exec.Exec(ctx,
		`UPDATE coupon_effect_journal SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("set journal entry %s to %s: %w", id, status, err)
	}
	return nil
}

// ListPending returns pending entries created before the cutoff, oldest first.
func (r *JournalRepository) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]model.EffectJournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM coupon_effect_journal
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending journal entries: %w", err)
	}
	defer rows.Close()

	entries := []model.EffectJournalEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}

// GetForUpdate locks an entry inside tx. Returns nil, nil if it does not exist.
func (r *JournalRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, id string) (*model.EffectJournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM coupon_effect_journal WHERE id = $1 FOR UPDATE`

	e, err := scanEntry(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get journal entry %s for update: %w", id, err)
	}
	return e, nil
}
