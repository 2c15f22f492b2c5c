package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-groups/internal/model"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

const keyColumns = `client_id, tg_id, email, server_id, expiry_time, is_frozen`

// KeyRepository provides access to the local copy of users' keys.
type KeyRepository struct {
	pool PoolInterface
}

// NewKeyRepository creates a new KeyRepository with the given pool.
func NewKeyRepository(pool *pgxpool.Pool) *KeyRepository {
	return &KeyRepository{pool: pool}
}

// NewKeyRepositoryWithPool creates a new KeyRepository with a custom pool interface.
func NewKeyRepositoryWithPool(pool PoolInterface) *KeyRepository {
	return &KeyRepository{pool: pool}
}

func scanKey(row pgx.Row) (*model.Key, error) {
	var k model.Key
	if err := row.Scan(&k.ClientID, &k.UserID, &k.Email, &k.ServerID, &k.ExpiryTime, &k.IsFrozen); err != nil {
		return nil, err
	}
	return &k, nil
}

// ListActiveByUser returns the user's keys that are not frozen, latest expiry
// first. Lapsed keys are included; they can still be extended.
func (r *KeyRepository) ListActiveByUser(ctx context.Context, userID int64) ([]model.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE tg_id = $1 AND NOT is_frozen ORDER BY expiry_time DESC, client_id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list keys for user %d: %w", userID, err)
	}
	defer rows.Close()

	keys := []model.Key{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key rows: %w", err)
	}
	return keys, nil
}

// GetForUpdate locks the user's key. Returns nil, nil if the key does not
// exist or belongs to someone else.
func (r *KeyRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, userID int64, clientID string) (*model.Key, error) {
	query := `SELECT ` + keyColumns + ` FROM keys WHERE client_id = $1 AND tg_id = $2 FOR UPDATE`

	k, err := scanKey(tx.QueryRow(ctx, query, clientID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get key %s for update: %w", clientID, err)
	}
	return k, nil
}

// UpdateExpiry sets the key's expiry. Must be called after GetForUpdate in the same transaction.
func (r *KeyRepository) UpdateExpiry(ctx context.Context, tx database.TxQuerier, clientID string, expiryMS int64) error {
	if _, err := tx.Exec(ctx, `UPDATE keys SET expiry_time = $2 WHERE client_id = $1`, clientID, expiryMS); err != nil {
		return fmt.Errorf("update expiry for key %s: %w", clientID, err)
	}
	return nil
}
