package repository

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

// BalanceRepository credits user balances. Every method runs inside the
// caller's transaction.
type BalanceRepository struct{}

// NewBalanceRepository creates a new BalanceRepository.
func NewBalanceRepository() *BalanceRepository {
	return &BalanceRepository{}
}

// Credit adds amount to the user's balance, creating the user row if needed.
func (r *BalanceRepository) Credit(ctx context.Context, tx database.TxQuerier, userID, amount int64) error {
	query := `INSERT INTO users (tg_id, balance) VALUES ($1, $2)
		ON CONFLICT (tg_id) DO UPDATE SET balance = users.balance + EXCLUDED.balance`

	if _, err := tx.Exec(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("credit user %d: %w", userID, err)
	}
	return nil
}

// RecordPayment appends an audit payment row.
func (r *BalanceRepository) RecordPayment(ctx context.Context, tx database.TxQuerier, userID, amount int64, source string) error {
	query := `INSERT INTO payments (tg_id, amount, payment_system, status) VALUES ($1, $2, $3, 'success')`

	if _, err := tx.Exec(ctx, query, userID, amount, source); err != nil {
		return fmt.Errorf("record payment for user %d: %w", userID, err)
	}
	return nil
}

// Balance returns the user's balance, or 0 if the user has none.
func (r *BalanceRepository) Balance(ctx context.Context, q database.TxQuerier, userID int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `SELECT COALESCE((SELECT balance FROM users WHERE tg_id = $1), 0)`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance for user %d: %w", userID, err)
	}
	return balance, nil
}
