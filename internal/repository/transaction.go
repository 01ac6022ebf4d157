package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
)

const transactionColumns = `id, account_id, type, amount, balance_after, description, created_at`

// TransactionRepository handles ledger entry persistence.
// Entries are append-only: there is no update or delete.
type TransactionRepository struct {
	q db.Querier
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(q db.Querier) *TransactionRepository {
	return &TransactionRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Create appends a ledger entry.
func (r *TransactionRepository) Create(ctx context.Context, accountID int64, txType string, amount, balanceAfter int64, description string) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (account_id, type, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING ` + transactionColumns

	var tx model.Transaction
	err := r.q.QueryRow(ctx, query, accountID, txType, amount, balanceAfter, description).Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Type,
		&tx.Amount,
		&tx.BalanceAfter,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// GetByAccountID retrieves an account's entries, newest first.
func (r *TransactionRepository) GetByAccountID(ctx context.Context, accountID int64, limit, offset int) ([]*model.Transaction, error) {
	const query = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*model.Transaction, error) {
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Type,
			&tx.Amount,
			&tx.BalanceAfter,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// AccountTotals summarizes an account's ledger for reconciliation.
type AccountTotals struct {
	Count            int64
	Sum              int64
	LastBalanceAfter *int64
}

// Totals returns the entry count, the sum of amounts and the balance_after
// of the most recent entry for an account.
func (r *TransactionRepository) Totals(ctx context.Context, accountID int64) (*AccountTotals, error) {
	const query = `
		SELECT COUNT(*), COALESCE(SUM(amount), 0),
			(SELECT balance_after FROM transactions
			 WHERE account_id = $1
			 ORDER BY id DESC LIMIT 1)
		FROM transactions
		WHERE account_id = $1
	`

	var totals AccountTotals
	err := r.q.QueryRow(ctx, query, accountID).Scan(&totals.Count, &totals.Sum, &totals.LastBalanceAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction totals: %w", err)
	}

	return &totals, nil
}

// CountByType counts an account's entries of one type.
func (r *TransactionRepository) CountByType(ctx context.Context, accountID int64, txType string) (int64, error) {
	const query = `SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND type = $2`

	var n int64
	if err := r.q.QueryRow(ctx, query, accountID, txType).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
