package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
)

// RequestRepository handles deposit and withdrawal requests.
// Both follow the same pending -> completed | rejected lifecycle.
type RequestRepository struct {
	q db.Querier
}

// NewRequestRepository creates a new RequestRepository instance.
func NewRequestRepository(q db.Querier) *RequestRepository {
	return &RequestRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *RequestRepository) WithTx(tx pgx.Tx) *RequestRepository {
	return &RequestRepository{q: tx}
}

// ============================================================================
// Deposits
// ============================================================================

const depositColumns = `id, account_id, amount, reference, status, note, created_at, processed_at`

func scanDeposit(row pgx.Row) (*model.Deposit, error) {
	var d model.Deposit
	err := row.Scan(&d.ID, &d.AccountID, &d.Amount, &d.Reference, &d.Status, &d.Note, &d.CreatedAt, &d.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDeposit records a pending deposit.
func (r *RequestRepository) CreateDeposit(ctx context.Context, accountID, amount int64, reference string) (*model.Deposit, error) {
	const query = `
		INSERT INTO deposits (account_id, amount, reference, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		RETURNING ` + depositColumns

	d, err := scanDeposit(r.q.QueryRow(ctx, query, accountID, amount, reference))
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}
	return d, nil
}

// GetDepositForUpdate retrieves a deposit and locks its row.
func (r *RequestRepository) GetDepositForUpdate(ctx context.Context, id int64) (*model.Deposit, error) {
	const query = `SELECT ` + depositColumns + ` FROM deposits WHERE id = $1 FOR UPDATE`

	d, err := scanDeposit(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to lock deposit: %w", err)
	}
	return d, nil
}

// CloseDeposit moves a pending deposit to status.
// It reports false when the deposit was no longer pending.
func (r *RequestRepository) CloseDeposit(ctx context.Context, id int64, status model.RequestStatus, note string, now time.Time) (bool, error) {
	const query = `
		UPDATE deposits
		SET status = $2, note = $3, processed_at = $4
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, status, note, now)
	if err != nil {
		return false, fmt.Errorf("failed to close deposit: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// GetDepositsByStatus lists deposits in a status, oldest first.
func (r *RequestRepository) GetDepositsByStatus(ctx context.Context, status model.RequestStatus, limit int) ([]*model.Deposit, error) {
	const query = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*model.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposits: %w", err)
	}
	return deposits, nil
}

// ============================================================================
// Withdrawals
// ============================================================================

const withdrawalColumns = `id, account_id, amount, destination, status, note, created_at, processed_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(&w.ID, &w.AccountID, &w.Amount, &w.Destination, &w.Status, &w.Note, &w.CreatedAt, &w.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWithdrawal records a pending withdrawal.
func (r *RequestRepository) CreateWithdrawal(ctx context.Context, accountID, amount int64, destination string) (*model.Withdrawal, error) {
	const query = `
		INSERT INTO withdrawals (account_id, amount, destination, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		RETURNING ` + withdrawalColumns

	w, err := scanWithdrawal(r.q.QueryRow(ctx, query, accountID, amount, destination))
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return w, nil
}

// GetWithdrawalForUpdate retrieves a withdrawal and locks its row.
func (r *RequestRepository) GetWithdrawalForUpdate(ctx context.Context, id int64) (*model.Withdrawal, error) {
	const query = `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to lock withdrawal: %w", err)
	}
	return w, nil
}

// CloseWithdrawal moves a pending withdrawal to status.
// It reports false when the withdrawal was no longer pending.
func (r *RequestRepository) CloseWithdrawal(ctx context.Context, id int64, status model.RequestStatus, note string, now time.Time) (bool, error) {
	const query = `
		UPDATE withdrawals
		SET status = $2, note = $3, processed_at = $4
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, status, note, now)
	if err != nil {
		return false, fmt.Errorf("failed to close withdrawal: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// GetWithdrawalsByStatus lists withdrawals in a status, oldest first.
func (r *RequestRepository) GetWithdrawalsByStatus(ctx context.Context, status model.RequestStatus, limit int) ([]*model.Withdrawal, error) {
	const query = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}
	return withdrawals, nil
}
