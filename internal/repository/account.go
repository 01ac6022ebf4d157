// Package repository provides data access layer implementations.
// Every repository runs against a db.Querier, so the same methods serve plain
// reads on the pool and statements inside an atomic unit via WithTx.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrDepositNotFound    = errors.New("deposit not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrDuplicate          = errors.New("duplicate record")
	ErrReferralCodeTaken  = errors.New("referral code taken")
)

const referralCodeConstraint = "accounts_referral_code_key"

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

const accountColumns = `id, username, balance, referral_code, invited_by, created_at, updated_at`

// AccountRepository handles account persistence.
type AccountRepository struct {
	q db.Querier
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(q db.Querier) *AccountRepository {
	return &AccountRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{q: tx}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Balance,
		&a.ReferralCode,
		&a.InvitedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create creates a new account with a zero balance.
// Returns ErrDuplicate if the username is taken and ErrReferralCodeTaken if
// the referral code is.
func (r *AccountRepository) Create(ctx context.Context, username, referralCode string, invitedBy *int64) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (username, balance, referral_code, invited_by, created_at, updated_at)
		VALUES ($1, 0, $2, $3, NOW(), NOW())
		RETURNING ` + accountColumns

	account, err := scanAccount(r.q.QueryRow(ctx, query, username, referralCode, invitedBy))
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == referralCodeConstraint {
				return nil, ErrReferralCodeTaken
			}
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetByID retrieves an account by ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetByIDForUpdate retrieves an account and locks its row until the
// surrounding transaction ends. Only meaningful on a tx-bound repository.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	return account, nil
}

// GetByReferralCode retrieves an account by its referral code.
func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE referral_code = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by referral code: %w", err)
	}

	return account, nil
}

// ApplyDelta adds delta to the account balance as a relative update and
// returns the resulting balance. It never overwrites the balance.
// Callers outside the ledger package must not use it.
func (r *AccountRepository) ApplyDelta(ctx context.Context, id int64, delta int64) (int64, error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, id, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	return balance, nil
}

// Delete removes an account. Purchases, transactions, referral rows and
// requests owned by it are removed by ON DELETE CASCADE.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Exists checks if an account with the given ID exists.
func (r *AccountRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`

	var exists bool
	err := r.q.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}

	return exists, nil
}
