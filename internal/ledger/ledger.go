// Package ledger owns every balance change. A change is one relative update
// of accounts.balance plus one Transaction row carrying the resulting
// balance, plus one SystemLog row, all inside the caller's atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/repository"
)

// Ledger errors.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroDelta           = errors.New("balance delta must not be zero")
	ErrNegativeBalance     = errors.New("balance would become negative")
)

// Adjustment describes one balance change.
type Adjustment struct {
	AccountID   int64
	Delta       int64
	Type        string
	Description string
}

// Result is the outcome of an applied adjustment.
type Result struct {
	Transaction *model.Transaction
	NewBalance  int64
}

// Ledger applies balance changes.
type Ledger struct {
	pool *db.Pool
}

// New creates a Ledger on pool.
func New(pool *db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Apply performs adj inside tx. The caller owns tx; any error leaves it to
// be rolled back by the enclosing unit.
func (l *Ledger) Apply(ctx context.Context, tx pgx.Tx, adj Adjustment) (*Result, error) {
	if adj.Delta == 0 {
		return nil, ErrZeroDelta
	}

	newBalance, err := repository.NewAccountRepository(tx).ApplyDelta(ctx, adj.AccountID, adj.Delta)
	if err != nil {
		return nil, err
	}
	if newBalance < 0 {
		return nil, fmt.Errorf("%w: account %d would hold %d", ErrNegativeBalance, adj.AccountID, newBalance)
	}

	entry, err := repository.NewTransactionRepository(tx).Create(ctx, adj.AccountID, adj.Type, adj.Delta, newBalance, adj.Description)
	if err != nil {
		return nil, err
	}

	accountID := adj.AccountID
	desc := fmt.Sprintf("%s %+d, balance %d: %s", adj.Type, adj.Delta, newBalance, adj.Description)
	if err := repository.NewSystemLogRepository(tx).Create(ctx, model.ActionBalanceAdjusted, desc, &accountID); err != nil {
		return nil, err
	}

	log.Debug().
		Int64("account_id", adj.AccountID).
		Int64("delta", adj.Delta).
		Int64("balance", newBalance).
		Str("type", adj.Type).
		Msg("Balance adjusted")

	return &Result{Transaction: entry, NewBalance: newBalance}, nil
}

// RequireFunds locks the account row and verifies it holds at least amount.
// The lock is held until tx ends, so a debit applied afterwards in the same
// unit cannot race another debit.
func (l *Ledger) RequireFunds(ctx context.Context, tx pgx.Tx, accountID, amount int64) (*model.Account, error) {
	account, err := repository.NewAccountRepository(tx).GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Balance < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, account.Balance, amount)
	}
	return account, nil
}

// AdjustBalance applies adj in its own atomic unit. Debits are checked
// against the locked balance first.
func (l *Ledger) AdjustBalance(ctx context.Context, adj Adjustment) (*Result, error) {
	var result *Result
	err := l.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if adj.Delta < 0 {
			if _, err := l.RequireFunds(ctx, tx, adj.AccountID, -adj.Delta); err != nil {
				return err
			}
		}
		r, err := l.Apply(ctx, tx, adj)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
