package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/dbtest"
	"payout-ledger/internal/repository"
)

func TestLedger_AdjustBalance(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	l := New(pool)
	ctx := context.Background()
	id := dbtest.CreateAccount(t, pool, "alice", 1000, nil)

	res, err := l.AdjustBalance(ctx, Adjustment{AccountID: id, Delta: -400, Type: model.TxTypePurchase, Description: "vip1"})
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.NewBalance)
	assert.Equal(t, int64(-400), res.Transaction.Amount)
	assert.Equal(t, int64(600), res.Transaction.BalanceAfter)

	logs, err := repository.NewSystemLogRepository(pool).GetByAction(ctx, model.ActionBalanceAdjusted, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestLedger_AdjustBalance_InsufficientFunds(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	l := New(pool)
	ctx := context.Background()
	id := dbtest.CreateAccount(t, pool, "bob", 150, nil)

	_, err := l.AdjustBalance(ctx, Adjustment{AccountID: id, Delta: -200, Type: model.TxTypeAdminDeduction})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	account, err := repository.NewAccountRepository(pool).GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(150), account.Balance)

	n, err := repository.NewTransactionRepository(pool).CountByType(ctx, id, model.TxTypeAdminDeduction)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_Apply_RollsBackWithUnit(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	l := New(pool)
	ctx := context.Background()
	id := dbtest.CreateAccount(t, pool, "carol", 100, nil)

	boom := errors.New("later step failed")
	err := pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := l.Apply(ctx, tx, Adjustment{AccountID: id, Delta: 50, Type: model.TxTypeDeposit}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	totals, err := repository.NewTransactionRepository(pool).Totals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Count)
	assert.Equal(t, int64(100), totals.Sum)
}

func TestLedger_Apply_RejectsZeroAndUnknown(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	l := New(pool)
	ctx := context.Background()

	_, err := l.AdjustBalance(ctx, Adjustment{AccountID: 1, Delta: 0, Type: model.TxTypeDeposit})
	assert.ErrorIs(t, err, ErrZeroDelta)

	_, err = l.AdjustBalance(ctx, Adjustment{AccountID: 99999, Delta: 10, Type: model.TxTypeDeposit})
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	l := New(pool)
	ctx := context.Background()
	id := dbtest.CreateAccount(t, pool, "dave", 1000, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.AdjustBalance(ctx, Adjustment{AccountID: id, Delta: -100, Type: model.TxTypeWithdrawal})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)

	account, err := repository.NewAccountRepository(pool).GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)

	totals, err := repository.NewTransactionRepository(pool).Totals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, account.Balance, totals.Sum)
	require.NotNil(t, totals.LastBalanceAfter)
	assert.Equal(t, account.Balance, *totals.LastBalanceAfter)
}
