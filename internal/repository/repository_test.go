package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/dbtest"
)

// ============================================================================
// AccountRepository Tests
// ============================================================================

func TestAccountRepository_Create(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	account, err := repo.Create(ctx, "alice", "ALICE001", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, int64(0), account.Balance)
	assert.Equal(t, "ALICE001", account.ReferralCode)
	assert.Nil(t, account.InvitedBy)

	child, err := repo.Create(ctx, "bob", "BOB00001", &account.ID)
	require.NoError(t, err)
	require.NotNil(t, child.InvitedBy)
	assert.Equal(t, account.ID, *child.InvitedBy)

	_, err = repo.Create(ctx, "alice", "OTHER001", nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = repo.Create(ctx, "carol", "ALICE001", nil)
	assert.ErrorIs(t, err, ErrReferralCodeTaken)
}

func TestAccountRepository_GetByID(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	created, err := repo.Create(ctx, "carol", "CAROL001", nil)
	require.NoError(t, err)

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	byCode, err := repo.GetByReferralCode(ctx, "CAROL001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCode.ID)

	_, err = repo.GetByReferralCode(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_ApplyDelta(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	account, err := repo.Create(ctx, "dave", "DAVE0001", nil)
	require.NoError(t, err)

	balance, err := repo.ApplyDelta(ctx, account.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	balance, err = repo.ApplyDelta(ctx, account.ID, -200)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	_, err = repo.ApplyDelta(ctx, 99999, 100)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_Delete(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "erin", 100, nil)

	require.NoError(t, repo.Delete(ctx, id))

	exists, err := repo.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, repo.Delete(ctx, id), ErrAccountNotFound)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_CreateAndTotals(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "frank", 0, nil)

	totals, err := repo.Totals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Count)
	assert.Nil(t, totals.LastBalanceAfter)

	_, err = repo.Create(ctx, id, model.TxTypeDeposit, 1000, 1000, "deposit")
	require.NoError(t, err)
	tx, err := repo.Create(ctx, id, model.TxTypePurchase, -400, 600, "purchase")
	require.NoError(t, err)
	assert.Equal(t, int64(-400), tx.Amount)
	assert.Equal(t, int64(600), tx.BalanceAfter)

	totals, err = repo.Totals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count)
	assert.Equal(t, int64(600), totals.Sum)
	require.NotNil(t, totals.LastBalanceAfter)
	assert.Equal(t, int64(600), *totals.LastBalanceAfter)

	list, err := repo.GetByAccountID(ctx, id, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.TxTypePurchase, list[0].Type)

	n, err := repo.CountByType(ctx, id, model.TxTypeDeposit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// ============================================================================
// PurchaseRepository Tests
// ============================================================================

func newTestPurchase(accountID int64, start time.Time, cycleDays int) *model.Purchase {
	return &model.Purchase{
		AccountID:    accountID,
		ProductID:    "vip1",
		ProductName:  "VIP 1",
		Amount:       500,
		DailyReturn:  50,
		CycleDays:    cycleDays,
		PurchaseDate: start,
		NextPayout:   start.Add(24 * time.Hour),
		ExpiryDate:   start.Add(time.Duration(cycleDays) * 24 * time.Hour),
	}
}

func TestPurchaseRepository_ListDueAndRecordPayout(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewPurchaseRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "gina", 0, nil)
	start := time.Now().UTC().Add(-25 * time.Hour).Truncate(time.Second)

	p, err := repo.Create(ctx, newTestPurchase(id, start, 30))
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseActive, p.Status)

	now := time.Now().UTC()
	due, err := repo.ListDue(ctx, now, DueCursor{}, 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, p.ID, due[0].ID)

	updated, err := repo.RecordPayout(ctx, p.ID, 50, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.TotalEarned)
	assert.Equal(t, 1, updated.PayoutCount)
	assert.True(t, updated.NextPayout.Equal(p.NextPayout.Add(24*time.Hour)))
	require.NotNil(t, updated.LastPayout)

	due, err = repo.ListDue(ctx, now, DueCursor{}, 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPurchaseRepository_ListDueKeysetPages(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewPurchaseRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "ivan", 0, nil)
	start := time.Now().UTC().Add(-30 * time.Hour).Truncate(time.Second)

	var want []int64
	for i := 0; i < 3; i++ {
		p, err := repo.Create(ctx, newTestPurchase(id, start.Add(time.Duration(i)*time.Minute), 30))
		require.NoError(t, err)
		want = append(want, p.ID)
	}

	now := time.Now().UTC()
	var (
		got    []int64
		cursor DueCursor
	)
	for {
		page, err := repo.ListDue(ctx, now, cursor, 2)
		require.NoError(t, err)
		for _, p := range page {
			got = append(got, p.ID)
		}
		if len(page) < 2 {
			break
		}
		last := page[len(page)-1]
		cursor = DueCursor{NextPayout: last.NextPayout, ID: last.ID}
	}
	assert.Equal(t, want, got)
}

func TestPurchaseRepository_TransitionAndExpire(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewPurchaseRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "hank", 0, nil)
	now := time.Now().UTC()

	old, err := repo.Create(ctx, newTestPurchase(id, now.Add(-48*time.Hour), 1))
	require.NoError(t, err)
	fresh, err := repo.Create(ctx, newTestPurchase(id, now, 30))
	require.NoError(t, err)

	expired, err := repo.ExpireFinished(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Equal(t, id, expired[0].AccountID)

	ok, err := repo.TransitionStatus(ctx, old.ID, model.PurchaseActive, model.PurchaseCancelled)
	require.NoError(t, err)
	assert.False(t, ok, "completed purchase must not transition")

	ok, err = repo.TransitionStatus(ctx, fresh.ID, model.PurchaseActive, model.PurchaseCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.RecordPayout(ctx, fresh.ID, 50, now, 24*time.Hour)
	assert.ErrorIs(t, err, ErrPurchaseNotFound)

	active, err := repo.CountActive(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, active)
}

// ============================================================================
// ReferralRepository Tests
// ============================================================================

func TestReferralRepository_UplineAndTeam(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewReferralRepository(pool)
	ctx := context.Background()

	a := dbtest.CreateAccount(t, pool, "root", 0, nil)
	b := dbtest.CreateAccount(t, pool, "mid", 0, &a)
	c := dbtest.CreateAccount(t, pool, "leaf", 0, &b)

	require.NoError(t, repo.CreateLevel(ctx, a, b, 1))
	require.NoError(t, repo.CreateLevel(ctx, b, c, 1))
	require.NoError(t, repo.CreateLevel(ctx, a, c, 2))
	assert.ErrorIs(t, repo.CreateLevel(ctx, a, c, 2), ErrDuplicate)

	upline, err := repo.GetUpline(ctx, c)
	require.NoError(t, err)
	require.Len(t, upline, 2)
	assert.Equal(t, b, upline[0].ReferrerID)
	assert.Equal(t, 1, upline[0].Level)
	assert.Equal(t, a, upline[1].ReferrerID)

	team, err := repo.TeamCounts(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: 1, 2: 1}, team)
}

func TestReferralRepository_Bonuses(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewReferralRepository(pool)
	ctx := context.Background()

	a := dbtest.CreateAccount(t, pool, "inviter", 0, nil)
	b := dbtest.CreateAccount(t, pool, "invitee", 0, &a)

	bonus, err := repo.CreateBonus(ctx, &model.ReferralBonus{
		ReferrerID:     a,
		ReferredID:     &b,
		Level:          1,
		PurchaseAmount: 500,
		BonusAmount:    125,
		Percentage:     "0.25",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.2500", bonus.Percentage)
	assert.Nil(t, bonus.PurchaseID)

	list, err := repo.GetBonusesByReferrer(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(125), list[0].BonusAmount)
}

// ============================================================================
// SystemLogRepository / RequestRepository Tests
// ============================================================================

func TestSystemLogRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewSystemLogRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, model.ActionPayoutBatch, "processed 0", nil))
	id := int64(7)
	require.NoError(t, repo.Create(ctx, model.ActionAdminFailed, "boom", &id))

	logs, err := repo.GetByAction(ctx, model.ActionPayoutBatch, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].AccountID)
}

func TestRequestRepository_DepositLifecycle(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewRequestRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "ivy", 0, nil)

	d, err := repo.CreateDeposit(ctx, id, 1000, "bank-ref-1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, d.Status)

	pending, err := repo.GetDepositsByStatus(ctx, model.RequestPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	ok, err := repo.CloseDeposit(ctx, d.ID, model.RequestCompleted, "", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CloseDeposit(ctx, d.ID, model.RequestRejected, "late", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestRepository_WithdrawalLifecycle(t *testing.T) {
	pool, cleanup := dbtest.Setup(t)
	defer cleanup()

	repo := NewRequestRepository(pool)
	ctx := context.Background()

	id := dbtest.CreateAccount(t, pool, "jack", 0, nil)

	w, err := repo.CreateWithdrawal(ctx, id, 300, "AO06 0000 0000")
	require.NoError(t, err)

	ok, err := repo.CloseWithdrawal(ctx, w.ID, model.RequestRejected, "invalid iban", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	rejected, err := repo.GetWithdrawalsByStatus(ctx, model.RequestRejected, 10)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "invalid iban", rejected[0].Note)
	assert.NotNil(t, rejected[0].ProcessedAt)
}
