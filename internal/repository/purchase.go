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

const purchaseColumns = `id, account_id, product_id, product_name, amount, daily_return, cycle_days,
	purchase_date, next_payout, expiry_date, status, total_earned, payout_count, last_payout,
	created_at, updated_at`

// PurchaseRepository handles purchase persistence.
type PurchaseRepository struct {
	q db.Querier
}

// NewPurchaseRepository creates a new PurchaseRepository instance.
func NewPurchaseRepository(q db.Querier) *PurchaseRepository {
	return &PurchaseRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *PurchaseRepository) WithTx(tx pgx.Tx) *PurchaseRepository {
	return &PurchaseRepository{q: tx}
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.ProductID,
		&p.ProductName,
		&p.Amount,
		&p.DailyReturn,
		&p.CycleDays,
		&p.PurchaseDate,
		&p.NextPayout,
		&p.ExpiryDate,
		&p.Status,
		&p.TotalEarned,
		&p.PayoutCount,
		&p.LastPayout,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPurchases(rows pgx.Rows) ([]*model.Purchase, error) {
	defer rows.Close()

	var purchases []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchases, nil
}

// Create inserts an active purchase. The schedule fields are taken from p.
func (r *PurchaseRepository) Create(ctx context.Context, p *model.Purchase) (*model.Purchase, error) {
	const query = `
		INSERT INTO purchases (account_id, product_id, product_name, amount, daily_return, cycle_days,
			purchase_date, next_payout, expiry_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'active', NOW(), NOW())
		RETURNING ` + purchaseColumns

	created, err := scanPurchase(r.q.QueryRow(ctx, query,
		p.AccountID, p.ProductID, p.ProductName, p.Amount, p.DailyReturn, p.CycleDays,
		p.PurchaseDate, p.NextPayout, p.ExpiryDate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	return created, nil
}

// GetByID retrieves a purchase by ID.
func (r *PurchaseRepository) GetByID(ctx context.Context, id int64) (*model.Purchase, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

	p, err := scanPurchase(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return p, nil
}

// GetByIDForUpdate retrieves a purchase and locks its row.
func (r *PurchaseRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Purchase, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1 FOR UPDATE`

	p, err := scanPurchase(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to lock purchase: %w", err)
	}

	return p, nil
}

// DueCursor is the keyset position of a ListDue page. The zero value starts
// from the beginning.
type DueCursor struct {
	NextPayout time.Time
	ID         int64
}

// ListDue returns up to limit active, unexpired purchases whose next payout
// is at or before now and sorts after cursor, oldest schedule first.
func (r *PurchaseRepository) ListDue(ctx context.Context, now time.Time, cursor DueCursor, limit int) ([]*model.Purchase, error) {
	const query = `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE status = 'active' AND next_payout <= $1 AND expiry_date > $1
			AND (next_payout, id) > ($2, $3)
		ORDER BY next_payout ASC, id ASC
		LIMIT $4
	`

	rows, err := r.q.Query(ctx, query, now, cursor.NextPayout, cursor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due purchases: %w", err)
	}
	return collectPurchases(rows)
}

// GetByAccountID retrieves an account's purchases, newest first.
func (r *PurchaseRepository) GetByAccountID(ctx context.Context, accountID int64) ([]*model.Purchase, error) {
	const query = `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE account_id = $1
		ORDER BY purchase_date DESC, id DESC
	`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchases: %w", err)
	}
	return collectPurchases(rows)
}

// RecordPayout advances the schedule of an active purchase by interval
// and accumulates amount. All counters are relative updates.
func (r *PurchaseRepository) RecordPayout(ctx context.Context, id int64, amount int64, now time.Time, interval time.Duration) (*model.Purchase, error) {
	const query = `
		UPDATE purchases
		SET next_payout = next_payout + make_interval(secs => $4),
			total_earned = total_earned + $2,
			payout_count = payout_count + 1,
			last_payout = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + purchaseColumns

	p, err := scanPurchase(r.q.QueryRow(ctx, query, id, amount, now, interval.Seconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to record payout: %w", err)
	}

	return p, nil
}

// TransitionStatus moves a purchase from one status to another.
// It reports false when the purchase was not in the from status.
func (r *PurchaseRepository) TransitionStatus(ctx context.Context, id int64, from, to model.PurchaseStatus) (bool, error) {
	const query = `
		UPDATE purchases
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update purchase status: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ExpiredPurchase identifies a purchase closed by ExpireFinished.
type ExpiredPurchase struct {
	ID        int64
	AccountID int64
}

// ExpireFinished completes every active purchase whose expiry is at or
// before now and returns what it closed.
func (r *PurchaseRepository) ExpireFinished(ctx context.Context, now time.Time) ([]ExpiredPurchase, error) {
	const query = `
		UPDATE purchases
		SET status = 'completed', updated_at = NOW()
		WHERE status = 'active' AND expiry_date <= $1
		RETURNING id, account_id
	`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire purchases: %w", err)
	}
	defer rows.Close()

	var expired []ExpiredPurchase
	for rows.Next() {
		var e ExpiredPurchase
		if err := rows.Scan(&e.ID, &e.AccountID); err != nil {
			return nil, fmt.Errorf("failed to scan expired purchase: %w", err)
		}
		expired = append(expired, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired purchases: %w", err)
	}

	return expired, nil
}

// CountActive returns the number of active purchases of an account.
func (r *PurchaseRepository) CountActive(ctx context.Context, accountID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM purchases WHERE account_id = $1 AND status = 'active'`

	var n int
	if err := r.q.QueryRow(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active purchases: %w", err)
	}
	return n, nil
}
