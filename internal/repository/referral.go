package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
)

// ReferralRepository handles the referral closure table and bonus records.
type ReferralRepository struct {
	q db.Querier
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(q db.Querier) *ReferralRepository {
	return &ReferralRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ReferralRepository) WithTx(tx pgx.Tx) *ReferralRepository {
	return &ReferralRepository{q: tx}
}

// CreateLevel records that referrerID sits level steps above userID.
func (r *ReferralRepository) CreateLevel(ctx context.Context, referrerID, userID int64, level int) error {
	const query = `
		INSERT INTO referral_levels (referrer_id, user_id, level, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := r.q.Exec(ctx, query, referrerID, userID, level); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create referral level: %w", err)
	}
	return nil
}

// GetUpline returns the referrers of userID ordered by level.
func (r *ReferralRepository) GetUpline(ctx context.Context, userID int64) ([]*model.ReferralLevel, error) {
	const query = `
		SELECT id, referrer_id, user_id, level, created_at
		FROM referral_levels
		WHERE user_id = $1
		ORDER BY level ASC
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get upline: %w", err)
	}
	defer rows.Close()

	var levels []*model.ReferralLevel
	for rows.Next() {
		var l model.ReferralLevel
		if err := rows.Scan(&l.ID, &l.ReferrerID, &l.UserID, &l.Level, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral level: %w", err)
		}
		levels = append(levels, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upline: %w", err)
	}

	return levels, nil
}

// TeamCounts returns how many accounts sit at each level below referrerID.
func (r *ReferralRepository) TeamCounts(ctx context.Context, referrerID int64) (map[int]int64, error) {
	const query = `
		SELECT level, COUNT(*)
		FROM referral_levels
		WHERE referrer_id = $1
		GROUP BY level
	`

	rows, err := r.q.Query(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var level int
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan team count: %w", err)
		}
		counts[level] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team counts: %w", err)
	}

	return counts, nil
}

// CreateBonus records a paid commission.
func (r *ReferralRepository) CreateBonus(ctx context.Context, b *model.ReferralBonus) (*model.ReferralBonus, error) {
	const query = `
		INSERT INTO referral_bonuses (referrer_id, referred_id, purchase_id, level, purchase_amount,
			bonus_amount, percentage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, NOW())
		RETURNING id, referrer_id, referred_id, purchase_id, level, purchase_amount,
			bonus_amount, percentage::text, created_at
	`

	var out model.ReferralBonus
	err := r.q.QueryRow(ctx, query,
		b.ReferrerID, b.ReferredID, b.PurchaseID, b.Level, b.PurchaseAmount, b.BonusAmount, b.Percentage,
	).Scan(
		&out.ID,
		&out.ReferrerID,
		&out.ReferredID,
		&out.PurchaseID,
		&out.Level,
		&out.PurchaseAmount,
		&out.BonusAmount,
		&out.Percentage,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create referral bonus: %w", err)
	}

	return &out, nil
}

// GetBonusesByReferrer retrieves commissions paid to referrerID, newest first.
func (r *ReferralRepository) GetBonusesByReferrer(ctx context.Context, referrerID int64, limit int) ([]*model.ReferralBonus, error) {
	const query = `
		SELECT id, referrer_id, referred_id, purchase_id, level, purchase_amount,
			bonus_amount, percentage::text, created_at
		FROM referral_bonuses
		WHERE referrer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral bonuses: %w", err)
	}
	defer rows.Close()

	var bonuses []*model.ReferralBonus
	for rows.Next() {
		var b model.ReferralBonus
		err := rows.Scan(
			&b.ID,
			&b.ReferrerID,
			&b.ReferredID,
			&b.PurchaseID,
			&b.Level,
			&b.PurchaseAmount,
			&b.BonusAmount,
			&b.Percentage,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral bonus: %w", err)
		}
		bonuses = append(bonuses, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral bonuses: %w", err)
	}

	return bonuses, nil
}
