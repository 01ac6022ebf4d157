package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/metrics"
	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/repository"
)

// ReferralRates is the commission table; index 0 is level 1.
type ReferralRates []decimal.Decimal

// ParseReferralRates parses decimal strings such as "0.25".
func ParseReferralRates(raw []string) (ReferralRates, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no referral rates configured", ErrValidation)
	}
	rates := make(ReferralRates, 0, len(raw))
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d rate %q: %w", ErrValidation, i+1, s, err)
		}
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("%w: level %d rate %s outside [0, 1]", ErrValidation, i+1, s)
		}
		rates = append(rates, d)
	}
	return rates, nil
}

// Levels returns how many up-line levels earn a commission.
func (r ReferralRates) Levels() int {
	return len(r)
}

// BonusShare is one computed commission.
type BonusShare struct {
	ReferrerID int64
	Level      int
	Rate       decimal.Decimal
	Amount     int64
}

// ComputeBonuses floors amount*rate per level independently. Up-line rows
// beyond the rate table are ignored.
func ComputeBonuses(amount int64, upline []*model.ReferralLevel, rates ReferralRates) []BonusShare {
	shares := make([]BonusShare, 0, len(upline))
	for _, l := range upline {
		if l.Level < 1 || l.Level > len(rates) {
			continue
		}
		rate := rates[l.Level-1]
		shares = append(shares, BonusShare{
			ReferrerID: l.ReferrerID,
			Level:      l.Level,
			Rate:       rate,
			Amount:     decimal.NewFromInt(amount).Mul(rate).Floor().IntPart(),
		})
	}
	return shares
}

// BonusDetail describes one credited commission.
type BonusDetail struct {
	ReferrerID int64  `json:"referrer_id"`
	Level      int    `json:"level"`
	Percentage string `json:"percentage"`
	Amount     int64  `json:"amount"`
}

// BonusResult is the outcome of one distribution.
type BonusResult struct {
	Level1  int64         `json:"level1"`
	Level2  int64         `json:"level2"`
	Level3  int64         `json:"level3"`
	Total   int64         `json:"total"`
	Details []BonusDetail `json:"details"`
	Errors  []ItemError   `json:"errors,omitempty"`
}

func (r *BonusResult) add(d BonusDetail) {
	switch d.Level {
	case 1:
		r.Level1 += d.Amount
	case 2:
		r.Level2 += d.Amount
	case 3:
		r.Level3 += d.Amount
	}
	r.Total += d.Amount
	r.Details = append(r.Details, d)
}

// ReferralService distributes commissions over the materialized up-line.
type ReferralService struct {
	pool      *db.Pool
	ledger    *ledger.Ledger
	referrals *repository.ReferralRepository
	logs      *repository.SystemLogRepository
	rates     ReferralRates
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(
	pool *db.Pool,
	l *ledger.Ledger,
	rates ReferralRates,
	publisher events.Publisher,
	m *metrics.Metrics,
) *ReferralService {
	return &ReferralService{
		pool:      pool,
		ledger:    l,
		referrals: repository.NewReferralRepository(pool),
		logs:      repository.NewSystemLogRepository(pool),
		rates:     rates,
		publisher: publisher,
		metrics:   m,
	}
}

// Distribute credits each up-line level of purchaserID. Every level is its
// own atomic unit; a failed level is recorded in the result and the rest
// still run. An error is returned only when the up-line cannot be read.
func (s *ReferralService) Distribute(ctx context.Context, purchaserID int64, purchaseID *int64, amount int64) (*BonusResult, error) {
	upline, err := s.referrals.GetUpline(ctx, purchaserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load upline: %w", err)
	}

	result := &BonusResult{Details: []BonusDetail{}}
	for _, share := range ComputeBonuses(amount, upline, s.rates) {
		if share.Amount <= 0 {
			continue
		}

		level := strconv.Itoa(share.Level)
		if err := s.credit(ctx, purchaserID, purchaseID, amount, share); err != nil {
			log.Error().Err(err).
				Int64("referrer_id", share.ReferrerID).
				Int64("purchaser_id", purchaserID).
				Int("level", share.Level).
				Int64("amount", share.Amount).
				Msg("Referral bonus failed")

			referrerID := share.ReferrerID
			auditFailure(ctx, s.logs, model.ActionReferralFailed, &referrerID,
				fmt.Errorf("level %d bonus %d from account %d: %w", share.Level, share.Amount, purchaserID, err))
			result.Errors = append(result.Errors, ItemError{ID: share.ReferrerID, Error: err.Error()})
			s.metrics.ReferralBonuses.WithLabelValues(level, "failed").Inc()
			continue
		}

		result.add(BonusDetail{
			ReferrerID: share.ReferrerID,
			Level:      share.Level,
			Percentage: share.Rate.String(),
			Amount:     share.Amount,
		})
		s.metrics.ReferralBonuses.WithLabelValues(level, "paid").Inc()
		s.metrics.ReferralAmount.Add(float64(share.Amount))

		if err := s.publisher.Publish(ctx, events.Event{
			Type:      events.TypeReferralBonusPaid,
			AccountID: share.ReferrerID,
			Amount:    share.Amount,
			Data:      map[string]any{"level": share.Level, "purchaser_id": purchaserID},
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to publish referral event")
		}
	}

	return result, nil
}

func (s *ReferralService) credit(ctx context.Context, purchaserID int64, purchaseID *int64, amount int64, share BonusShare) error {
	return s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
			AccountID:   share.ReferrerID,
			Delta:       share.Amount,
			Type:        model.TxTypeReferralBonus,
			Description: fmt.Sprintf("Level %d referral bonus (%s%%) from account %d purchase of %d", share.Level, share.Rate.Shift(2).String(), purchaserID, amount),
		})
		if err != nil {
			return err
		}

		_, err = s.referrals.WithTx(tx).CreateBonus(ctx, &model.ReferralBonus{
			ReferrerID:     share.ReferrerID,
			ReferredID:     &purchaserID,
			PurchaseID:     purchaseID,
			Level:          share.Level,
			PurchaseAmount: amount,
			BonusAmount:    share.Amount,
			Percentage:     share.Rate.String(),
		})
		return err
	})
}
