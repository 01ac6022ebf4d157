package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/metrics"
	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/repository"
)

// PayoutInterval is the length of one eligibility window.
const PayoutInterval = 24 * time.Hour

// PurchaseInput is a validated purchase request.
type PurchaseInput struct {
	AccountID   int64  `json:"-" validate:"required,gt=0"`
	ProductID   string `json:"product_id" validate:"required,max=64"`
	ProductName string `json:"product_name" validate:"required,max=255"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	DailyReturn int64  `json:"daily_return" validate:"required,gt=0"`
	CycleDays   int    `json:"cycle_days" validate:"required,gt=0,lte=3650"`
}

// PurchaseResult is the outcome of a purchase.
type PurchaseResult struct {
	Purchase           *model.Purchase `json:"purchase"`
	NewBalance         int64           `json:"new_balance"`
	BonusesDistributed int64           `json:"bonuses_distributed"`
	Bonuses            *BonusResult    `json:"bonuses,omitempty"`
}

// PurchaseService opens yield positions.
type PurchaseService struct {
	pool      *db.Pool
	ledger    *ledger.Ledger
	accounts  *repository.AccountRepository
	purchases *repository.PurchaseRepository
	logs      *repository.SystemLogRepository
	referrals *ReferralService
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewPurchaseService creates a new PurchaseService instance.
func NewPurchaseService(
	pool *db.Pool,
	l *ledger.Ledger,
	referrals *ReferralService,
	publisher events.Publisher,
	m *metrics.Metrics,
) *PurchaseService {
	return &PurchaseService{
		pool:      pool,
		ledger:    l,
		accounts:  repository.NewAccountRepository(pool),
		purchases: repository.NewPurchaseRepository(pool),
		logs:      repository.NewSystemLogRepository(pool),
		referrals: referrals,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// Purchase debits the principal and opens an active purchase in one atomic
// unit, then distributes referral bonuses as a separate best-effort step.
// A failed distribution never undoes the purchase.
func (s *PurchaseService) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Balance < in.Amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, account.Balance, in.Amount)
	}

	now := s.now().UTC()
	var (
		purchase   *model.Purchase
		newBalance int64
	)
	err = s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := s.ledger.RequireFunds(ctx, tx, in.AccountID, in.Amount); err != nil {
			return err
		}

		res, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
			AccountID:   in.AccountID,
			Delta:       -in.Amount,
			Type:        model.TxTypePurchase,
			Description: fmt.Sprintf("Purchase of %s (%s)", in.ProductName, in.ProductID),
		})
		if err != nil {
			return err
		}
		newBalance = res.NewBalance

		purchase, err = s.purchases.WithTx(tx).Create(ctx, &model.Purchase{
			AccountID:    in.AccountID,
			ProductID:    in.ProductID,
			ProductName:  in.ProductName,
			Amount:       in.Amount,
			DailyReturn:  in.DailyReturn,
			CycleDays:    in.CycleDays,
			PurchaseDate: now,
			NextPayout:   now.Add(PayoutInterval),
			ExpiryDate:   now.Add(time.Duration(in.CycleDays) * PayoutInterval),
		})
		return err
	})
	if err != nil {
		if !IsBusinessError(err) {
			log.Error().Err(err).Int64("account_id", in.AccountID).Int64("amount", in.Amount).Msg("Purchase unit failed")
			auditFailure(ctx, s.logs, model.ActionPurchaseFailed, &in.AccountID, err)
		}
		return nil, fmt.Errorf("purchase failed: %w", err)
	}

	result := &PurchaseResult{Purchase: purchase, NewBalance: newBalance}

	bonuses, err := s.referrals.Distribute(ctx, in.AccountID, &purchase.ID, in.Amount)
	if err != nil {
		log.Error().Err(err).Int64("purchase_id", purchase.ID).Msg("Referral distribution failed")
		auditFailure(ctx, s.logs, model.ActionReferralFailed, &in.AccountID, err)
	} else {
		result.Bonuses = bonuses
		result.BonusesDistributed = bonuses.Total
	}

	desc := fmt.Sprintf("Purchase #%d of %s for %d (daily %d x %d days), bonuses distributed %d",
		purchase.ID, in.ProductName, in.Amount, in.DailyReturn, in.CycleDays, result.BonusesDistributed)
	if err := s.logs.Create(ctx, model.ActionPurchaseCreated, desc, &in.AccountID); err != nil {
		log.Error().Err(err).Int64("purchase_id", purchase.ID).Msg("Failed to write purchase log")
	}

	s.metrics.PurchasesCreated.Inc()
	s.metrics.PurchaseAmount.Add(float64(in.Amount))

	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypePurchaseCreated,
		AccountID: in.AccountID,
		Amount:    in.Amount,
		Data:      map[string]any{"purchase_id": purchase.ID, "product_id": in.ProductID},
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to publish purchase event")
	}

	log.Info().
		Int64("account_id", in.AccountID).
		Int64("purchase_id", purchase.ID).
		Int64("amount", in.Amount).
		Int64("bonuses", result.BonusesDistributed).
		Msg("Purchase created")

	return result, nil
}
