package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/metrics"
	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/repository"
)

// PayoutDecision is what one eligibility check decides for a purchase.
type PayoutDecision int

// Payout decisions.
const (
	PayoutSkip PayoutDecision = iota
	PayoutCredit
	PayoutComplete
)

func (d PayoutDecision) String() string {
	switch d {
	case PayoutCredit:
		return "credited"
	case PayoutComplete:
		return "completed"
	default:
		return "skipped"
	}
}

// DecidePayout decides whether p earns a credit at now.
// A purchase that is not active, or whose window has not opened, is skipped.
// Once the elapsed whole days reach cycle_days, the payout count reaches
// cycle_days or the expiry passes, it completes without a credit.
func DecidePayout(p *model.Purchase, now time.Time) PayoutDecision {
	if p.Status != model.PurchaseActive || now.Before(p.NextPayout) {
		return PayoutSkip
	}

	daysPassed := int(now.Sub(p.PurchaseDate) / PayoutInterval)
	remaining := p.CycleDays - daysPassed
	if remaining <= 0 || p.PayoutCount >= p.CycleDays || !now.Before(p.ExpiryDate) {
		return PayoutComplete
	}
	return PayoutCredit
}

// PayoutItem is the outcome for one purchase.
type PayoutItem struct {
	PurchaseID  int64  `json:"purchase_id"`
	AccountID   int64  `json:"account_id"`
	Outcome     string `json:"outcome"`
	Amount      int64  `json:"amount"`
	NewBalance  int64  `json:"new_balance,omitempty"`
	PayoutCount int    `json:"payout_count"`
}

// PayoutReport summarizes one engine run.
type PayoutReport struct {
	RunID       string       `json:"run_id"`
	Processed   int          `json:"processed"`
	Credited    int          `json:"credited"`
	Completed   int          `json:"completed"`
	Expired     int          `json:"expired"`
	TotalAmount int64        `json:"total_amount"`
	Results     []PayoutItem `json:"results"`
	Errors      []ItemError  `json:"errors"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// PayoutService is the payout engine. Runs may overlap: the row lock and
// the next_payout window make each purchase earn at most once per window.
type PayoutService struct {
	pool       *db.Pool
	ledger     *ledger.Ledger
	purchases  *repository.PurchaseRepository
	logs       *repository.SystemLogRepository
	publisher  events.Publisher
	metrics    *metrics.Metrics
	batchLimit int
	now        func() time.Time
}

// NewPayoutService creates a new PayoutService instance.
func NewPayoutService(
	pool *db.Pool,
	l *ledger.Ledger,
	batchLimit int,
	publisher events.Publisher,
	m *metrics.Metrics,
) *PayoutService {
	return &PayoutService{
		pool:       pool,
		ledger:     l,
		purchases:  repository.NewPurchaseRepository(pool),
		logs:       repository.NewSystemLogRepository(pool),
		publisher:  publisher,
		metrics:    m,
		batchLimit: batchLimit,
		now:        time.Now,
	}
}

// Run credits every purchase due at now, reading the due set in pages of
// batchLimit. Each purchase is its own atomic unit; failures are collected
// and never stop the batch. Only a failure to read the due set fails the
// whole run.
func (s *PayoutService) Run(ctx context.Context, now time.Time) (*PayoutReport, error) {
	report := &PayoutReport{
		RunID:     uuid.NewString(),
		Results:   []PayoutItem{},
		Errors:    []ItemError{},
		StartedAt: time.Now().UTC(),
	}
	logger := log.With().Str("run_id", report.RunID).Logger()

	var cursor repository.DueCursor
	seen := make(map[int64]struct{})
	for {
		due, err := s.purchases.ListDue(ctx, now, cursor, s.batchLimit)
		if err != nil {
			logger.Error().Err(err).Msg("Payout run failed")
			auditFailure(ctx, s.logs, model.ActionPayoutBatchFailed, nil, fmt.Errorf("run %s: %w", report.RunID, err))
			s.metrics.PayoutRuns.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to load due purchases: %w", err)
		}

		for _, p := range due {
			// A catch-up credit can move a purchase ahead of the cursor.
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			s.runOne(ctx, logger, report, p, now)
		}

		if len(due) < s.batchLimit {
			break
		}
		last := due[len(due)-1]
		cursor = repository.DueCursor{NextPayout: last.NextPayout, ID: last.ID}
	}

	expired, err := s.expire(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("Expiry sweep failed")
		report.Errors = append(report.Errors, ItemError{Error: err.Error()})
	}
	report.Expired = expired

	report.FinishedAt = time.Now().UTC()

	desc := fmt.Sprintf("Payout run %s: processed %d, credited %d (%d KZ), completed %d, expired %d, errors %d",
		report.RunID, report.Processed, report.Credited, report.TotalAmount, report.Completed, report.Expired, len(report.Errors))
	if err := s.logs.Create(ctx, model.ActionPayoutBatch, desc, nil); err != nil {
		logger.Error().Err(err).Msg("Failed to write payout summary log")
	}

	s.metrics.PayoutRuns.WithLabelValues("ok").Inc()
	s.metrics.PayoutsCredited.Add(float64(report.Credited))
	s.metrics.PayoutAmount.Add(float64(report.TotalAmount))
	s.metrics.PurchasesExpired.Add(float64(report.Completed + report.Expired))

	if err := s.publisher.Publish(ctx, events.Event{
		Type:   events.TypePayoutBatchCompleted,
		Amount: report.TotalAmount,
		Data: map[string]any{
			"run_id":    report.RunID,
			"processed": report.Processed,
			"errors":    len(report.Errors),
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish payout event")
	}

	logger.Info().
		Int("processed", report.Processed).
		Int("credited", report.Credited).
		Int64("total_amount", report.TotalAmount).
		Int("completed", report.Completed).
		Int("expired", report.Expired).
		Int("errors", len(report.Errors)).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Payout run finished")

	return report, nil
}

// runOne processes one due purchase and folds the outcome into report.
func (s *PayoutService) runOne(ctx context.Context, logger zerolog.Logger, report *PayoutReport, p *model.Purchase, now time.Time) {
	item, err := s.process(ctx, p.ID, 0, now, model.TxTypeDailyPayoutAuto)
	if err != nil {
		if errors.Is(err, ErrAlreadyCollected) || errors.Is(err, ErrPurchaseNotActive) {
			// Another run got here first.
			return
		}
		logger.Error().Err(err).Int64("purchase_id", p.ID).Int64("account_id", p.AccountID).Msg("Payout failed")
		accountID := p.AccountID
		auditFailure(ctx, s.logs, model.ActionPayoutFailed, &accountID,
			fmt.Errorf("run %s purchase %d: %w", report.RunID, p.ID, err))
		report.Errors = append(report.Errors, ItemError{ID: p.ID, Error: err.Error()})
		return
	}

	report.Processed++
	report.Results = append(report.Results, *item)
	if item.Outcome == PayoutCredit.String() {
		report.Credited++
		report.TotalAmount += item.Amount
	} else {
		report.Completed++
	}
}

// Collect is the user-initiated payout of one purchase owned by accountID.
func (s *PayoutService) Collect(ctx context.Context, accountID, purchaseID int64) (*PayoutItem, error) {
	item, err := s.process(ctx, purchaseID, accountID, s.now().UTC(), model.TxTypeDailyPayout)
	if err != nil {
		if !IsBusinessError(err) {
			auditFailure(ctx, s.logs, model.ActionPayoutFailed, &accountID,
				fmt.Errorf("collect purchase %d: %w", purchaseID, err))
		}
		return nil, err
	}
	if item.Outcome == PayoutCredit.String() {
		s.metrics.PayoutsCredited.Inc()
		s.metrics.PayoutAmount.Add(float64(item.Amount))
	}
	return item, nil
}

// process re-reads the purchase under lock and applies the decision.
// ownerID 0 skips the ownership check.
func (s *PayoutService) process(ctx context.Context, purchaseID, ownerID int64, now time.Time, txType string) (*PayoutItem, error) {
	var item *PayoutItem
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		purchases := s.purchases.WithTx(tx)

		p, err := purchases.GetByIDForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if ownerID != 0 && p.AccountID != ownerID {
			return ErrPurchaseNotFound
		}

		decision := DecidePayout(p, now)
		switch decision {
		case PayoutSkip:
			if p.Status != model.PurchaseActive {
				return ErrPurchaseNotActive
			}
			return fmt.Errorf("%w: next payout at %s", ErrAlreadyCollected, p.NextPayout.Format(time.RFC3339))

		case PayoutComplete:
			if _, err := purchases.TransitionStatus(ctx, p.ID, model.PurchaseActive, model.PurchaseCompleted); err != nil {
				return err
			}
			desc := fmt.Sprintf("Purchase #%d of %s completed after %d payouts (%d KZ earned)",
				p.ID, p.ProductName, p.PayoutCount, p.TotalEarned)
			if err := repository.NewSystemLogRepository(tx).Create(ctx, model.ActionPurchaseCompleted, desc, &p.AccountID); err != nil {
				return err
			}
			item = &PayoutItem{
				PurchaseID:  p.ID,
				AccountID:   p.AccountID,
				Outcome:     decision.String(),
				PayoutCount: p.PayoutCount,
			}
			return nil

		default:
			res, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
				AccountID:   p.AccountID,
				Delta:       p.DailyReturn,
				Type:        txType,
				Description: fmt.Sprintf("Daily return of %s (#%d), payout %d/%d", p.ProductName, p.ID, p.PayoutCount+1, p.CycleDays),
			})
			if err != nil {
				return err
			}
			updated, err := purchases.RecordPayout(ctx, p.ID, p.DailyReturn, now, PayoutInterval)
			if err != nil {
				return err
			}
			item = &PayoutItem{
				PurchaseID:  p.ID,
				AccountID:   p.AccountID,
				Outcome:     decision.String(),
				Amount:      p.DailyReturn,
				NewBalance:  res.NewBalance,
				PayoutCount: updated.PayoutCount,
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// expire completes active purchases past their expiry date.
func (s *PayoutService) expire(ctx context.Context, now time.Time) (int, error) {
	var expired []repository.ExpiredPurchase
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		expired, err = s.purchases.WithTx(tx).ExpireFinished(ctx, now)
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		desc := fmt.Sprintf("%d purchases reached their expiry date", len(expired))
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionPayoutsExpired, desc, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire purchases: %w", err)
	}
	return len(expired), nil
}
