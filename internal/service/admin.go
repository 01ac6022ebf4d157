package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/metrics"
	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/repository"
)

// AdjustResult is the outcome of a single balance adjustment.
type AdjustResult struct {
	AccountID     int64 `json:"account_id"`
	Delta         int64 `json:"delta"`
	NewBalance    int64 `json:"new_balance"`
	TransactionID int64 `json:"transaction_id,omitempty"`
}

// BulkItem is one entry of a bulk adjustment.
type BulkItem struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Kind      string `json:"kind" validate:"required,oneof=add deduct"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

// BulkResult aggregates a bulk adjustment.
type BulkResult struct {
	Processed     int            `json:"processed"`
	TotalAdded    int64          `json:"total_added"`
	TotalDeducted int64          `json:"total_deducted"`
	Results       []AdjustResult `json:"results"`
	Errors        []ItemError    `json:"errors"`
}

// AdminService implements administrative ledger operations.
type AdminService struct {
	pool      *db.Pool
	ledger    *ledger.Ledger
	accounts  *repository.AccountRepository
	purchases *repository.PurchaseRepository
	requests  *repository.RequestRepository
	logs      *repository.SystemLogRepository
	payouts   *PayoutService
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(pool *db.Pool, l *ledger.Ledger, payouts *PayoutService, m *metrics.Metrics) *AdminService {
	return &AdminService{
		pool:      pool,
		ledger:    l,
		accounts:  repository.NewAccountRepository(pool),
		purchases: repository.NewPurchaseRepository(pool),
		requests:  repository.NewRequestRepository(pool),
		logs:      repository.NewSystemLogRepository(pool),
		payouts:   payouts,
		metrics:   m,
		now:       time.Now,
	}
}

// Execute validates action and dispatches it to its operation.
func (s *AdminService) Execute(ctx context.Context, action AdminAction) (any, error) {
	if err := validateInput(action); err != nil {
		return nil, err
	}

	switch a := action.(type) {
	case AddBalance:
		return s.AddBalance(ctx, a)
	case DeductBalance:
		return s.DeductBalance(ctx, a)
	case SetBalance:
		return s.SetBalance(ctx, a)
	case ApproveDeposit:
		return s.ApproveDeposit(ctx, a)
	case RejectDeposit:
		return s.RejectDeposit(ctx, a)
	case ApproveWithdrawal:
		return s.ApproveWithdrawal(ctx, a)
	case RejectWithdrawal:
		return s.RejectWithdrawal(ctx, a)
	case CancelPurchase:
		return s.CancelPurchase(ctx, a)
	case RunPayouts:
		return s.RunPayouts(ctx)
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", ErrValidation, action)
	}
}

// finish records the outcome of an admin operation.
func (s *AdminService) finish(ctx context.Context, op string, accountID *int64, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case IsBusinessError(err):
		outcome = "rejected"
		log.Warn().Err(err).Str("operation", op).Msg("Admin operation rejected")
	default:
		outcome = "failed"
		log.Error().Err(err).Str("operation", op).Msg("Admin operation failed")
		auditFailure(ctx, s.logs, model.ActionAdminFailed, accountID, fmt.Errorf("%s: %w", op, err))
	}
	s.metrics.AdminOperations.WithLabelValues(op, outcome).Inc()
	return err
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

// AddBalance credits an account.
func (s *AdminService) AddBalance(ctx context.Context, in AddBalance) (*AdjustResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	res, err := s.ledger.AdjustBalance(ctx, ledger.Adjustment{
		AccountID:   in.AccountID,
		Delta:       in.Amount,
		Type:        model.TxTypeAdminAddition,
		Description: reasonOr(in.Reason, "Admin addition"),
	})
	if err := s.finish(ctx, in.Kind(), &in.AccountID, err); err != nil {
		return nil, err
	}
	result := &AdjustResult{AccountID: in.AccountID, Delta: in.Amount, NewBalance: res.NewBalance, TransactionID: res.Transaction.ID}

	log.Info().Int64("account_id", in.AccountID).Int64("amount", in.Amount).Int64("new_balance", result.NewBalance).Msg("Admin added balance")
	return result, nil
}

// DeductBalance debits an account. The locked balance is checked first.
func (s *AdminService) DeductBalance(ctx context.Context, in DeductBalance) (*AdjustResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	res, err := s.ledger.AdjustBalance(ctx, ledger.Adjustment{
		AccountID:   in.AccountID,
		Delta:       -in.Amount,
		Type:        model.TxTypeAdminDeduction,
		Description: reasonOr(in.Reason, "Admin deduction"),
	})
	if err := s.finish(ctx, in.Kind(), &in.AccountID, err); err != nil {
		return nil, err
	}
	result := &AdjustResult{AccountID: in.AccountID, Delta: -in.Amount, NewBalance: res.NewBalance, TransactionID: res.Transaction.ID}

	log.Info().Int64("account_id", in.AccountID).Int64("amount", in.Amount).Int64("new_balance", result.NewBalance).Msg("Admin deducted balance")
	return result, nil
}

// SetBalance moves the balance to a target. The difference to the locked
// balance is applied as an ordinary delta; an equal target changes nothing.
func (s *AdminService) SetBalance(ctx context.Context, in SetBalance) (*AdjustResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var result *AdjustResult
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		account, err := s.accounts.WithTx(tx).GetByIDForUpdate(ctx, in.AccountID)
		if err != nil {
			return err
		}

		target := *in.Balance
		delta := target - account.Balance
		if delta == 0 {
			result = &AdjustResult{AccountID: in.AccountID, NewBalance: account.Balance}
			return nil
		}

		res, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
			AccountID:   in.AccountID,
			Delta:       delta,
			Type:        model.TxTypeAdminSet,
			Description: reasonOr(in.Reason, fmt.Sprintf("Admin set balance %d -> %d", account.Balance, target)),
		})
		if err != nil {
			return err
		}
		result = &AdjustResult{AccountID: in.AccountID, Delta: delta, NewBalance: res.NewBalance, TransactionID: res.Transaction.ID}
		return nil
	})
	if err := s.finish(ctx, in.Kind(), &in.AccountID, err); err != nil {
		return nil, err
	}

	log.Info().Int64("account_id", in.AccountID).Int64("delta", result.Delta).Int64("new_balance", result.NewBalance).Msg("Admin set balance")
	return result, nil
}

// ApproveDeposit credits a pending deposit and completes it.
func (s *AdminService) ApproveDeposit(ctx context.Context, in ApproveDeposit) (*model.Deposit, error) {
	var deposit *model.Deposit
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		requests := s.requests.WithTx(tx)

		d, err := requests.GetDepositForUpdate(ctx, in.DepositID)
		if err != nil {
			return err
		}
		if d.Status != model.RequestPending {
			return fmt.Errorf("%w: deposit %d is %s", ErrAlreadyProcessed, d.ID, d.Status)
		}

		if _, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
			AccountID:   d.AccountID,
			Delta:       d.Amount,
			Type:        model.TxTypeDeposit,
			Description: fmt.Sprintf("Deposit #%d approved (%s)", d.ID, d.Reference),
		}); err != nil {
			return err
		}

		now := s.now().UTC()
		if _, err := requests.CloseDeposit(ctx, d.ID, model.RequestCompleted, "", now); err != nil {
			return err
		}
		d.Status = model.RequestCompleted
		d.ProcessedAt = &now
		deposit = d

		desc := fmt.Sprintf("Deposit #%d of %d approved", d.ID, d.Amount)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionDepositApproved, desc, &d.AccountID)
	})
	if err := s.finish(ctx, in.Kind(), nil, err); err != nil {
		return nil, err
	}
	return deposit, nil
}

// RejectDeposit closes a pending deposit without touching the balance.
func (s *AdminService) RejectDeposit(ctx context.Context, in RejectDeposit) (*model.Deposit, error) {
	var deposit *model.Deposit
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		requests := s.requests.WithTx(tx)

		d, err := requests.GetDepositForUpdate(ctx, in.DepositID)
		if err != nil {
			return err
		}
		if d.Status != model.RequestPending {
			return fmt.Errorf("%w: deposit %d is %s", ErrAlreadyProcessed, d.ID, d.Status)
		}

		now := s.now().UTC()
		if _, err := requests.CloseDeposit(ctx, d.ID, model.RequestRejected, in.Reason, now); err != nil {
			return err
		}
		d.Status = model.RequestRejected
		d.Note = in.Reason
		d.ProcessedAt = &now
		deposit = d

		desc := fmt.Sprintf("Deposit #%d of %d rejected: %s", d.ID, d.Amount, reasonOr(in.Reason, "no reason"))
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionDepositRejected, desc, &d.AccountID)
	})
	if err := s.finish(ctx, in.Kind(), nil, err); err != nil {
		return nil, err
	}
	return deposit, nil
}

// ApproveWithdrawal completes a pending withdrawal. Funds left the balance
// when it was requested.
func (s *AdminService) ApproveWithdrawal(ctx context.Context, in ApproveWithdrawal) (*model.Withdrawal, error) {
	var withdrawal *model.Withdrawal
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		requests := s.requests.WithTx(tx)

		w, err := requests.GetWithdrawalForUpdate(ctx, in.WithdrawalID)
		if err != nil {
			return err
		}
		if w.Status != model.RequestPending {
			return fmt.Errorf("%w: withdrawal %d is %s", ErrAlreadyProcessed, w.ID, w.Status)
		}

		now := s.now().UTC()
		if _, err := requests.CloseWithdrawal(ctx, w.ID, model.RequestCompleted, "", now); err != nil {
			return err
		}
		w.Status = model.RequestCompleted
		w.ProcessedAt = &now
		withdrawal = w

		desc := fmt.Sprintf("Withdrawal #%d of %d approved", w.ID, w.Amount)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionWithdrawApproved, desc, &w.AccountID)
	})
	if err := s.finish(ctx, in.Kind(), nil, err); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// RejectWithdrawal closes a pending withdrawal and credits the amount back.
func (s *AdminService) RejectWithdrawal(ctx context.Context, in RejectWithdrawal) (*model.Withdrawal, error) {
	var withdrawal *model.Withdrawal
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		requests := s.requests.WithTx(tx)

		w, err := requests.GetWithdrawalForUpdate(ctx, in.WithdrawalID)
		if err != nil {
			return err
		}
		if w.Status != model.RequestPending {
			return fmt.Errorf("%w: withdrawal %d is %s", ErrAlreadyProcessed, w.ID, w.Status)
		}

		now := s.now().UTC()
		if _, err := requests.CloseWithdrawal(ctx, w.ID, model.RequestRejected, in.Reason, now); err != nil {
			return err
		}
		if _, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
			AccountID:   w.AccountID,
			Delta:       w.Amount,
			Type:        model.TxTypeWithdrawalRefund,
			Description: fmt.Sprintf("Withdrawal #%d rejected: %s", w.ID, reasonOr(in.Reason, "no reason")),
		}); err != nil {
			return err
		}
		w.Status = model.RequestRejected
		w.Note = in.Reason
		w.ProcessedAt = &now
		withdrawal = w

		desc := fmt.Sprintf("Withdrawal #%d of %d rejected and refunded", w.ID, w.Amount)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionWithdrawRejected, desc, &w.AccountID)
	})
	if err := s.finish(ctx, in.Kind(), nil, err); err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// CancelPurchase moves an active purchase to cancelled and optionally
// refunds its principal.
func (s *AdminService) CancelPurchase(ctx context.Context, in CancelPurchase) (*model.Purchase, error) {
	var purchase *model.Purchase
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		purchases := s.purchases.WithTx(tx)

		p, err := purchases.GetByIDForUpdate(ctx, in.PurchaseID)
		if err != nil {
			return err
		}
		if p.Status != model.PurchaseActive {
			return fmt.Errorf("%w: purchase %d is %s", ErrPurchaseNotActive, p.ID, p.Status)
		}

		if _, err := purchases.TransitionStatus(ctx, p.ID, model.PurchaseActive, model.PurchaseCancelled); err != nil {
			return err
		}
		p.Status = model.PurchaseCancelled

		if in.Refund {
			if _, err := s.ledger.Apply(ctx, tx, ledger.Adjustment{
				AccountID:   p.AccountID,
				Delta:       p.Amount,
				Type:        model.TxTypePurchaseRefund,
				Description: fmt.Sprintf("Refund of cancelled purchase #%d (%s)", p.ID, p.ProductName),
			}); err != nil {
				return err
			}
		}
		purchase = p

		desc := fmt.Sprintf("Purchase #%d cancelled, refund=%t", p.ID, in.Refund)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionPurchaseCancelled, desc, &p.AccountID)
	})
	if err := s.finish(ctx, in.Kind(), nil, err); err != nil {
		return nil, err
	}
	return purchase, nil
}

// RunPayouts runs the payout engine at the current time.
func (s *AdminService) RunPayouts(ctx context.Context) (*PayoutReport, error) {
	report, err := s.payouts.Run(ctx, s.now().UTC())
	if err := s.finish(ctx, RunPayouts{}.Kind(), nil, err); err != nil {
		return nil, err
	}
	return report, nil
}

// BulkAdjust applies each item as its own atomic unit. Failed items are
// reported and never stop the rest.
func (s *AdminService) BulkAdjust(ctx context.Context, items []BulkItem) *BulkResult {
	result := &BulkResult{Results: []AdjustResult{}, Errors: []ItemError{}}

	for _, item := range items {
		res, err := s.bulkItem(ctx, item)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ID: item.AccountID, Error: err.Error()})
			continue
		}
		result.Processed++
		if res.Delta > 0 {
			result.TotalAdded += res.Delta
		} else {
			result.TotalDeducted += -res.Delta
		}
		result.Results = append(result.Results, *res)
	}

	desc := fmt.Sprintf("Bulk adjustment: %d/%d processed, added %d, deducted %d, errors %d",
		result.Processed, len(items), result.TotalAdded, result.TotalDeducted, len(result.Errors))
	if err := s.logs.Create(ctx, model.ActionAdminBulk, desc, nil); err != nil {
		log.Error().Err(err).Msg("Failed to write bulk adjustment log")
	}

	return result
}

func (s *AdminService) bulkItem(ctx context.Context, item BulkItem) (*AdjustResult, error) {
	if err := validateInput(item); err != nil {
		return nil, err
	}
	if item.Kind == "deduct" {
		return s.DeductBalance(ctx, DeductBalance{AccountID: item.AccountID, Amount: item.Amount, Reason: item.Reason})
	}
	return s.AddBalance(ctx, AddBalance{AccountID: item.AccountID, Amount: item.Amount, Reason: item.Reason})
}

// DeleteAccount removes an account and everything it owns. Accounts it
// invited keep existing with invited_by cleared.
func (s *AdminService) DeleteAccount(ctx context.Context, accountID int64) error {
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		account, err := s.accounts.WithTx(tx).GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := s.accounts.WithTx(tx).Delete(ctx, accountID); err != nil {
			return err
		}
		desc := fmt.Sprintf("Account %s deleted with balance %d", account.Username, account.Balance)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionAccountDeleted, desc, &accountID)
	})
	if err := s.finish(ctx, "delete_account", &accountID, err); err != nil {
		return err
	}

	log.Info().Int64("account_id", accountID).Msg("Account deleted")
	return nil
}

// PendingRequests are the deposits and withdrawals awaiting review.
type PendingRequests struct {
	Deposits    []*model.Deposit    `json:"deposits"`
	Withdrawals []*model.Withdrawal `json:"withdrawals"`
}

// ListPending returns up to limit pending deposits and withdrawals each,
// oldest first.
func (s *AdminService) ListPending(ctx context.Context, limit int) (*PendingRequests, error) {
	deposits, err := s.requests.GetDepositsByStatus(ctx, model.RequestPending, limit)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.requests.GetWithdrawalsByStatus(ctx, model.RequestPending, limit)
	if err != nil {
		return nil, err
	}
	if deposits == nil {
		deposits = []*model.Deposit{}
	}
	if withdrawals == nil {
		withdrawals = []*model.Withdrawal{}
	}
	return &PendingRequests{Deposits: deposits, Withdrawals: withdrawals}, nil
}

// ListSystemLogs returns the newest audit entries for action.
func (s *AdminService) ListSystemLogs(ctx context.Context, action string, limit int) ([]*model.SystemLog, error) {
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	}
	logs, err := s.logs.GetByAction(ctx, action, limit)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*model.SystemLog{}
	}
	return logs, nil
}

// IsNotFound reports whether err means the target record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrAccountNotFound) ||
		errors.Is(err, repository.ErrPurchaseNotFound) ||
		errors.Is(err, repository.ErrDepositNotFound) ||
		errors.Is(err, repository.ErrWithdrawalNotFound)
}
