package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/model"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/repository"
)

// maxReferralDepth is how many inviters above a new account are recorded.
const maxReferralDepth = 3

// Referral codes are referralCodeLength hex characters. A collision is
// retried with a fresh code up to referralCodeAttempts times.
const (
	referralCodeLength   = 12
	referralCodeAttempts = 3
)

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Username   string `json:"username" validate:"required,min=3,max=32,alphanum"`
	InviteCode string `json:"invite_code" validate:"omitempty,alphanum,max=32"`
}

// DepositInput is a validated deposit request.
type DepositInput struct {
	AccountID int64  `json:"-" validate:"required,gt=0"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"max=255"`
}

// WithdrawalInput is a validated withdrawal request.
type WithdrawalInput struct {
	AccountID   int64  `json:"-" validate:"required,gt=0"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Destination string `json:"destination" validate:"required,max=255"`
}

// AccountSummary is the account read model.
type AccountSummary struct {
	*model.Account
	ActivePurchases int           `json:"active_purchases"`
	Team            map[int]int64 `json:"team"`
}

// Reconciliation compares a balance with its ledger history.
type Reconciliation struct {
	AccountID        int64  `json:"account_id"`
	Balance          int64  `json:"balance"`
	TransactionCount int64  `json:"transaction_count"`
	TransactionSum   int64  `json:"transaction_sum"`
	LastBalanceAfter *int64 `json:"last_balance_after"`
	Consistent       bool   `json:"consistent"`
}

// AccountService handles registration, requests and account read models.
type AccountService struct {
	pool         *db.Pool
	ledger       *ledger.Ledger
	accounts     *repository.AccountRepository
	transactions *repository.TransactionRepository
	purchases    *repository.PurchaseRepository
	referrals    *repository.ReferralRepository
	requests     *repository.RequestRepository
	logs         *repository.SystemLogRepository
	payouts      *PayoutService
	newCode      func() string
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(pool *db.Pool, l *ledger.Ledger, payouts *PayoutService) *AccountService {
	return &AccountService{
		pool:         pool,
		ledger:       l,
		accounts:     repository.NewAccountRepository(pool),
		transactions: repository.NewTransactionRepository(pool),
		purchases:    repository.NewPurchaseRepository(pool),
		referrals:    repository.NewReferralRepository(pool),
		requests:     repository.NewRequestRepository(pool),
		logs:         repository.NewSystemLogRepository(pool),
		payouts:      payouts,
		newCode:      newReferralCode,
	}
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
}

// Register creates an account with a zero balance. With an invite code the
// inviter chain is walked once and frozen into referral_levels.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		account *model.Account
		err     error
	)
	for attempt := 1; attempt <= referralCodeAttempts; attempt++ {
		account, err = s.register(ctx, in, s.newCode())
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			break
		}
		log.Warn().Int("attempt", attempt).Str("username", in.Username).Msg("Referral code collision, retrying")
	}
	if err != nil {
		return nil, err
	}

	log.Info().Int64("account_id", account.ID).Str("username", account.Username).Msg("Account registered")
	return account, nil
}

// register runs one registration unit with the given referral code.
func (s *AccountService) register(ctx context.Context, in RegisterInput, code string) (*model.Account, error) {
	var account *model.Account
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)

		var inviter *model.Account
		if in.InviteCode != "" {
			var err error
			inviter, err = accounts.GetByReferralCode(ctx, strings.ToUpper(in.InviteCode))
			if err != nil {
				if errors.Is(err, repository.ErrAccountNotFound) {
					return ErrInvalidInviteCode
				}
				return err
			}
		}

		var invitedBy *int64
		if inviter != nil {
			invitedBy = &inviter.ID
		}

		var err error
		account, err = accounts.Create(ctx, in.Username, code, invitedBy)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrUsernameTaken
			}
			return err
		}

		referrals := s.referrals.WithTx(tx)
		cur := inviter
		for level := 1; level <= maxReferralDepth && cur != nil; level++ {
			if err := referrals.CreateLevel(ctx, cur.ID, account.ID, level); err != nil {
				return err
			}
			if cur.InvitedBy == nil {
				break
			}
			cur, err = accounts.GetByID(ctx, *cur.InvitedBy)
			if err != nil {
				return err
			}
		}

		desc := fmt.Sprintf("Account %s registered with code %s", account.Username, account.ReferralCode)
		if inviter != nil {
			desc += fmt.Sprintf(", invited by %d", inviter.ID)
		}
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionUserRegistered, desc, &account.ID)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount retrieves an account by ID.
func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// GetSummary returns the account with purchase and team counts.
func (s *AccountService) GetSummary(ctx context.Context, accountID int64) (*AccountSummary, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	active, err := s.purchases.CountActive(ctx, accountID)
	if err != nil {
		return nil, err
	}
	team, err := s.referrals.TeamCounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &AccountSummary{Account: account, ActivePurchases: active, Team: team}, nil
}

// GetTransactions returns a page of ledger entries, newest first.
func (s *AccountService) GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*model.Transaction, error) {
	return s.transactions.GetByAccountID(ctx, accountID, limit, offset)
}

// GetPurchases returns an account's purchases.
func (s *AccountService) GetPurchases(ctx context.Context, accountID int64) ([]*model.Purchase, error) {
	return s.purchases.GetByAccountID(ctx, accountID)
}

// GetReferralBonuses returns commissions received.
func (s *AccountService) GetReferralBonuses(ctx context.Context, accountID int64, limit int) ([]*model.ReferralBonus, error) {
	return s.referrals.GetBonusesByReferrer(ctx, accountID, limit)
}

// GetReferralTeam returns how many accounts sit at each level below accountID.
func (s *AccountService) GetReferralTeam(ctx context.Context, accountID int64) (map[int]int64, error) {
	return s.referrals.TeamCounts(ctx, accountID)
}

// CollectPayout collects the due payout of one owned purchase.
func (s *AccountService) CollectPayout(ctx context.Context, accountID, purchaseID int64) (*PayoutItem, error) {
	return s.payouts.Collect(ctx, accountID, purchaseID)
}

// RequestDeposit records a pending deposit. The balance is untouched until
// an admin approves it.
func (s *AccountService) RequestDeposit(ctx context.Context, in DepositInput) (*model.Deposit, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var deposit *model.Deposit
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		exists, err := s.accounts.WithTx(tx).Exists(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrAccountNotFound
		}
		deposit, err = s.requests.WithTx(tx).CreateDeposit(ctx, in.AccountID, in.Amount, in.Reference)
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("Deposit #%d of %d requested (%s)", deposit.ID, in.Amount, in.Reference)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionDepositRequested, desc, &in.AccountID)
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// RequestWithdrawal debits the amount and records a pending withdrawal in
// one atomic unit.
func (s *AccountService) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (*model.Withdrawal, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var withdrawal *model.Withdrawal
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := s.ledger.RequireFunds(ctx, tx, in.AccountID, in.Amount); err != nil {
			return err
		}
		var err error
		withdrawal, err = s.requests.WithTx(tx).CreateWithdrawal(ctx, in.AccountID, in.Amount, in.Destination)
		if err != nil {
			return err
		}
		_, err = s.ledger.Apply(ctx, tx, ledger.Adjustment{
			AccountID:   in.AccountID,
			Delta:       -in.Amount,
			Type:        model.TxTypeWithdrawal,
			Description: fmt.Sprintf("Withdrawal #%d to %s", withdrawal.ID, in.Destination),
		})
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("Withdrawal #%d of %d requested", withdrawal.ID, in.Amount)
		return repository.NewSystemLogRepository(tx).Create(ctx, model.ActionWithdrawRequested, desc, &in.AccountID)
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// Reconcile checks that the balance equals the sum of ledger amounts and
// the balance_after of the latest entry.
func (s *AccountService) Reconcile(ctx context.Context, accountID int64) (*Reconciliation, error) {
	var rec *Reconciliation
	err := s.pool.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// Locking the row keeps a concurrent mutation out of the snapshot.
		account, err := s.accounts.WithTx(tx).GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		totals, err := s.transactions.WithTx(tx).Totals(ctx, accountID)
		if err != nil {
			return err
		}

		consistent := totals.Sum == account.Balance
		if totals.LastBalanceAfter != nil {
			consistent = consistent && *totals.LastBalanceAfter == account.Balance
		} else {
			consistent = consistent && account.Balance == 0
		}

		rec = &Reconciliation{
			AccountID:        accountID,
			Balance:          account.Balance,
			TransactionCount: totals.Count,
			TransactionSum:   totals.Sum,
			LastBalanceAfter: totals.LastBalanceAfter,
			Consistent:       consistent,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rec.Consistent {
		log.Warn().
			Int64("account_id", accountID).
			Int64("balance", rec.Balance).
			Int64("transaction_sum", rec.TransactionSum).
			Msg("Account ledger mismatch")
	}
	return rec, nil
}
