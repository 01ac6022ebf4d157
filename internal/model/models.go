// Package model defines the data models of the payout ledger.
package model

import "time"

// Account is a balance-holding identity.
// Balance only changes through the ledger package.
type Account struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Balance      int64     `db:"balance" json:"balance"`
	ReferralCode string    `db:"referral_code" json:"referral_code"`
	InvitedBy    *int64    `db:"invited_by" json:"invited_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PurchaseStatus is the lifecycle state of a purchase.
type PurchaseStatus string

// Purchase states. Completed and cancelled are terminal.
const (
	PurchaseActive    PurchaseStatus = "active"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

// Purchase is one yield position.
type Purchase struct {
	ID           int64          `db:"id" json:"id"`
	AccountID    int64          `db:"account_id" json:"account_id"`
	ProductID    string         `db:"product_id" json:"product_id"`
	ProductName  string         `db:"product_name" json:"product_name"`
	Amount       int64          `db:"amount" json:"amount"`
	DailyReturn  int64          `db:"daily_return" json:"daily_return"`
	CycleDays    int            `db:"cycle_days" json:"cycle_days"`
	PurchaseDate time.Time      `db:"purchase_date" json:"purchase_date"`
	NextPayout   time.Time      `db:"next_payout" json:"next_payout"`
	ExpiryDate   time.Time      `db:"expiry_date" json:"expiry_date"`
	Status       PurchaseStatus `db:"status" json:"status"`
	TotalEarned  int64          `db:"total_earned" json:"total_earned"`
	PayoutCount  int            `db:"payout_count" json:"payout_count"`
	LastPayout   *time.Time     `db:"last_payout" json:"last_payout,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Transaction is an append-only ledger entry.
// BalanceAfter is the account balance right after Amount was applied.
type Transaction struct {
	ID           int64     `db:"id" json:"id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	Type         string    `db:"type" json:"type"`
	Amount       int64     `db:"amount" json:"amount"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	Description  string    `db:"description" json:"description"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ReferralLevel is a closure-table edge written once at registration.
// UserID is the referred account; ReferrerID sits Level steps above it.
type ReferralLevel struct {
	ID         int64     `db:"id" json:"id"`
	ReferrerID int64     `db:"referrer_id" json:"referrer_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Level      int       `db:"level" json:"level"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ReferralBonus records one commission payment.
// ReferredID is nil once the purchaser account has been deleted.
type ReferralBonus struct {
	ID             int64     `db:"id" json:"id"`
	ReferrerID     int64     `db:"referrer_id" json:"referrer_id"`
	ReferredID     *int64    `db:"referred_id" json:"referred_id,omitempty"`
	PurchaseID     *int64    `db:"purchase_id" json:"purchase_id,omitempty"`
	Level          int       `db:"level" json:"level"`
	PurchaseAmount int64     `db:"purchase_amount" json:"purchase_amount"`
	BonusAmount    int64     `db:"bonus_amount" json:"bonus_amount"`
	Percentage     string    `db:"percentage" json:"percentage"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// SystemLog is a free-text operational audit entry.
type SystemLog struct {
	ID          int64     `db:"id" json:"id"`
	Action      string    `db:"action" json:"action"`
	Description string    `db:"description" json:"description"`
	AccountID   *int64    `db:"account_id" json:"account_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RequestStatus is the state of a deposit or withdrawal request.
type RequestStatus string

// Request states. Only pending requests may be processed.
const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestRejected  RequestStatus = "rejected"
)

// Deposit is an account's request to be credited after admin review.
type Deposit struct {
	ID          int64         `db:"id" json:"id"`
	AccountID   int64         `db:"account_id" json:"account_id"`
	Amount      int64         `db:"amount" json:"amount"`
	Reference   string        `db:"reference" json:"reference"`
	Status      RequestStatus `db:"status" json:"status"`
	Note        string        `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

// Withdrawal is an account's payout request. Funds are debited on request.
type Withdrawal struct {
	ID          int64         `db:"id" json:"id"`
	AccountID   int64         `db:"account_id" json:"account_id"`
	Amount      int64         `db:"amount" json:"amount"`
	Destination string        `db:"destination" json:"destination"`
	Status      RequestStatus `db:"status" json:"status"`
	Note        string        `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypePurchase         = "purchase"          // Principal debited for a purchase
	TxTypeDailyPayoutAuto  = "daily_payout_auto" // Scheduled payout credit
	TxTypeDailyPayout      = "daily_payout"      // User-collected payout credit
	TxTypeReferralBonus    = "referral_bonus"    // Commission credited to an up-line member
	TxTypeDeposit          = "deposit"           // Approved deposit
	TxTypeWithdrawal       = "withdrawal"        // Withdrawal request debit
	TxTypeAdminAddition    = "admin_addition"    // Admin added balance
	TxTypeAdminDeduction   = "admin_deduction"   // Admin subtracted balance
	TxTypeAdminSet         = "admin_set"         // Admin set balance (recorded as a delta)
	TxTypePurchaseRefund   = "purchase_refund"   // Principal returned on cancellation
	TxTypeWithdrawalRefund = "withdrawal_refund" // Rejected withdrawal returned
)

// SystemLog actions.
const (
	ActionBalanceAdjusted   = "balance_adjusted"
	ActionUserRegistered    = "user_registered"
	ActionPurchaseCreated   = "purchase_created"
	ActionPurchaseFailed    = "purchase_failed"
	ActionPurchaseCompleted = "purchase_completed"
	ActionPurchaseCancelled = "purchase_cancelled"
	ActionPayoutFailed      = "payout_failed"
	ActionPayoutBatch       = "payout_batch"
	ActionPayoutBatchFailed = "payout_batch_failed"
	ActionPayoutsExpired    = "payouts_expired"
	ActionReferralBonus     = "referral_bonus"
	ActionReferralFailed    = "referral_bonus_failed"
	ActionDepositRequested  = "deposit_requested"
	ActionDepositApproved   = "deposit_approved"
	ActionDepositRejected   = "deposit_rejected"
	ActionWithdrawRequested = "withdrawal_requested"
	ActionWithdrawApproved  = "withdrawal_approved"
	ActionWithdrawRejected  = "withdrawal_rejected"
	ActionAdminBulk         = "admin_bulk"
	ActionAdminFailed       = "admin_operation_failed"
	ActionAccountDeleted    = "account_deleted"
)
