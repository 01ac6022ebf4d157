package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// AdminAction is the closed set of administrative operations.
// Only types in this package implement it.
type AdminAction interface {
	Kind() string
	adminAction()
}

// AddBalance credits an account.
type AddBalance struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

// DeductBalance debits an account that holds at least Amount.
type DeductBalance struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

// SetBalance moves an account to Balance through a relative delta.
// Balance is a pointer so that an omitted target is told apart from zero.
type SetBalance struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Balance   *int64 `json:"balance" validate:"required,gte=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

// ApproveDeposit credits a pending deposit.
type ApproveDeposit struct {
	DepositID int64 `json:"deposit_id" validate:"required,gt=0"`
}

// RejectDeposit closes a pending deposit without a credit.
type RejectDeposit struct {
	DepositID int64  `json:"deposit_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=255"`
}

// ApproveWithdrawal completes a pending withdrawal.
type ApproveWithdrawal struct {
	WithdrawalID int64 `json:"withdrawal_id" validate:"required,gt=0"`
}

// RejectWithdrawal closes a pending withdrawal and refunds it.
type RejectWithdrawal struct {
	WithdrawalID int64  `json:"withdrawal_id" validate:"required,gt=0"`
	Reason       string `json:"reason" validate:"max=255"`
}

// CancelPurchase cancels an active purchase, optionally refunding the principal.
type CancelPurchase struct {
	PurchaseID int64 `json:"purchase_id" validate:"required,gt=0"`
	Refund     bool  `json:"refund"`
}

// RunPayouts triggers the payout engine now.
type RunPayouts struct{}

func (AddBalance) Kind() string        { return "add_balance" }
func (DeductBalance) Kind() string     { return "deduct_balance" }
func (SetBalance) Kind() string        { return "set_balance" }
func (ApproveDeposit) Kind() string    { return "approve_deposit" }
func (RejectDeposit) Kind() string     { return "reject_deposit" }
func (ApproveWithdrawal) Kind() string { return "approve_withdrawal" }
func (RejectWithdrawal) Kind() string  { return "reject_withdrawal" }
func (CancelPurchase) Kind() string    { return "cancel_purchase" }
func (RunPayouts) Kind() string        { return "run_payouts" }

func (AddBalance) adminAction()        {}
func (DeductBalance) adminAction()     {}
func (SetBalance) adminAction()        {}
func (ApproveDeposit) adminAction()    {}
func (RejectDeposit) adminAction()     {}
func (ApproveWithdrawal) adminAction() {}
func (RejectWithdrawal) adminAction()  {}
func (CancelPurchase) adminAction()    {}
func (RunPayouts) adminAction()        {}

var actionDecoders = map[string]func(json.RawMessage) (AdminAction, error){
	AddBalance{}.Kind():        decodeAction[AddBalance],
	DeductBalance{}.Kind():     decodeAction[DeductBalance],
	SetBalance{}.Kind():        decodeAction[SetBalance],
	ApproveDeposit{}.Kind():    decodeAction[ApproveDeposit],
	RejectDeposit{}.Kind():     decodeAction[RejectDeposit],
	ApproveWithdrawal{}.Kind(): decodeAction[ApproveWithdrawal],
	RejectWithdrawal{}.Kind():  decodeAction[RejectWithdrawal],
	CancelPurchase{}.Kind():    decodeAction[CancelPurchase],
	RunPayouts{}.Kind():        decodeAction[RunPayouts],
}

// DecodeAdminAction builds the typed action for kind from payload.
// Unknown kinds, unknown fields and trailing data are validation errors.
func DecodeAdminAction(kind string, payload json.RawMessage) (AdminAction, error) {
	decode, ok := actionDecoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action kind %q", ErrValidation, kind)
	}
	return decode(payload)
}

func decodeAction[T AdminAction](payload json.RawMessage) (AdminAction, error) {
	var action T
	if len(bytes.TrimSpace(payload)) == 0 {
		return action, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&action); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", ErrValidation, action.Kind(), err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: %s payload has trailing data", ErrValidation, action.Kind())
	}
	return action, nil
}
