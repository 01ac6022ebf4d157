package handler

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"payout-ledger/internal/model"
	"payout-ledger/internal/repository"
	"payout-ledger/internal/service"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		args     []string
		expected service.AdminAction
	}{
		{"add", "/admin_add", []string{"5", "100"}, service.AddBalance{AccountID: 5, Amount: 100}},
		{"add with reason", "/admin_add", []string{"5", "100", "promo", "bonus"}, service.AddBalance{AccountID: 5, Amount: 100, Reason: "promo bonus"}},
		{"sub", "/admin_sub", []string{"5", "30"}, service.DeductBalance{AccountID: 5, Amount: 30}},
		{"set to zero", "/admin_set", []string{"5", "0"}, service.SetBalance{AccountID: 5, Balance: int64Ptr(0)}},
		{"approve deposit", "/deposit_approve", []string{"9"}, service.ApproveDeposit{DepositID: 9}},
		{"reject deposit", "/deposit_reject", []string{"9", "no", "proof"}, service.RejectDeposit{DepositID: 9, Reason: "no proof"}},
		{"approve withdrawal", "/withdraw_approve", []string{"3"}, service.ApproveWithdrawal{WithdrawalID: 3}},
		{"reject withdrawal", "/withdraw_reject", []string{"3"}, service.RejectWithdrawal{WithdrawalID: 3}},
		{"cancel", "/purchase_cancel", []string{"4"}, service.CancelPurchase{PurchaseID: 4}},
		{"cancel with refund", "/purchase_cancel", []string{"4", "refund"}, service.CancelPurchase{PurchaseID: 4, Refund: true}},
		{"run", "/payout_run", nil, service.RunPayouts{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := ParseCommand(tt.cmd, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, action)
		})
	}
}

func TestParseCommand_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{"unknown command", "/admin_gift_all", []string{"100"}},
		{"missing amount", "/admin_add", []string{"5"}},
		{"non numeric id", "/admin_add", []string{"bob", "100"}},
		{"zero id", "/admin_sub", []string{"0", "100"}},
		{"negative amount", "/admin_add", []string{"5", "-100"}},
		{"fractional amount", "/admin_set", []string{"5", "1.5"}},
		{"missing deposit id", "/deposit_approve", nil},
		{"bad cancel flag", "/purchase_cancel", []string{"4", "now"}},
		{"run with args", "/payout_run", []string{"now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := ParseCommand(tt.cmd, tt.args)
			assert.Error(t, err)
			assert.Nil(t, action)
		})
	}
}

func TestParseAdminArgsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.Int64Range(1, 1<<40).Draw(t, "id")
		amount := rapid.Int64Range(0, 1<<40).Draw(t, "amount")

		gotID, gotAmount, reason, err := parseAdminArgs([]string{strconv.FormatInt(id, 10), strconv.FormatInt(amount, 10)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotID != id || gotAmount != amount || reason != "" {
			t.Fatalf("parseAdminArgs(%d, %d) = %d, %d, %q", id, amount, gotID, gotAmount, reason)
		}
	})
}

func TestCommands_UniqueAndParseable(t *testing.T) {
	seen := make(map[string]bool)
	for _, cmd := range Commands {
		assert.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
		assert.Contains(t, cmd.Usage, cmd.Name)
		assert.NotNil(t, cmd.parse)
	}
}

func TestFailureText(t *testing.T) {
	assert.Equal(t, "❌ Not found", FailureText(repository.ErrWithdrawalNotFound))
	assert.Contains(t, FailureText(fmt.Errorf("deduct: %w", service.ErrInsufficientBalance)), service.ErrInsufficientBalance.Error())
	assert.Equal(t, "❌ Operation failed, please try again later", FailureText(errors.New("dial tcp: refused")))
}

func TestResultText(t *testing.T) {
	assert.Contains(t, ResultText(&service.AdjustResult{AccountID: 5, Delta: -30, NewBalance: 70}), "-30 KZ")
	assert.Contains(t, ResultText(&model.Deposit{ID: 2, Status: model.RequestCompleted}), "Deposit #2 completed")
	assert.Contains(t, ResultText(&service.PayoutReport{RunID: "r1", Credited: 3, TotalAmount: 150}), "Credited: 3 (150 KZ)")
	assert.Equal(t, "✅ Done", ResultText(nil))
}

func int64Ptr(v int64) *int64 { return &v }
