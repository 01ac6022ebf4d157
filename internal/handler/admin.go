// Package handler provides the Telegram admin console commands.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"payout-ledger/internal/model"
	"payout-ledger/internal/service"
)

const commandTimeout = 2 * time.Minute

// AdminExecutor runs admin actions.
type AdminExecutor interface {
	Execute(ctx context.Context, action service.AdminAction) (any, error)
}

// Command describes one console command.
type Command struct {
	Name  string
	Usage string
	parse func(args []string) (service.AdminAction, error)
}

// Commands lists the console commands in help order.
var Commands = []Command{
	{"/admin_add", "/admin_add <account_id> <amount> [reason]", parseAdd},
	{"/admin_sub", "/admin_sub <account_id> <amount> [reason]", parseDeduct},
	{"/admin_set", "/admin_set <account_id> <balance> [reason]", parseSet},
	{"/deposit_approve", "/deposit_approve <deposit_id>", parseApproveDeposit},
	{"/deposit_reject", "/deposit_reject <deposit_id> [reason]", parseRejectDeposit},
	{"/withdraw_approve", "/withdraw_approve <withdrawal_id>", parseApproveWithdrawal},
	{"/withdraw_reject", "/withdraw_reject <withdrawal_id> [reason]", parseRejectWithdrawal},
	{"/purchase_cancel", "/purchase_cancel <purchase_id> [refund]", parseCancel},
	{"/payout_run", "/payout_run", parseRun},
}

// AdminHandler handles admin console commands.
type AdminHandler struct {
	admin AdminExecutor
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin AdminExecutor) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Handle returns the telebot handler of cmd.
func (h *AdminHandler) Handle(cmd Command) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		action, err := cmd.parse(c.Args())
		if err != nil {
			return c.Reply(fmt.Sprintf("❌ %s\nUsage: %s", err.Error(), cmd.Usage))
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		result, err := h.admin.Execute(ctx, action)
		if err != nil {
			log.Warn().
				Err(err).
				Int64("admin_id", sender.ID).
				Str("operation", action.Kind()).
				Msg("Admin operation failed")
			return c.Reply(FailureText(err))
		}

		log.Info().
			Int64("admin_id", sender.ID).
			Str("operation", action.Kind()).
			Msg("Admin operation executed")

		return c.Reply(ResultText(result))
	}
}

// HandleHelp lists the commands.
func (h *AdminHandler) HandleHelp(c tele.Context) error {
	var sb strings.Builder
	sb.WriteString("🛠 Admin commands\n\n")
	for _, cmd := range Commands {
		sb.WriteString(cmd.Usage)
		sb.WriteString("\n")
	}
	return c.Reply(sb.String())
}

// ParseCommand builds the action for a command name and its arguments.
func ParseCommand(name string, args []string) (service.AdminAction, error) {
	for _, cmd := range Commands {
		if cmd.Name == name {
			return cmd.parse(args)
		}
	}
	return nil, fmt.Errorf("unknown command %s", name)
}

// FailureText renders a failed operation for the chat.
func FailureText(err error) string {
	switch {
	case service.IsNotFound(err):
		return "❌ Not found"
	case service.IsBusinessError(err):
		return "❌ " + err.Error()
	}
	return "❌ Operation failed, please try again later"
}

// ResultText renders an operation result for the chat.
func ResultText(result any) string {
	switch r := result.(type) {
	case *service.AdjustResult:
		return fmt.Sprintf("✅ Done\n\n👤 Account: %d\n🔁 Change: %+d KZ\n💰 Balance: %d KZ",
			r.AccountID, r.Delta, r.NewBalance)
	case *model.Deposit:
		return fmt.Sprintf("✅ Deposit #%d %s\n👤 Account: %d\n💵 Amount: %d KZ",
			r.ID, r.Status, r.AccountID, r.Amount)
	case *model.Withdrawal:
		return fmt.Sprintf("✅ Withdrawal #%d %s\n👤 Account: %d\n💵 Amount: %d KZ",
			r.ID, r.Status, r.AccountID, r.Amount)
	case *model.Purchase:
		return fmt.Sprintf("✅ Purchase #%d %s\n👤 Account: %d\n💵 Amount: %d KZ",
			r.ID, r.Status, r.AccountID, r.Amount)
	case *service.PayoutReport:
		return fmt.Sprintf("✅ Payout run %s\n\n📦 Processed: %d\n💸 Credited: %d (%d KZ)\n🏁 Completed: %d\n⌛ Expired: %d\n⚠️ Errors: %d",
			r.RunID, r.Processed, r.Credited, r.TotalAmount, r.Completed, r.Expired, len(r.Errors))
	}
	return "✅ Done"
}

var errArgs = errors.New("wrong arguments")

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// parseAdminArgs parses "<account_id> <amount> [reason...]".
func parseAdminArgs(args []string) (accountID, amount int64, reason string, err error) {
	if len(args) < 2 {
		return 0, 0, "", errArgs
	}
	if accountID, err = parseID(args[0]); err != nil {
		return 0, 0, "", err
	}
	if amount, err = parseAmount(args[1]); err != nil {
		return 0, 0, "", err
	}
	return accountID, amount, strings.Join(args[2:], " "), nil
}

// parseIDArgs parses "<id> [reason...]".
func parseIDArgs(args []string) (int64, string, error) {
	if len(args) < 1 {
		return 0, "", errArgs
	}
	id, err := parseID(args[0])
	if err != nil {
		return 0, "", err
	}
	return id, strings.Join(args[1:], " "), nil
}

func parseAdd(args []string) (service.AdminAction, error) {
	id, amount, reason, err := parseAdminArgs(args)
	if err != nil {
		return nil, err
	}
	return service.AddBalance{AccountID: id, Amount: amount, Reason: reason}, nil
}

func parseDeduct(args []string) (service.AdminAction, error) {
	id, amount, reason, err := parseAdminArgs(args)
	if err != nil {
		return nil, err
	}
	return service.DeductBalance{AccountID: id, Amount: amount, Reason: reason}, nil
}

func parseSet(args []string) (service.AdminAction, error) {
	id, balance, reason, err := parseAdminArgs(args)
	if err != nil {
		return nil, err
	}
	return service.SetBalance{AccountID: id, Balance: &balance, Reason: reason}, nil
}

func parseApproveDeposit(args []string) (service.AdminAction, error) {
	id, _, err := parseIDArgs(args)
	if err != nil {
		return nil, err
	}
	return service.ApproveDeposit{DepositID: id}, nil
}

func parseRejectDeposit(args []string) (service.AdminAction, error) {
	id, reason, err := parseIDArgs(args)
	if err != nil {
		return nil, err
	}
	return service.RejectDeposit{DepositID: id, Reason: reason}, nil
}

func parseApproveWithdrawal(args []string) (service.AdminAction, error) {
	id, _, err := parseIDArgs(args)
	if err != nil {
		return nil, err
	}
	return service.ApproveWithdrawal{WithdrawalID: id}, nil
}

func parseRejectWithdrawal(args []string) (service.AdminAction, error) {
	id, reason, err := parseIDArgs(args)
	if err != nil {
		return nil, err
	}
	return service.RejectWithdrawal{WithdrawalID: id, Reason: reason}, nil
}

func parseCancel(args []string) (service.AdminAction, error) {
	id, rest, err := parseIDArgs(args)
	if err != nil {
		return nil, err
	}
	switch rest {
	case "":
		return service.CancelPurchase{PurchaseID: id}, nil
	case "refund":
		return service.CancelPurchase{PurchaseID: id, Refund: true}, nil
	}
	return nil, fmt.Errorf("unexpected %q", rest)
}

func parseRun(args []string) (service.AdminAction, error) {
	if len(args) != 0 {
		return nil, errArgs
	}
	return service.RunPayouts{}, nil
}
