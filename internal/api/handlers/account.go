package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"payout-ledger/internal/api/middleware"
	"payout-ledger/internal/model"
	"payout-ledger/internal/service"
)

// AccountService is what the account handlers need from the service layer.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Account, error)
	GetSummary(ctx context.Context, accountID int64) (*service.AccountSummary, error)
	GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*model.Transaction, error)
	GetPurchases(ctx context.Context, accountID int64) ([]*model.Purchase, error)
	GetReferralBonuses(ctx context.Context, accountID int64, limit int) ([]*model.ReferralBonus, error)
	GetReferralTeam(ctx context.Context, accountID int64) (map[int]int64, error)
	CollectPayout(ctx context.Context, accountID, purchaseID int64) (*service.PayoutItem, error)
	RequestDeposit(ctx context.Context, in service.DepositInput) (*model.Deposit, error)
	RequestWithdrawal(ctx context.Context, in service.WithdrawalInput) (*model.Withdrawal, error)
}

// PurchaseService opens purchases.
type PurchaseService interface {
	Purchase(ctx context.Context, in service.PurchaseInput) (*service.PurchaseResult, error)
}

// TokenIssuer issues account tokens.
type TokenIssuer interface {
	GenerateToken(accountID int64, username string) (string, error)
}

// AccountHandler serves the account-facing routes.
type AccountHandler struct {
	accounts  AccountService
	purchases PurchaseService
	tokens    TokenIssuer
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountService, purchases PurchaseService, tokens TokenIssuer) *AccountHandler {
	return &AccountHandler{accounts: accounts, purchases: purchases, tokens: tokens}
}

// Register creates an account and returns it with a token.
func (h *AccountHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.GenerateToken(account.ID, account.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account, "token": token})
}

// GetAccount returns the caller's account summary.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}

	summary, err := h.accounts.GetSummary(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetTransactions returns the caller's ledger history, newest first.
func (h *AccountHandler) GetTransactions(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50, 1, 200)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0, 1<<30)
	if !ok {
		return
	}

	txs, err := h.accounts.GetTransactions(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "limit": limit, "offset": offset})
}

// GetPurchases returns the caller's purchases.
func (h *AccountHandler) GetPurchases(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}

	purchases, err := h.accounts.GetPurchases(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

// CreatePurchase opens a purchase for the caller.
func (h *AccountHandler) CreatePurchase(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}

	var req service.PurchaseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	req.AccountID = accountID

	result, err := h.purchases.Purchase(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CollectPayout credits one due purchase of the caller.
func (h *AccountHandler) CollectPayout(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}
	purchaseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := h.accounts.CollectPayout(c.Request.Context(), accountID, purchaseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RequestDeposit files a deposit for admin review.
func (h *AccountHandler) RequestDeposit(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}

	var req service.DepositInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	req.AccountID = accountID

	deposit, err := h.accounts.RequestDeposit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deposit)
}

// RequestWithdrawal debits the caller and files a withdrawal.
func (h *AccountHandler) RequestWithdrawal(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}

	var req service.WithdrawalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	req.AccountID = accountID

	withdrawal, err := h.accounts.RequestWithdrawal(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, withdrawal)
}

// GetReferralBonuses returns commissions paid to the caller.
func (h *AccountHandler) GetReferralBonuses(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 50, 1, 200)
	if !ok {
		return
	}

	bonuses, err := h.accounts.GetReferralBonuses(c.Request.Context(), accountID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bonuses": bonuses})
}

// GetReferralTeam returns the caller's down-line size per level.
func (h *AccountHandler) GetReferralTeam(c *gin.Context) {
	accountID, ok := callerID(c)
	if !ok {
		return
	}

	team, err := h.accounts.GetReferralTeam(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team": team})
}

func callerID(c *gin.Context) (int64, bool) {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return accountID, true
}
