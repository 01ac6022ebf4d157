// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/repository"
)

// Common errors for ledger operations.
var (
	ErrValidation        = errors.New("validation failed")
	ErrAlreadyProcessed  = errors.New("request already processed")
	ErrAlreadyCollected  = errors.New("payout already collected for this window")
	ErrPurchaseNotActive = errors.New("purchase is not active")
	ErrInvalidInviteCode = errors.New("invalid invite code")
	ErrUsernameTaken     = errors.New("username already taken")

	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrAccountNotFound     = repository.ErrAccountNotFound
	ErrPurchaseNotFound    = repository.ErrPurchaseNotFound
)

// ItemError reports the failure of one item of a batch.
type ItemError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput runs struct tag validation and wraps failures in ErrValidation.
func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// IsBusinessError reports whether err is a client-facing rejection rather
// than an atomic unit or store failure.
func IsBusinessError(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrAlreadyCollected),
		errors.Is(err, ErrPurchaseNotActive),
		errors.Is(err, ErrInvalidInviteCode),
		errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ledger.ErrZeroDelta),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrPurchaseNotFound),
		errors.Is(err, repository.ErrDepositNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound):
		return true
	}
	return false
}

// auditFailure writes a failure SystemLog outside the failed unit.
// It only logs when that write fails too.
func auditFailure(ctx context.Context, logs *repository.SystemLogRepository, action string, accountID *int64, err error) {
	if logErr := logs.Create(context.WithoutCancel(ctx), action, err.Error(), accountID); logErr != nil {
		log.Error().Err(logErr).Str("action", action).Msg("Failed to write failure audit log")
	}
}
