package models

import "errors"

// Ledger error taxonomy. Callers match with errors.Is; messages are safe to show to clients.
var (
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrWalletInactive            = errors.New("wallet is not active")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrSelfTransfer              = errors.New("cannot transfer to your own wallet")
	ErrWalletNotFound            = errors.New("wallet not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrDuplicateReference        = errors.New("transaction reference already exists")
	ErrWalletGenerationExhausted = errors.New("failed to generate unique wallet number")
	ErrStorage                   = errors.New("storage unavailable")
	ErrProvider                  = errors.New("payment provider error")

	ErrDuplicateWalletNumber = errors.New("wallet number already exists")
	ErrWalletExists          = errors.New("wallet already exists for user")
	ErrUserNotFound          = errors.New("user not found")
	ErrAPIKeyNotFound        = errors.New("api key not found")
	ErrInvalidTransition     = errors.New("invalid transaction state transition")
)
