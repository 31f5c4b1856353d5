package service

import (
	"errors"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

// newReference returns a TXN- prefixed reference built from a random uuid.
func newReference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return domain.ReferencePrefix + strings.ToUpper(hex[:16])
}

// outcome labels an error for the ledger metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, models.ErrWalletInactive):
		return "wallet_inactive"
	case errors.Is(err, models.ErrWalletNotFound), errors.Is(err, models.ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, models.ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, models.ErrProvider):
		return "provider_error"
	case errors.Is(err, models.ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}
