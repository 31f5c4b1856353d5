package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusSuccess: {},
		domain.TxStatusFailed:  {},
	},
	// an expired deposit can still be paid late
	domain.TxStatusFailed: {
		domain.TxStatusSuccess: {},
	},
	domain.TxStatusSuccess: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// transitionTransaction moves txn to next, persists every mutable field of txn
// and records the change in the audit log. The caller must hold the row lock.
func transitionTransaction(ctx context.Context, q repository.Querier, audit *AuditService, txn *models.Transaction, next string, actorID *uuid.UUID, action string, metadata []byte) error {
	current := txn.Status
	if normalizeState(current) == normalizeState(next) {
		return nil
	}
	if !canTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, next)
	}

	txn.Status = next
	if err := q.SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}

	return audit.Write(ctx, q, "transaction", txn.ID, actorID, action, current, next, metadata)
}
