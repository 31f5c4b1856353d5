package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, reference, external_reference, wallet_number, type, status, amount,
	sender_wallet_number, recipient_wallet_number, description, authorization_url,
	previous_balance, new_balance, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		t           models.Transaction
		prevBalance decimal.NullDecimal
		newBalance  decimal.NullDecimal
	)
	err := row.Scan(
		&t.ID, &t.Reference, &t.ExternalReference, &t.WalletNumber, &t.Type, &t.Status, &t.Amount,
		&t.SenderWalletNumber, &t.RecipientWalletNumber, &t.Description, &t.AuthorizationURL,
		&prevBalance, &newBalance, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if prevBalance.Valid {
		t.PreviousBalance = models.DecimalPtr(prevBalance.Decimal)
	}
	if newBalance.Valid {
		t.NewBalance = models.DecimalPtr(newBalance.Decimal)
	}
	return &t, nil
}

func getOneTransaction(ctx context.Context, db DBTX, query string, arg any) (*models.Transaction, error) {
	t, err := scanTransaction(db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: get transaction: %w", models.ErrStorage, err)
	}
	return t, nil
}

func nullableDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

const appendTransaction = `
INSERT INTO transactions (
	id, reference, external_reference, wallet_number, type, status, amount,
	sender_wallet_number, recipient_wallet_number, description, authorization_url,
	previous_balance, new_balance
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at, updated_at`

func (q *Queries) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	err := q.db.QueryRow(ctx, appendTransaction,
		txn.ID, txn.Reference, txn.ExternalReference, txn.WalletNumber, txn.Type, txn.Status, txn.Amount,
		txn.SenderWalletNumber, txn.RecipientWalletNumber, txn.Description, txn.AuthorizationURL,
		nullableDecimal(txn.PreviousBalance), nullableDecimal(txn.NewBalance),
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "transactions_reference_key"),
		isUniqueViolation(err, "transactions_external_reference_key"),
		isUniqueViolation(err, "transactions_pkey"):
		return models.ErrDuplicateReference
	default:
		return fmt.Errorf("%w: append transaction: %w", models.ErrStorage, err)
	}
}

const getTransactionByReference = `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

func (q *Queries) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return getOneTransaction(ctx, q.db, getTransactionByReference, reference)
}

const getTransactionByExternalReference = `SELECT ` + transactionColumns + ` FROM transactions WHERE external_reference = $1`

func (q *Queries) GetTransactionByExternalReference(ctx context.Context, externalReference string) (*models.Transaction, error) {
	return getOneTransaction(ctx, q.db, getTransactionByExternalReference, externalReference)
}

const getTransactionByExternalReferenceForUpdate = getTransactionByExternalReference + ` FOR UPDATE`

func (q *Queries) GetTransactionByExternalReferenceForUpdate(ctx context.Context, externalReference string) (*models.Transaction, error) {
	return getOneTransaction(ctx, q.db, getTransactionByExternalReferenceForUpdate, externalReference)
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	out := make([]models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %w", models.ErrStorage, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %w", models.ErrStorage, err)
	}
	return out, nil
}

const listTransactionsByWallet = `SELECT ` + transactionColumns + `
FROM transactions
WHERE wallet_number = $1
ORDER BY created_at DESC, id DESC`

func (q *Queries) ListTransactionsByWallet(ctx context.Context, walletNumber string) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, listTransactionsByWallet, walletNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", models.ErrStorage, err)
	}
	return collectTransactions(rows)
}

const listPendingDeposits = `SELECT ` + transactionColumns + `
FROM transactions
WHERE status = 'PENDING' AND type = 'DEPOSIT' AND created_at < $1
	AND external_reference IS NOT NULL
ORDER BY created_at ASC
LIMIT $2`

// ListPendingDeposits returns the oldest pending deposits that reached the provider.
// Deposits whose provider call failed carry no external reference and are skipped.
func (q *Queries) ListPendingDeposits(ctx context.Context, createdBefore time.Time, limit int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, listPendingDeposits, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending deposits: %w", models.ErrStorage, err)
	}
	return collectTransactions(rows)
}

const saveTransaction = `
UPDATE transactions
SET status = $2, amount = $3, external_reference = $4, authorization_url = $5,
	previous_balance = $6, new_balance = $7, updated_at = NOW()
WHERE id = $1
RETURNING updated_at`

// SaveTransaction updates the mutable fields of a record. Reference, type and wallet are immutable.
func (q *Queries) SaveTransaction(ctx context.Context, txn *models.Transaction) error {
	err := q.db.QueryRow(ctx, saveTransaction,
		txn.ID, txn.Status, txn.Amount, txn.ExternalReference, txn.AuthorizationURL,
		nullableDecimal(txn.PreviousBalance), nullableDecimal(txn.NewBalance),
	).Scan(&txn.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.ErrTransactionNotFound
	case isUniqueViolation(err, "transactions_external_reference_key"):
		return models.ErrDuplicateReference
	default:
		return fmt.Errorf("%w: save transaction: %w", models.ErrStorage, err)
	}
}
