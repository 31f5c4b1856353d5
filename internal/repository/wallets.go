package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `wallet_number, user_id, balance, is_active, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.Number, &w.UserID, &w.Balance, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrWalletNotFound
		}
		return nil, fmt.Errorf("%w: scan wallet: %w", models.ErrStorage, err)
	}
	return &w, nil
}

const getWallet = `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_number = $1`

func (q *Queries) GetWallet(ctx context.Context, number string) (*models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWallet, number))
}

const getWalletForUpdate = getWallet + ` FOR UPDATE`

func (q *Queries) GetWalletForUpdate(ctx context.Context, number string) (*models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWalletForUpdate, number))
}

const getWalletByUser = `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

func (q *Queries) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, getWalletByUser, userID))
}

const createWallet = `
INSERT INTO wallets (wallet_number, user_id, balance, is_active)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`

func (q *Queries) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	err := q.db.QueryRow(ctx, createWallet, wallet.Number, wallet.UserID, wallet.Balance, wallet.Active).
		Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "wallets_pkey"):
		return models.ErrDuplicateWalletNumber
	case isUniqueViolation(err, "wallets_user_id_key"):
		return models.ErrWalletExists
	default:
		return fmt.Errorf("%w: create wallet: %w", models.ErrStorage, err)
	}
}

const saveWallet = `
UPDATE wallets
SET balance = $2, is_active = $3, updated_at = NOW()
WHERE wallet_number = $1
RETURNING updated_at`

// SaveWallet persists balance and status. The row is expected to be locked by the caller.
func (q *Queries) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	err := q.db.QueryRow(ctx, saveWallet, wallet.Number, wallet.Balance, wallet.Active).Scan(&wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrWalletNotFound
		}
		return fmt.Errorf("%w: save wallet: %w", models.ErrStorage, err)
	}
	return nil
}

const walletNumberExists = `SELECT EXISTS (SELECT 1 FROM wallets WHERE wallet_number = $1)`

func (q *Queries) WalletNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, walletNumberExists, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: wallet number lookup: %w", models.ErrStorage, err)
	}
	return exists, nil
}
