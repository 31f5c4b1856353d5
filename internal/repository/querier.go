package repository

import (
	"context"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

// WalletStore maps a wallet number to its balance and status.
type WalletStore interface {
	GetWallet(ctx context.Context, number string) (*models.Wallet, error)
	// GetWalletForUpdate locks the wallet row until the enclosing transaction ends.
	GetWalletForUpdate(ctx context.Context, number string) (*models.Wallet, error)
	GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	SaveWallet(ctx context.Context, wallet *models.Wallet) error
	WalletNumberExists(ctx context.Context, number string) (bool, error)
}

// TransactionLog is the append-mostly store of transaction records.
type TransactionLog interface {
	AppendTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	GetTransactionByExternalReference(ctx context.Context, externalReference string) (*models.Transaction, error)
	GetTransactionByExternalReferenceForUpdate(ctx context.Context, externalReference string) (*models.Transaction, error)
	ListTransactionsByWallet(ctx context.Context, walletNumber string) ([]models.Transaction, error)
	ListPendingDeposits(ctx context.Context, createdBefore time.Time, limit int32) ([]models.Transaction, error)
	SaveTransaction(ctx context.Context, txn *models.Transaction) error
}

type UserStore interface {
	UpsertUserByEmail(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	CountActiveAPIKeys(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	ListActiveAPIKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	SaveAPIKey(ctx context.Context, key *models.APIKey) error
}

type AuditLog interface {
	InsertAuditLog(ctx context.Context, entry models.AuditEntry) error
}

// Querier is the full query set available inside and outside a unit of work.
type Querier interface {
	WalletStore
	TransactionLog
	UserStore
	APIKeyStore
	AuditLog
}

var _ Querier = (*Queries)(nil)
