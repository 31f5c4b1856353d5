package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store    *memstore.Store
	ledger   *LedgerService
	wallets  *WalletService
	provider *gateway.MockProvider
	deposits *DepositService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	ledger := NewLedgerService(store)
	provider := gateway.NewMockProvider()
	return &testEnv{
		store:    store,
		ledger:   ledger,
		wallets:  NewWalletService(store, DefaultWalletNumberAttempts),
		provider: provider,
		deposits: NewDepositService(store, ledger, provider, DepositConfig{
			ProviderTimeout: time.Second,
			SettleTimeout:   time.Second,
			VerifyGrace:     time.Minute,
			Expiry:          time.Hour,
		}),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newWallet provisions a user with a wallet holding balance.
func (e *testEnv) newWallet(t *testing.T, balance string) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	user, err := e.store.Queries().UpsertUserByEmail(ctx, &models.User{Email: uuid.NewString() + "@example.com"})
	require.NoError(t, err)
	wallet, err := e.wallets.CreateWallet(ctx, user.ID)
	require.NoError(t, err)

	if b := dec(balance); b.IsPositive() {
		wallet, err = e.ledger.Credit(ctx, wallet.Number, b)
		require.NoError(t, err)
	}
	return wallet
}

func (e *testEnv) balance(t *testing.T, number string) string {
	t.Helper()
	w, err := e.store.Queries().GetWallet(context.Background(), number)
	require.NoError(t, err)
	return w.Balance.StringFixed(2)
}

func (e *testEnv) history(t *testing.T, number string) []models.Transaction {
	t.Helper()
	txns, err := e.store.Queries().ListTransactionsByWallet(context.Background(), number)
	require.NoError(t, err)
	return txns
}
