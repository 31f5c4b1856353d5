package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = TokenConfig{
	Secret:   []byte("test-secret"),
	Issuer:   "wallet-ledger",
	Audience: "wallet-clients",
	TTL:      time.Hour,
}

func TestLoginProvisionsWalletOnce(t *testing.T) {
	env := newTestEnv(t)
	auth := NewAuthService(env.store, env.wallets, testTokens)
	ctx := context.Background()

	first, err := auth.Login(ctx, " Ada@Example.com ", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", first.User.Email)
	assert.Regexp(t, walletNumberPattern, first.WalletNumber)
	assert.NotEmpty(t, first.Token)

	second, err := auth.Login(ctx, "ada@example.com", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, first.WalletNumber, second.WalletNumber)

	_, err = auth.Login(ctx, "not-an-email", "x")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestIssueTokenClaims(t *testing.T) {
	env := newTestEnv(t)
	auth := NewAuthService(env.store, env.wallets, testTokens)
	now := time.Now().Truncate(time.Second)
	auth.now = func() time.Time { return now }

	signed, expiresAt, err := auth.IssueToken("user-1", domain.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return testTokens.Secret, nil
	}, jwt.WithIssuer("wallet-ledger"), jwt.WithAudience("wallet-clients"), jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["user_id"])
	assert.Equal(t, domain.RoleUser, claims["role"])
	assert.Equal(t, float64(expiresAt.Unix()), claims["exp"])

	_, err = jwt.Parse(signed, func(t *jwt.Token) (any, error) { return []byte("wrong"), nil })
	assert.Error(t, err)
}
