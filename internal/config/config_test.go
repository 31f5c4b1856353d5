package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_x")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, ProviderPaystack, cfg.PaymentProvider)
	assert.Equal(t, "https://api.paystack.co", cfg.PaystackBaseURL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5*time.Second, cfg.SettleTimeout)
	assert.Equal(t, time.Minute, cfg.DepositVerifyInterval)
	assert.Equal(t, int32(50), cfg.DepositVerifyBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.DepositExpiry)
	assert.Equal(t, 10, cfg.WalletNumberMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.False(t, cfg.AuthDevLogin)
	assert.True(t, cfg.DBAutoMigrate)
}

func TestLoadPrefixedAliases(t *testing.T) {
	t.Setenv("WALLET_JWT_SECRET", testSecret)
	t.Setenv("WALLET_PAYMENT_PROVIDER", "MOCK")
	t.Setenv("WALLET_SETTLE_TIMEOUT", "750ms")
	t.Setenv("DEPOSIT_VERIFY_BATCH_SIZE", "7")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.PaymentProvider)
	assert.Equal(t, 750*time.Millisecond, cfg.SettleTimeout)
	assert.Equal(t, int32(7), cfg.DepositVerifyBatchSize)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET is required"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 32"},
		{"paystack without key", map[string]string{"JWT_SECRET": testSecret}, "PAYSTACK_SECRET_KEY"},
		{"unknown provider", map[string]string{"JWT_SECRET": testSecret, "PAYMENT_PROVIDER": "stripe"}, "PAYMENT_PROVIDER"},
		{"bad duration", map[string]string{"JWT_SECRET": testSecret, "PAYMENT_PROVIDER": "mock", "PROVIDER_TIMEOUT": "soon"}, "PROVIDER_TIMEOUT"},
		{"zero duration", map[string]string{"JWT_SECRET": testSecret, "PAYMENT_PROVIDER": "mock", "DEPOSIT_EXPIRY": "0s"}, "DEPOSIT_EXPIRY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSkipSignatureAllowsMissingPaystackKey(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("WEBHOOK_SKIP_SIG", "true")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.True(t, cfg.WebhookSkipSignature)
}
