package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPPort:                "0",
		JWTSecret:               "0123456789abcdef0123456789abcdef",
		JWTIssuer:               "wallet-ledger",
		JWTAudience:             "wallet-api",
		JWTTTL:                  time.Hour,
		AuthDevLogin:            true,
		PaymentProvider:         config.ProviderMock,
		WebhookSkipSignature:    true,
		ProviderTimeout:         time.Second,
		SettleTimeout:           time.Second,
		DepositVerifyInterval:   time.Minute,
		DepositVerifyBatchSize:  10,
		DepositVerifyGrace:      time.Minute,
		DepositExpiry:           time.Hour,
		WalletNumberMaxAttempts: 10,
		IdempotencyTTL:          time.Hour,
	}
}

func TestNewWithInMemoryBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	h := a.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"ok"`)

	body, _ := json.Marshal(map[string]string{"email": "ada@example.com", "name": "Ada"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		Token        string `json:"token"`
		WalletNumber string `json:"wallet_number"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Len(t, login.WalletNumber, 13)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallet/balance", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"wallet_number":"`+login.WalletNumber+`","balance":"0.00"}`, w.Body.String())
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "connect redis")
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		logger, err := newLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}
