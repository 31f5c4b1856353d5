package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/wallet-ledger/internal/api"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository/memstore"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "test-secret-0123456789-test-secret"
	testJWTIssuer     = "wallet-ledger-test"
	testJWTAudience   = "wallet-api-test"
	testWebhookSecret = "sk_test_webhook_secret"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	observability.Init()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
	os.Exit(m.Run())
}

type apiEnv struct {
	handler  http.Handler
	store    *memstore.Store
	provider *gateway.MockProvider
	ledger   *service.LedgerService
	keys     *service.APIKeyService
}

type session struct {
	Token        string
	UserID       uuid.UUID
	WalletNumber string
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	provider := gateway.NewMockProvider()
	ledger := service.NewLedgerService(store)
	wallets := service.NewWalletService(store, service.DefaultWalletNumberAttempts)
	deposits := service.NewDepositService(store, ledger, provider, service.DepositConfig{})
	keys := service.NewAPIKeyService(store)
	auth := service.NewAuthService(store, wallets, service.TokenConfig{
		Secret:   []byte(testJWTSecret),
		Issuer:   testJWTIssuer,
		Audience: testJWTAudience,
		TTL:      time.Hour,
	})

	router := api.NewRouter(api.Deps{
		Config:      &config.Config{AuthDevLogin: true},
		Logger:      zap.NewNop(),
		Redis:       rdb,
		Idempotency: idempotency.NewStore(rdb, nil, time.Hour),
		Ledger:      ledger,
		Deposits:    deposits,
		Wallets:     wallets,
		Webhooks:    service.NewWebhookService(ledger, testWebhookSecret, false, time.Second),
		APIKeys:     keys,
		Auth:        auth,
	})
	return &apiEnv{handler: router.Routes(), store: store, provider: provider, ledger: ledger, keys: keys}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) login(t *testing.T, email string) session {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": email, "name": "Test"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token        string `json:"token"`
		WalletNumber string `json:"wallet_number"`
		User         struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return session{Token: out.Token, UserID: out.User.ID, WalletNumber: out.WalletNumber}
}

func (e *apiEnv) fund(t *testing.T, s session, amount string) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), s.WalletNumber, decimal.RequireFromString(amount))
	require.NoError(t, err)
}

func bearer(s session) map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.Token}
}

func withKey(h map[string]string, key string) map[string]string {
	h[middleware.IdempotencyHeader] = key
	return h
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *apiEnv) balance(t *testing.T, s session) string {
	t.Helper()
	w := e.do(t, http.MethodGet, "/v1/wallet/balance", nil, bearer(s))
	require.Equal(t, http.StatusOK, w.Code)
	return decode[map[string]string](t, w)["balance"]
}

func signedWebhook(ref string, amountMinor int64) ([]byte, map[string]string) {
	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":%d,"status":"success"}}`, ref, amountMinor))
	return payload, map[string]string{"x-paystack-signature": service.SignPayload(testWebhookSecret, payload)}
}

func TestRFC7807ProblemDetails(t *testing.T) {
	e := setupAPI(t)
	w := e.do(t, http.MethodGet, "/v1/wallet/balance", nil, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	body := decode[map[string]any](t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/wallet/balance", body["instance"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, body["request_id"], w.Header().Get("X-Trace-ID"))
}

func TestLoginProvisionsWallet(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "ada@example.com")
	assert.Regexp(t, `^\d{13}$`, s.WalletNumber)
	assert.Equal(t, "0.00", e.balance(t, s))

	again := e.login(t, "ADA@example.com")
	assert.Equal(t, s.WalletNumber, again.WalletNumber)

	w := e.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"email": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositSettledByWebhook(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "dep@example.com")

	w := e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]string{"amount": "1500.00"}, bearer(s))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[service.DepositResult](t, w)
	assert.True(t, strings.HasPrefix(res.Reference, "TXN-"))
	assert.NotEmpty(t, res.AuthorizationURL)

	w = e.do(t, http.MethodGet, "/v1/wallet/deposit/"+res.Reference+"/status", nil, bearer(s))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decode[service.DepositStatus](t, w).Status)

	payload, headers := signedWebhook(res.Reference, 150000)
	w = e.do(t, http.MethodPost, "/v1/wallet/paystack/webhook", payload, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1500.00", e.balance(t, s))

	w = e.do(t, http.MethodPost, "/v1/wallet/paystack/webhook", payload, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Deposit already processed", decode[service.WebhookResult](t, w).Message)
	assert.Equal(t, "1500.00", e.balance(t, s))

	w = e.do(t, http.MethodGet, "/v1/wallet/deposit/"+res.Reference+"/status", nil, bearer(s))
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[service.DepositStatus](t, w)
	assert.Equal(t, "success", status.Status)
	assert.Equal(t, "1500.00", status.Amount)

	w = e.do(t, http.MethodGet, "/v1/wallet/transactions", nil, bearer(s))
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]service.TransactionView](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, "deposit", history[0].Type)
}

func TestDepositValidation(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "val@example.com")

	for _, amount := range []any{"99.99", "1000000.01", "12.345", "abc", nil} {
		w := e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"amount": amount}, bearer(s))
		assert.Equal(t, http.StatusBadRequest, w.Code, "amount %v", amount)
		body := decode[map[string]any](t, w)
		assert.Contains(t, body["errors"], "amount")
	}

	w := e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"amount": 100}, bearer(s))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestDepositProviderFailure(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "fail@example.com")
	e.provider.FailNext()

	w := e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]string{"amount": "500"}, bearer(s))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "temporarily")
}

func TestDepositStatusIsOwnerOnly(t *testing.T) {
	e := setupAPI(t)
	owner := e.login(t, "owner@example.com")
	other := e.login(t, "other@example.com")

	w := e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]string{"amount": "200"}, bearer(owner))
	require.Equal(t, http.StatusCreated, w.Code)
	ref := decode[service.DepositResult](t, w).Reference

	w = e.do(t, http.MethodGet, "/v1/wallet/deposit/"+ref+"/status", nil, bearer(other))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodGet, "/v1/wallet/deposit/TXN-UNKNOWN/status", nil, bearer(owner))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyPaymentSettles(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "verify@example.com")

	w := e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]string{"amount": "300"}, bearer(s))
	require.Equal(t, http.StatusCreated, w.Code)
	ref := decode[service.DepositResult](t, w).Reference

	e.provider.MarkPaid(ref, 30000)
	w = e.do(t, http.MethodGet, "/v1/wallet/verify-payment?reference="+ref, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", decode[service.DepositStatus](t, w).Status)
	assert.Equal(t, "300.00", e.balance(t, s))

	// the webhook arriving afterwards does not credit again
	payload, headers := signedWebhook(ref, 30000)
	w = e.do(t, http.MethodPost, "/v1/wallet/paystack/webhook", payload, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "300.00", e.balance(t, s))

	w = e.do(t, http.MethodGet, "/v1/wallet/verify-payment", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejections(t *testing.T) {
	e := setupAPI(t)

	payload, _ := signedWebhook("TXN-ABC", 1000)
	w := e.do(t, http.MethodPost, "/v1/wallet/paystack/webhook", payload, map[string]string{"x-paystack-signature": "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	payload, headers := signedWebhook("TXN-UNKNOWN", 1000)
	w = e.do(t, http.MethodPost, "/v1/wallet/paystack/webhook", payload, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	big := bytes.Repeat([]byte("a"), (1<<20)+10)
	w = e.do(t, http.MethodPost, "/v1/wallet/paystack/webhook", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestTransferFlowAndReplay(t *testing.T) {
	e := setupAPI(t)
	alice := e.login(t, "alice@example.com")
	bob := e.login(t, "bob@example.com")
	e.fund(t, alice, "100.00")

	body := map[string]string{"wallet_number": bob.WalletNumber, "amount": "40.00"}
	w := e.do(t, http.MethodPost, "/v1/wallet/transfer", body, bearer(alice))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Idempotency-Key")

	w = e.do(t, http.MethodPost, "/v1/wallet/transfer", body, withKey(bearer(alice), "t-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[service.TransferResult](t, w)
	assert.Equal(t, "success", first.Status)
	assert.Equal(t, "Transfer completed", first.Message)

	w = e.do(t, http.MethodPost, "/v1/wallet/transfer", body, withKey(bearer(alice), "t-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "redis", w.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, first, decode[service.TransferResult](t, w))

	assert.Equal(t, "60.00", e.balance(t, alice))
	assert.Equal(t, "40.00", e.balance(t, bob))

	body["amount"] = "41.00"
	w = e.do(t, http.MethodPost, "/v1/wallet/transfer", body, withKey(bearer(alice), "t-1"))
	assert.Equal(t, http.StatusConflict, w.Code)

	// keys are scoped per user
	e.fund(t, bob, "20.00")
	w = e.do(t, http.MethodPost, "/v1/wallet/transfer",
		map[string]string{"wallet_number": alice.WalletNumber, "amount": "10.00"}, withKey(bearer(bob), "t-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "70.00", e.balance(t, alice))
}

func TestTransferErrors(t *testing.T) {
	e := setupAPI(t)
	alice := e.login(t, "a@example.com")
	bob := e.login(t, "b@example.com")
	e.fund(t, alice, "50.00")

	cases := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"insufficient balance", map[string]string{"wallet_number": bob.WalletNumber, "amount": "50.01"}, http.StatusUnprocessableEntity},
		{"self transfer", map[string]string{"wallet_number": alice.WalletNumber, "amount": "10"}, http.StatusBadRequest},
		{"unknown recipient", map[string]string{"wallet_number": "0000000000000", "amount": "10"}, http.StatusNotFound},
		{"malformed wallet number", map[string]string{"wallet_number": "12345", "amount": "10"}, http.StatusBadRequest},
		{"below minimum", map[string]string{"wallet_number": bob.WalletNumber, "amount": "9.99"}, http.StatusBadRequest},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/v1/wallet/transfer", tc.body, withKey(bearer(alice), fmt.Sprintf("err-%d", i)))
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, "50.00", e.balance(t, alice))
	assert.Equal(t, "0.00", e.balance(t, bob))
}

func TestAPIKeyLifecycleAndPermissions(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "keys@example.com")

	w := e.do(t, http.MethodPost, "/v1/keys", map[string]any{
		"name": "reporting", "permissions": []string{"read"}, "expiry": "1D",
	}, bearer(s))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[service.IssuedAPIKey](t, w)
	apiKey := map[string]string{"x-api-key": issued.APIKey}

	w = e.do(t, http.MethodGet, "/v1/wallet/balance", nil, apiKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]string{"amount": "100"}, apiKey)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// key management needs a JWT
	w = e.do(t, http.MethodGet, "/v1/keys", nil, apiKey)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/v1/keys", nil, bearer(s))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), issued.APIKey)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = e.do(t, http.MethodPost, "/v1/keys", map[string]any{
		"name": "bad", "permissions": []string{"admin"}, "expiry": "1D",
	}, bearer(s))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/keys/rollover", map[string]string{"expired_key_id": issued.ID, "expiry": "1D"}, bearer(s))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodDelete, "/v1/keys/"+issued.ID, nil, bearer(s))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/v1/wallet/balance", nil, apiKey)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyLimit(t *testing.T) {
	e := setupAPI(t)
	s := e.login(t, "limit@example.com")
	req := map[string]any{"name": "k", "permissions": []string{"read"}, "expiry": "1H"}

	for i := 0; i < service.MaxActiveAPIKeys; i++ {
		w := e.do(t, http.MethodPost, "/v1/keys", req, bearer(s))
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := e.do(t, http.MethodPost, "/v1/keys", req, bearer(s))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInvalidTokenRejected(t *testing.T) {
	e := setupAPI(t)
	w := e.do(t, http.MethodGet, "/v1/wallet/balance", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodGet, "/v1/wallet/balance", nil, map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodGet, "/v1/wallet/balance", nil, map[string]string{"x-api-key": "sk_live_forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicDocumentsAndProbes(t *testing.T) {
	e := setupAPI(t)

	w := e.do(t, http.MethodGet, "/openapi.yaml", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/wallet/transfer")

	w = e.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	e.do(t, http.MethodGet, "/health/ready", nil, nil)
	w = e.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")

	w = e.do(t, http.MethodGet, "/v1/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
}
