package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaystackOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "1500000", body["amount"])
		assert.Equal(t, "TXN-ABC", body["reference"])
		assert.Equal(t, "https://app.local/callback", body["callback_url"])

		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/xyz","access_code":"xyz","reference":"TXN-ABC"}}`))
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, "sk_test_secret", "https://app.local/callback", time.Second)
	session, err := client.Open(context.Background(), "ada@example.com", 1500000, "TXN-ABC")
	require.NoError(t, err)
	assert.Equal(t, "TXN-ABC", session.ExternalReference)
	assert.Equal(t, "https://checkout.paystack.com/xyz", session.AuthorizationURL)
	assert.Equal(t, "xyz", session.AccessCode)
}

func TestPaystackVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/TXN-ABC", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"reference":"TXN-ABC","status":"success","amount":25050,"paid_at":"2024-05-01T10:00:00.000Z"}}`))
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, "sk_test_secret", "", time.Second)
	v, err := client.Verify(context.Background(), "TXN-ABC")
	require.NoError(t, err)
	assert.Equal(t, "success", v.Status)
	assert.EqualValues(t, 25050, v.AmountMinor)
	require.NotNil(t, v.PaidAt)
	assert.Equal(t, 2024, v.PaidAt.Year())
}

func TestPaystackErrorsWrapProviderError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{
			name: "non 2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
			},
			timeout: time.Second,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			timeout: time.Second,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			timeout: 20 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewPaystackClient(srv.URL, "sk", "", tt.timeout)
			_, err := client.Open(context.Background(), "a@b.c", 10000, "TXN-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrProvider)
		})
	}
}

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider()

	session, err := m.Open(ctx, "a@b.c", 10000, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", session.ExternalReference)

	v, err := m.Verify(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", v.Status)

	m.MarkPaid("TXN-1", 10000)
	v, err = m.Verify(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "success", v.Status)

	m.FailNext()
	_, err = m.Open(ctx, "a@b.c", 10000, "TXN-2")
	assert.ErrorIs(t, err, models.ErrProvider)

	_, err = m.Verify(ctx, "TXN-404")
	assert.ErrorIs(t, err, models.ErrProvider)
}
