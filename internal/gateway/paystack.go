package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"go.uber.org/zap"
)

const DefaultPaystackBaseURL = "https://api.paystack.co"

// PaystackClient talks to the Paystack transaction API.
type PaystackClient struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
}

func NewPaystackClient(baseURL, secretKey, callbackURL string, timeout time.Duration) *PaystackClient {
	if baseURL == "" {
		baseURL = DefaultPaystackBaseURL
	}
	return &PaystackClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    int64      `json:"amount"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt *time.Time `json:"created_at"`
}

func (c *PaystackClient) Open(ctx context.Context, email string, amountMinor int64, reference string) (*Session, error) {
	body, err := json.Marshal(initializeRequest{
		Email:       email,
		Amount:      strconv.FormatInt(amountMinor, 10),
		Reference:   reference,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode initialize request: %v", models.ErrProvider, err)
	}

	var out paystackEnvelope[initializeData]
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}
	if out.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: initialize returned no authorization url", models.ErrProvider)
	}
	ext := out.Data.Reference
	if ext == "" {
		ext = reference
	}
	zap.L().Info("paystack session opened", zap.String("reference", reference), zap.String("external_reference", ext))
	return &Session{
		ExternalReference: ext,
		AuthorizationURL:  out.Data.AuthorizationURL,
		AccessCode:        out.Data.AccessCode,
	}, nil
}

func (c *PaystackClient) Verify(ctx context.Context, externalReference string) (*Verification, error) {
	var out paystackEnvelope[verifyData]
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(externalReference), nil, &out); err != nil {
		return nil, err
	}
	ref := out.Data.Reference
	if ref == "" {
		ref = externalReference
	}
	return &Verification{
		Reference:   ref,
		Status:      strings.ToLower(out.Data.Status),
		AmountMinor: out.Data.Amount,
		PaidAt:      out.Data.PaidAt,
	}, nil
}

func (c *PaystackClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", models.ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", models.ErrProvider, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", models.ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		zap.L().Warn("paystack request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: %s %s returned %d", models.ErrProvider, method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", models.ErrProvider, err)
	}
	return nil
}
