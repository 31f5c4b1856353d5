package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// WebhookService handles provider event deliveries.
type WebhookService struct {
	ledger        *LedgerService
	secret        []byte
	skipSig       bool
	settleTimeout time.Duration
}

// NewWebhookService creates a WebhookService that verifies signatures with the provider secret.
func NewWebhookService(ledger *LedgerService, secret string, skipSignature bool, settleTimeout time.Duration) *WebhookService {
	if settleTimeout <= 0 {
		settleTimeout = 5 * time.Second
	}
	return &WebhookService{
		ledger:        ledger,
		secret:        []byte(secret),
		skipSig:       skipSignature,
		settleTimeout: settleTimeout,
	}
}

// PaystackEvent is the subset of a Paystack webhook body the ledger reads.
type PaystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

type WebhookResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandlePaystackWebhook verifies the signature over the raw body before
// decoding it. Only charge.success reaches the ledger.
func (s *WebhookService) HandlePaystackWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if !s.verifyHMAC(payload, signature) {
		observability.IncrementSettlement("webhook", "invalid_signature")
		return nil, ErrInvalidSignature
	}

	var event PaystackEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Event != domain.EventChargeSuccess {
		zap.L().Info("webhook event ignored", zap.String("event", event.Event))
		return &WebhookResult{Status: "ignored", Message: "Event ignored"}, nil
	}
	ref := strings.TrimSpace(event.Data.Reference)
	if ref == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrInvalidPayload)
	}

	settleCtx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()
	settled, err := s.ledger.settle(settleCtx, ref, domain.FromMinorUnits(event.Data.Amount))
	if err != nil {
		observability.IncrementSettlement("webhook", "error")
		zap.L().Warn("webhook settlement failed", zap.String("external_reference", ref), zap.Error(err))
		return nil, err
	}
	if !settled {
		observability.IncrementSettlement("webhook", "duplicate")
		return &WebhookResult{Status: "success", Message: "Deposit already processed"}, nil
	}
	observability.IncrementSettlement("webhook", "settled")
	return &WebhookResult{Status: "success", Message: "Deposit processed"}, nil
}

// verifyHMAC checks the lowercase hex HMAC-SHA512 of the payload.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.secret) == 0 || signature == "" {
		return false
	}

	expected := SignPayload(string(s.secret), payload)
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected))
}

// SignPayload returns the signature a provider would send for payload.
func SignPayload(secret string, payload []byte) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
