package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DepositConfig struct {
	ProviderTimeout time.Duration
	SettleTimeout   time.Duration
	// VerifyGrace is how old a pending deposit must be before the worker polls it.
	VerifyGrace time.Duration
	// Expiry is the age after which a deposit with a final failed provider status is marked FAILED.
	Expiry time.Duration
}

func (c DepositConfig) withDefaults() DepositConfig {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 5 * time.Second
	}
	if c.VerifyGrace <= 0 {
		c.VerifyGrace = 2 * time.Minute
	}
	if c.Expiry <= 0 {
		c.Expiry = 24 * time.Hour
	}
	return c
}

type DepositResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// VerifyStats summarises one VerifyPending pass.
type VerifyStats struct {
	Checked int
	Settled int
	Expired int
	Failed  int
}

// DepositService opens provider sessions and polls the provider for settlement.
type DepositService struct {
	store    QueryStore
	ledger   *LedgerService
	provider gateway.Provider
	cfg      DepositConfig
	now      func() time.Time
}

func NewDepositService(store QueryStore, ledger *LedgerService, provider gateway.Provider, cfg DepositConfig) *DepositService {
	return &DepositService{
		store:    store,
		ledger:   ledger,
		provider: provider,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// InitiateDeposit records a PENDING deposit, then asks the provider for a
// payment link. No row lock is held during the provider call.
func (s *DepositService) InitiateDeposit(ctx context.Context, userID uuid.UUID, email string, amount decimal.Decimal) (*DepositResult, error) {
	amount, err := validAmount(amount)
	if err != nil {
		return nil, err
	}
	reference := newReference()

	var txn *models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		wallet, err := q.GetWalletByUser(ctx, userID)
		if err != nil {
			return err
		}
		if !wallet.Active {
			return models.ErrWalletInactive
		}
		txn = &models.Transaction{
			ID:              uuid.New(),
			Reference:       reference,
			WalletNumber:    wallet.Number,
			Type:            domain.TxTypeDeposit,
			Status:          domain.TxStatusPending,
			Amount:          amount,
			Description:     "Wallet deposit",
			PreviousBalance: models.DecimalPtr(wallet.Balance),
		}
		return q.AppendTransaction(ctx, txn)
	})
	if err != nil {
		observability.IncrementLedgerOperation("initiate_deposit", outcome(err))
		return nil, err
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	session, err := s.provider.Open(providerCtx, email, domain.ToMinorUnits(amount), reference)
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrProvider) {
			err = fmt.Errorf("%w: %v", models.ErrProvider, err)
		}
		observability.IncrementLedgerOperation("initiate_deposit", outcome(err))
		zap.L().Warn("deposit initiation failed at provider", zap.String("reference", reference), zap.Error(err))
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		t, err := q.GetTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		t.ExternalReference = models.StringPtr(session.ExternalReference)
		t.AuthorizationURL = models.StringPtr(session.AuthorizationURL)
		return q.SaveTransaction(ctx, t)
	})
	observability.IncrementLedgerOperation("initiate_deposit", outcome(err))
	if err != nil {
		return nil, err
	}

	zap.L().Info("deposit initiated",
		zap.String("reference", reference),
		zap.String("external_reference", session.ExternalReference),
		zap.String("wallet_number", txn.WalletNumber),
		zap.String("amount", domain.FormatAmount(amount)),
	)
	return &DepositResult{Reference: reference, AuthorizationURL: session.AuthorizationURL}, nil
}

// DepositForUser initiates a deposit billed to the user's registered email.
func (s *DepositService) DepositForUser(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*DepositResult, error) {
	user, err := s.store.Queries().GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.InitiateDeposit(ctx, userID, user.Email, amount)
}

// VerifyDeposit asks the provider about a deposit and settles it when paid.
// It backs the provider redirect target, so it may race the webhook.
func (s *DepositService) VerifyDeposit(ctx context.Context, reference string) (*DepositStatus, error) {
	txn, err := s.store.Queries().GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Type != domain.TxTypeDeposit || txn.Status == domain.TxStatusSuccess || txn.ExternalReference == nil {
		return s.ledger.GetStatus(ctx, reference)
	}

	if _, err := s.verifyAndSettle(ctx, txn, "verify"); err != nil {
		return nil, err
	}
	return s.ledger.GetStatus(ctx, reference)
}

// verifyAndSettle returns the provider status it observed.
func (s *DepositService) verifyAndSettle(ctx context.Context, txn *models.Transaction, source string) (string, error) {
	ext := *txn.ExternalReference

	providerCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	v, err := s.provider.Verify(providerCtx, ext)
	cancel()
	if err != nil {
		return "", err
	}
	if v.Status != domain.ProviderStatusSuccess {
		return v.Status, nil
	}

	settleCtx, cancel := context.WithTimeout(ctx, s.cfg.SettleTimeout)
	defer cancel()
	settled, err := s.ledger.settle(settleCtx, ext, domain.FromMinorUnits(v.AmountMinor))
	switch {
	case err != nil:
		observability.IncrementSettlement(source, "error")
		return v.Status, err
	case settled:
		observability.IncrementSettlement(source, "settled")
	default:
		observability.IncrementSettlement(source, "duplicate")
	}
	return v.Status, nil
}

// VerifyPending polls the provider for pending deposits older than the grace
// period. Deposits past expiry whose provider status is final are marked FAILED.
func (s *DepositService) VerifyPending(ctx context.Context, batch int32) (VerifyStats, error) {
	var stats VerifyStats
	now := s.now()
	pending, err := s.store.Queries().ListPendingDeposits(ctx, now.Add(-s.cfg.VerifyGrace), batch)
	if err != nil {
		return stats, err
	}

	for i := range pending {
		txn := &pending[i]
		if txn.ExternalReference == nil {
			continue
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		status, err := s.verifyAndSettle(ctx, txn, "worker")
		if err != nil {
			stats.Failed++
			level := zap.WarnLevel
			if isBusinessError(err) {
				level = zap.ErrorLevel
			}
			zap.L().Check(level, "pending deposit verification failed").Write(
				zap.String("reference", txn.Reference),
				zap.Error(err),
			)
			continue
		}
		switch status {
		case domain.ProviderStatusSuccess:
			stats.Settled++
		case domain.ProviderStatusFailed, domain.ProviderStatusAbandoned:
			if now.Sub(txn.CreatedAt) < s.cfg.Expiry {
				continue
			}
			expired, err := s.ledger.expireDeposit(ctx, *txn.ExternalReference, status)
			if err != nil {
				stats.Failed++
				zap.L().Warn("expire deposit failed", zap.String("reference", txn.Reference), zap.Error(err))
				continue
			}
			if expired {
				stats.Expired++
				zap.L().Info("deposit expired", zap.String("reference", txn.Reference), zap.String("provider_status", status))
			}
		}
	}
	return stats, nil
}
