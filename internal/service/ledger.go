package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService is the only writer of wallet balances and transaction records.
type LedgerService struct {
	store QueryStore
	audit *AuditService
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{
		store: store,
		audit: NewAuditService(),
	}
}

type TransferRequest struct {
	WalletNumber string
	Amount       decimal.Decimal
}

type TransferResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type DepositStatus struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
}

type TransactionView struct {
	Reference             string    `json:"reference"`
	Type                  string    `json:"type"`
	Amount                string    `json:"amount"`
	Status                string    `json:"status"`
	Description           string    `json:"description"`
	RecipientWalletNumber *string   `json:"recipient_wallet_number,omitempty"`
	SenderWalletNumber    *string   `json:"sender_wallet_number,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

type BalanceView struct {
	WalletNumber string `json:"wallet_number"`
	Balance      string `json:"balance"`
}

// validAmount rejects non-positive amounts and amounts finer than the ledger scale.
func validAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, models.ErrInvalidAmount
	}
	if !amount.Equal(domain.NormalizeAmount(amount)) {
		return decimal.Zero, fmt.Errorf("%w: more than %d decimal places", models.ErrInvalidAmount, domain.AmountScale)
	}
	return domain.NormalizeAmount(amount), nil
}

// creditLocked adds amount to a wallet the caller has locked and persists it.
func creditLocked(ctx context.Context, q repository.Querier, wallet *models.Wallet, amount decimal.Decimal) error {
	if !wallet.Active {
		return models.ErrWalletInactive
	}
	wallet.Balance = wallet.Balance.Add(amount)
	return q.SaveWallet(ctx, wallet)
}

// debitLocked subtracts amount from a wallet the caller has locked. The
// balance check and the write happen under the same lock.
func debitLocked(ctx context.Context, q repository.Querier, wallet *models.Wallet, amount decimal.Decimal) error {
	if !wallet.Active {
		return models.ErrWalletInactive
	}
	if wallet.Balance.LessThan(amount) {
		return models.ErrInsufficientBalance
	}
	wallet.Balance = wallet.Balance.Sub(amount)
	return q.SaveWallet(ctx, wallet)
}

func (s *LedgerService) Credit(ctx context.Context, walletNumber string, amount decimal.Decimal) (*models.Wallet, error) {
	return s.mutate(ctx, "credit", walletNumber, amount, creditLocked)
}

func (s *LedgerService) Debit(ctx context.Context, walletNumber string, amount decimal.Decimal) (*models.Wallet, error) {
	return s.mutate(ctx, "debit", walletNumber, amount, debitLocked)
}

func (s *LedgerService) mutate(ctx context.Context, op, walletNumber string, amount decimal.Decimal,
	apply func(context.Context, repository.Querier, *models.Wallet, decimal.Decimal) error) (*models.Wallet, error) {
	amount, err := validAmount(amount)
	if err != nil {
		observability.IncrementLedgerOperation(op, outcome(err))
		return nil, err
	}

	var wallet *models.Wallet
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		w, err := q.GetWalletForUpdate(ctx, walletNumber)
		if err != nil {
			return err
		}
		if err := apply(ctx, q, w, amount); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	observability.IncrementLedgerOperation(op, outcome(err))
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// Transfer moves amount from the sender's wallet to the wallet named in req.
// Both balance writes and both transaction legs commit together or not at all.
func (s *LedgerService) Transfer(ctx context.Context, senderUserID uuid.UUID, req TransferRequest) (*TransferResult, error) {
	amount, err := validAmount(req.Amount)
	if err != nil {
		observability.IncrementLedgerOperation("transfer", outcome(err))
		return nil, err
	}
	recipientNumber := strings.TrimSpace(req.WalletNumber)
	root := newReference()

	var sender, recipient *models.Wallet
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		senderWallet, err := q.GetWalletByUser(ctx, senderUserID)
		if err != nil {
			return err
		}
		if _, err := q.GetWallet(ctx, recipientNumber); err != nil {
			return err
		}
		if senderWallet.Number == recipientNumber {
			return models.ErrSelfTransfer
		}

		// ascending wallet-number order
		first, second := senderWallet.Number, recipientNumber
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*models.Wallet, 2)
		for _, number := range []string{first, second} {
			w, err := q.GetWalletForUpdate(ctx, number)
			if err != nil {
				return err
			}
			locked[number] = w
		}
		sender, recipient = locked[senderWallet.Number], locked[recipientNumber]

		if sender.Balance.LessThan(amount) {
			return models.ErrInsufficientBalance
		}
		if !sender.Active || !recipient.Active {
			return models.ErrWalletInactive
		}

		senderPrev, recipientPrev := sender.Balance, recipient.Balance
		if err := debitLocked(ctx, q, sender, amount); err != nil {
			return err
		}
		if err := creditLocked(ctx, q, recipient, amount); err != nil {
			return err
		}

		debit := &models.Transaction{
			ID:                    uuid.New(),
			Reference:             root + domain.TransferDebitSuffix,
			WalletNumber:          sender.Number,
			Type:                  domain.TxTypeTransfer,
			Status:                domain.TxStatusSuccess,
			Amount:                amount,
			RecipientWalletNumber: models.StringPtr(recipient.Number),
			Description:           "Transfer to " + recipient.Number,
			PreviousBalance:       models.DecimalPtr(senderPrev),
			NewBalance:            models.DecimalPtr(sender.Balance),
		}
		if err := q.AppendTransaction(ctx, debit); err != nil {
			return err
		}
		credit := &models.Transaction{
			ID:                 uuid.New(),
			Reference:          root + domain.TransferCreditSuffix,
			WalletNumber:       recipient.Number,
			Type:               domain.TxTypeTransfer,
			Status:             domain.TxStatusSuccess,
			Amount:             amount,
			SenderWalletNumber: models.StringPtr(sender.Number),
			Description:        "Transfer from " + sender.Number,
			PreviousBalance:    models.DecimalPtr(recipientPrev),
			NewBalance:         models.DecimalPtr(recipient.Balance),
		}
		if err := q.AppendTransaction(ctx, credit); err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]string{
			"reference": root,
			"from":      sender.Number,
			"to":        recipient.Number,
			"amount":    domain.FormatAmount(amount),
		})
		return s.audit.Write(ctx, q, "transaction", debit.ID, &senderUserID, "transfer", "", domain.TxStatusSuccess, metadata)
	})
	observability.IncrementLedgerOperation("transfer", outcome(err))
	if err != nil {
		return nil, err
	}

	zap.L().Info("transfer completed",
		zap.String("reference", root),
		zap.String("from_wallet", sender.Number),
		zap.String("to_wallet", recipient.Number),
		zap.String("amount", domain.FormatAmount(amount)),
	)
	return &TransferResult{
		Reference: root,
		Status:    strings.ToLower(domain.TxStatusSuccess),
		Message:   "Transfer completed",
	}, nil
}

// SettleDeposit credits the deposit identified by its provider reference.
// Settling an already successful deposit is a no-op and returns nil.
func (s *LedgerService) SettleDeposit(ctx context.Context, externalReference string, amount decimal.Decimal) error {
	_, err := s.settle(ctx, externalReference, amount)
	return err
}

// settle reports whether this call performed the transition.
func (s *LedgerService) settle(ctx context.Context, externalReference string, amount decimal.Decimal) (bool, error) {
	var (
		settled   bool
		requested decimal.Decimal
		txn       *models.Transaction
	)
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		// transaction row first, then wallet row
		t, err := q.GetTransactionByExternalReferenceForUpdate(ctx, externalReference)
		if err != nil {
			return err
		}
		if t.Status == domain.TxStatusSuccess {
			return nil
		}
		if t.Type != domain.TxTypeDeposit {
			return fmt.Errorf("%w: %s is not a deposit", models.ErrInvalidTransition, t.Reference)
		}
		// the amount only matters once a credit will actually happen
		amount, err = validAmount(amount)
		if err != nil {
			return err
		}

		wallet, err := q.GetWalletForUpdate(ctx, t.WalletNumber)
		if err != nil {
			return err
		}
		prev := wallet.Balance
		if err := creditLocked(ctx, q, wallet, amount); err != nil {
			return err
		}

		requested = t.Amount
		t.Amount = amount
		t.PreviousBalance = models.DecimalPtr(prev)
		t.NewBalance = models.DecimalPtr(wallet.Balance)
		metadata, _ := json.Marshal(map[string]string{
			"external_reference": externalReference,
			"requested_amount":   domain.FormatAmount(requested),
			"credited_amount":    domain.FormatAmount(amount),
		})
		if err := transitionTransaction(ctx, q, s.audit, t, domain.TxStatusSuccess, nil, "settle_deposit", metadata); err != nil {
			return err
		}
		settled = true
		txn = t
		return nil
	})
	observability.IncrementLedgerOperation("settle", outcome(err))
	if err != nil {
		return false, err
	}

	if !settled {
		zap.L().Info("deposit already settled", zap.String("external_reference", externalReference))
		return false, nil
	}
	if !requested.Equal(amount) {
		observability.IncrementAmountMismatch()
		zap.L().Warn("deposit settled with amount different from requested",
			zap.String("reference", txn.Reference),
			zap.String("requested", domain.FormatAmount(requested)),
			zap.String("credited", domain.FormatAmount(amount)),
		)
	}
	zap.L().Info("deposit settled",
		zap.String("reference", txn.Reference),
		zap.String("external_reference", externalReference),
		zap.String("wallet_number", txn.WalletNumber),
		zap.String("amount", domain.FormatAmount(amount)),
	)
	return true, nil
}

// expireDeposit marks a stale pending deposit FAILED. A deposit that settled
// in the meantime is left alone.
func (s *LedgerService) expireDeposit(ctx context.Context, externalReference, providerStatus string) (bool, error) {
	var expired bool
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		t, err := q.GetTransactionByExternalReferenceForUpdate(ctx, externalReference)
		if err != nil {
			return err
		}
		if t.Status != domain.TxStatusPending {
			return nil
		}
		metadata, _ := json.Marshal(map[string]string{"provider_status": providerStatus})
		if err := transitionTransaction(ctx, q, s.audit, t, domain.TxStatusFailed, nil, "expire_deposit", metadata); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

func (s *LedgerService) GetStatus(ctx context.Context, reference string) (*DepositStatus, error) {
	txn, err := s.store.Queries().GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return &DepositStatus{
		Reference: txn.Reference,
		Status:    strings.ToLower(txn.Status),
		Amount:    domain.FormatAmount(txn.Amount),
	}, nil
}

// GetTransaction returns the raw record; handlers use it for ownership checks.
func (s *LedgerService) GetTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	return s.store.Queries().GetTransactionByReference(ctx, reference)
}

func (s *LedgerService) History(ctx context.Context, userID uuid.UUID) ([]TransactionView, error) {
	q := s.store.Queries()
	wallet, err := q.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	txns, err := q.ListTransactionsByWallet(ctx, wallet.Number)
	if err != nil {
		return nil, err
	}

	views := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, TransactionView{
			Reference:             t.Reference,
			Type:                  strings.ToLower(t.Type),
			Amount:                domain.FormatAmount(t.Amount),
			Status:                strings.ToLower(t.Status),
			Description:           t.Description,
			RecipientWalletNumber: t.RecipientWalletNumber,
			SenderWalletNumber:    t.SenderWalletNumber,
			CreatedAt:             t.CreatedAt,
		})
	}
	return views, nil
}

func (s *LedgerService) Balance(ctx context.Context, userID uuid.UUID) (*BalanceView, error) {
	wallet, err := s.store.Queries().GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		WalletNumber: wallet.Number,
		Balance:      domain.FormatAmount(wallet.Balance),
	}, nil
}

// isBusinessError reports whether err is a terminal rule violation rather than an infrastructure fault.
func isBusinessError(err error) bool {
	for _, target := range []error{
		models.ErrInvalidAmount, models.ErrWalletInactive, models.ErrInsufficientBalance,
		models.ErrSelfTransfer, models.ErrWalletNotFound, models.ErrTransactionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
