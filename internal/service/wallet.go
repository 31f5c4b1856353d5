package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultWalletNumberAttempts = 10

// NumberGenerator returns a candidate wallet number.
type NumberGenerator func() (string, error)

var walletNumberSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.WalletNumberLength), nil)

// RandomWalletNumber draws a zero-padded 13-digit number from crypto/rand.
func RandomWalletNumber() (string, error) {
	n, err := rand.Int(rand.Reader, walletNumberSpace)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", domain.WalletNumberLength, n.Int64()), nil
}

// WalletService provisions wallets.
type WalletService struct {
	store       QueryStore
	generate    NumberGenerator
	maxAttempts int
}

func NewWalletService(store QueryStore, maxAttempts int) *WalletService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultWalletNumberAttempts
	}
	return &WalletService{store: store, generate: RandomWalletNumber, maxAttempts: maxAttempts}
}

// WithGenerator swaps the number source.
func (s *WalletService) WithGenerator(gen NumberGenerator) *WalletService {
	s.generate = gen
	return s
}

// CreateWallet opens a zero-balance wallet for userID. Collisions, whether seen
// up front or lost in an insert race, consume an attempt.
func (s *WalletService) CreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	q := s.store.Queries()
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("%w: generate wallet number: %v", models.ErrStorage, err)
		}
		exists, err := q.WalletNumberExists(ctx, number)
		if err != nil {
			return nil, err
		}
		if exists {
			zap.L().Debug("wallet number collision", zap.Int("attempt", attempt))
			continue
		}

		wallet := &models.Wallet{Number: number, UserID: userID, Balance: decimal.Zero, Active: true}
		err = s.store.RunInTx(ctx, func(q repository.Querier) error {
			return q.CreateWallet(ctx, wallet)
		})
		if errors.Is(err, models.ErrDuplicateWalletNumber) {
			zap.L().Debug("wallet number taken during insert", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		zap.L().Info("wallet created", zap.String("wallet_number", number), zap.String("user_id", userID.String()))
		return wallet, nil
	}
	zap.L().Error("wallet number generation exhausted", zap.Int("attempts", s.maxAttempts))
	return nil, models.ErrWalletGenerationExhausted
}

// EnsureWallet returns the user's wallet, creating it on first call.
func (s *WalletService) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.store.Queries().GetWalletByUser(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, models.ErrWalletNotFound) {
		return nil, err
	}
	wallet, err = s.CreateWallet(ctx, userID)
	if errors.Is(err, models.ErrWalletExists) {
		// another login for the same user won the race
		return s.store.Queries().GetWalletByUser(ctx, userID)
	}
	return wallet, err
}

func (s *WalletService) GetWalletByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.store.Queries().GetWalletByUser(ctx, userID)
}
