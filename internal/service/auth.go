package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var ErrInvalidEmail = errors.New("a valid email is required")

type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// AuthService signs users in and provisions their wallet on first login.
type AuthService struct {
	store   QueryStore
	wallets *WalletService
	tokens  TokenConfig
	now     func() time.Time
}

func NewAuthService(store QueryStore, wallets *WalletService, tokens TokenConfig) *AuthService {
	if tokens.TTL <= 0 {
		tokens.TTL = 24 * time.Hour
	}
	return &AuthService{store: store, wallets: wallets, tokens: tokens, now: time.Now}
}

type LoginResult struct {
	Token        string      `json:"token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         models.User `json:"user"`
	WalletNumber string      `json:"wallet_number"`
}

func (s *AuthService) Login(ctx context.Context, email, name string) (*LoginResult, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidEmail
	}

	user, err := s.store.Queries().UpsertUserByEmail(ctx, &models.User{
		Email: strings.ToLower(addr.Address),
		Name:  strings.TrimSpace(name),
	})
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.EnsureWallet(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.IssueToken(user.ID.String(), domain.RoleUser)
	if err != nil {
		return nil, err
	}
	zap.L().Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("wallet_number", wallet.Number))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *user, WalletNumber: wallet.Number}, nil
}

// IssueToken signs an HS256 token carrying user_id and role.
func (s *AuthService) IssueToken(userID, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokens.TTL)
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Unix(),
		"exp":     expiresAt.Unix(),
	}
	if s.tokens.Issuer != "" {
		claims["iss"] = s.tokens.Issuer
	}
	if s.tokens.Audience != "" {
		claims["aud"] = s.tokens.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.tokens.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
