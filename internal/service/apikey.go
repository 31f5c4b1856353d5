package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	MaxActiveAPIKeys = 5
	apiKeyPrefix     = "sk_live_"

	// keyPrefixLength characters after apiKeyPrefix are stored to tell keys apart
	keyPrefixLength = 8
)

var (
	ErrInvalidPermission = errors.New("invalid permission")
	ErrInvalidExpiry     = errors.New("expiry must be one of 1H, 1D, 1M, 1Y")
	ErrAPIKeyLimit       = fmt.Errorf("maximum of %d active API keys allowed", MaxActiveAPIKeys)
	ErrAPIKeyNotExpired  = errors.New("API key is not expired yet")
	ErrAPIKeyInvalid     = errors.New("API key is invalid, expired or revoked")
)

// APIKeyService issues and validates hashed, permission-scoped API keys.
type APIKeyService struct {
	store QueryStore
	now   func() time.Time
}

func NewAPIKeyService(store QueryStore) *APIKeyService {
	return &APIKeyService{store: store, now: time.Now}
}

// IssuedAPIKey carries the raw key. It is returned once, at creation.
type IssuedAPIKey struct {
	ID          string    `json:"id"`
	APIKey      string    `json:"api_key"`
	Name        string    `json:"name"`
	KeyPrefix   string    `json:"key_prefix"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExpiryFrom resolves a 1H/1D/1M/1Y code relative to now.
func ExpiryFrom(code string, now time.Time) (time.Time, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "1H":
		return now.Add(time.Hour), nil
	case "1D":
		return now.AddDate(0, 0, 1), nil
	case "1M":
		return now.AddDate(0, 1, 0), nil
	case "1Y":
		return now.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, ErrInvalidExpiry
	}
}

func normalizePermissions(perms []string) ([]string, error) {
	if len(perms) == 0 {
		return nil, fmt.Errorf("%w: at least one permission is required", ErrInvalidPermission)
	}
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if !slices.Contains(domain.Permissions, p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPermission, p)
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// HashAPIKey returns the hex SHA-256 of a raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// displayPrefix returns the first random characters of a raw key.
func displayPrefix(raw string) string {
	return raw[len(apiKeyPrefix) : len(apiKeyPrefix)+keyPrefixLength]
}

func (s *APIKeyService) Create(ctx context.Context, userID uuid.UUID, name string, permissions []string, expiry string) (*IssuedAPIKey, error) {
	perms, err := normalizePermissions(permissions)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiresAt, err := ExpiryFrom(expiry, now)
	if err != nil {
		return nil, err
	}

	var issued *IssuedAPIKey
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		active, err := q.CountActiveAPIKeys(ctx, userID, now)
		if err != nil {
			return err
		}
		if active >= MaxActiveAPIKeys {
			return ErrAPIKeyLimit
		}
		issued, err = s.insert(ctx, q, userID, strings.TrimSpace(name), perms, expiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("api key created", zap.String("user_id", userID.String()), zap.String("key_id", issued.ID))
	return issued, nil
}

// Rollover replaces an expired key with a fresh one carrying the same permissions.
func (s *APIKeyService) Rollover(ctx context.Context, userID uuid.UUID, expiredKeyID, expiry string) (*IssuedAPIKey, error) {
	now := s.now().UTC()
	expiresAt, err := ExpiryFrom(expiry, now)
	if err != nil {
		return nil, err
	}

	var issued *IssuedAPIKey
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		old, err := q.GetAPIKey(ctx, expiredKeyID)
		if err != nil {
			return err
		}
		if old.UserID != userID {
			return models.ErrAPIKeyNotFound
		}
		if !old.Expired(now) {
			return ErrAPIKeyNotExpired
		}
		active, err := q.CountActiveAPIKeys(ctx, userID, now)
		if err != nil {
			return err
		}
		if active >= MaxActiveAPIKeys {
			return ErrAPIKeyLimit
		}

		issued, err = s.insert(ctx, q, userID, old.Name+" (Rolled over)", old.Permissions, expiresAt)
		if err != nil {
			return err
		}
		old.Active = false
		return q.SaveAPIKey(ctx, old)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("api key rolled over", zap.String("user_id", userID.String()), zap.String("old_key_id", expiredKeyID), zap.String("key_id", issued.ID))
	return issued, nil
}

func (s *APIKeyService) insert(ctx context.Context, q repository.Querier, userID uuid.UUID, name string, perms []string, expiresAt time.Time) (*IssuedAPIKey, error) {
	raw, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	key := &models.APIKey{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Name:        name,
		KeyHash:     HashAPIKey(raw),
		KeyPrefix:   displayPrefix(raw),
		Permissions: perms,
		ExpiresAt:   expiresAt,
		Active:      true,
	}
	if err := q.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return &IssuedAPIKey{
		ID:          key.ID,
		APIKey:      raw,
		Name:        key.Name,
		KeyPrefix:   key.KeyPrefix,
		Permissions: key.Permissions,
		ExpiresAt:   key.ExpiresAt,
		CreatedAt:   key.CreatedAt,
	}, nil
}

func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.store.Queries().ListActiveAPIKeys(ctx, userID)
}

func (s *APIKeyService) Revoke(ctx context.Context, userID uuid.UUID, keyID string) error {
	return s.store.RunInTx(ctx, func(q repository.Querier) error {
		key, err := q.GetAPIKey(ctx, keyID)
		if err != nil {
			return err
		}
		if key.UserID != userID {
			return models.ErrAPIKeyNotFound
		}
		key.Revoked = true
		key.Active = false
		return q.SaveAPIKey(ctx, key)
	})
}

// Validate resolves a raw key and stamps its last use.
func (s *APIKeyService) Validate(ctx context.Context, raw string) (*models.APIKey, error) {
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		return nil, ErrAPIKeyInvalid
	}
	q := s.store.Queries()
	key, err := q.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if errors.Is(err, models.ErrAPIKeyNotFound) {
		return nil, ErrAPIKeyInvalid
	}
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !key.Valid(now) {
		return nil, ErrAPIKeyInvalid
	}

	key.LastUsedAt = &now
	if err := q.SaveAPIKey(ctx, key); err != nil {
		zap.L().Warn("stamp api key last use", zap.String("key_id", key.ID), zap.Error(err))
	}
	return key, nil
}
