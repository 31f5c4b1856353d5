package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet is keyed by its 13-digit number; a user owns exactly one.
type Wallet struct {
	Number    string          `json:"wallet_number"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Transaction struct {
	ID                    uuid.UUID        `json:"id"`
	Reference             string           `json:"reference"`
	ExternalReference     *string          `json:"external_reference,omitempty"`
	WalletNumber          string           `json:"wallet_number"`
	Type                  string           `json:"type"`
	Status                string           `json:"status"`
	Amount                decimal.Decimal  `json:"amount"`
	SenderWalletNumber    *string          `json:"sender_wallet_number,omitempty"`
	RecipientWalletNumber *string          `json:"recipient_wallet_number,omitempty"`
	Description           string           `json:"description"`
	AuthorizationURL      *string          `json:"authorization_url,omitempty"`
	PreviousBalance       *decimal.Decimal `json:"previous_balance,omitempty"`
	NewBalance            *decimal.Decimal `json:"new_balance,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// APIKey is a hashed, permission-scoped credential. The raw key is never stored.
type APIKey struct {
	ID          string     `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"`
	KeyPrefix   string     `json:"key_prefix"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Active      bool       `json:"is_active"`
	Revoked     bool       `json:"is_revoked"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (k *APIKey) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

func (k *APIKey) Valid(now time.Time) bool {
	return k.Active && !k.Revoked && !k.Expired(now)
}

func (k *APIKey) HasPermission(permission string) bool {
	return slices.Contains(k.Permissions, permission)
}

type AuditEntry struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  string
	NextState  string
	Metadata   []byte
	CreatedAt  time.Time
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// DecimalPtr returns a pointer to a copy of d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
