package gateway

import (
	"context"
	"time"
)

// Provider is the external payment provider. Amounts cross this boundary in
// minor units (kobo, cents). Every error returned wraps models.ErrProvider.
type Provider interface {
	// Open starts a hosted payment session for reference.
	Open(ctx context.Context, email string, amountMinor int64, reference string) (*Session, error)
	// Verify fetches the provider's view of a payment.
	Verify(ctx context.Context, externalReference string) (*Verification, error)
}

type Session struct {
	ExternalReference string
	AuthorizationURL  string
	AccessCode        string
}

type Verification struct {
	Reference   string
	Status      string
	AmountMinor int64
	PaidAt      *time.Time
}
