package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
)

// MockProvider simulates the payment provider in memory. Sessions stay
// pending until MarkPaid or MarkFailed is called.
type MockProvider struct {
	// FailureRate is the probability that Open or Verify fails (0.0 to 1.0).
	FailureRate float64
	// Delay is added to every call to simulate network latency.
	Delay time.Duration
	// BaseURL prefixes the fake authorization links.
	BaseURL string

	mu       sync.Mutex
	payments map[string]*Verification
	failNext bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		BaseURL:  "https://checkout.mock.local",
		payments: make(map[string]*Verification),
	}
}

// FailNext makes the next Open or Verify call return a provider error.
func (m *MockProvider) FailNext() {
	m.mu.Lock()
	m.failNext = true
	m.mu.Unlock()
}

// MarkPaid records a successful payment of amountMinor for ref.
func (m *MockProvider) MarkPaid(ref string, amountMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.payments[ref] = &Verification{Reference: ref, Status: domain.ProviderStatusSuccess, AmountMinor: amountMinor, PaidAt: &now}
}

// MarkFailed records a final non-success provider status for ref.
func (m *MockProvider) MarkFailed(ref, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.payments[ref]
	if !ok {
		v = &Verification{Reference: ref}
		m.payments[ref] = v
	}
	v.Status = status
}

func (m *MockProvider) wait(ctx context.Context) error {
	m.mu.Lock()
	fail := m.failNext || (m.FailureRate > 0 && rand.Float64() < m.FailureRate)
	m.failNext = false
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: provider call canceled: %v", models.ErrProvider, ctx.Err())
		}
	}
	if fail {
		return fmt.Errorf("%w: provider temporarily unavailable", models.ErrProvider)
	}
	return nil
}

func (m *MockProvider) Open(ctx context.Context, email string, amountMinor int64, reference string) (*Session, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[reference]; !ok {
		m.payments[reference] = &Verification{Reference: reference, Status: "pending", AmountMinor: amountMinor}
	}
	return &Session{
		ExternalReference: reference,
		AuthorizationURL:  fmt.Sprintf("%s/%s", m.BaseURL, reference),
		AccessCode:        fmt.Sprintf("ac_%05d", rand.Intn(100000)),
	}, nil
}

func (m *MockProvider) Verify(ctx context.Context, externalReference string) (*Verification, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.payments[externalReference]
	if !ok {
		return nil, fmt.Errorf("%w: unknown reference %s", models.ErrProvider, externalReference)
	}
	out := *v
	return &out, nil
}
