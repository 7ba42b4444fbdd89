package services

import (
	"context"
	"fmt"
	"sync"
)

// MockCheckout records checkout sessions for assertions in tests.
type MockCheckout struct {
	mu       sync.Mutex
	Sessions []CheckoutInput
	FailWith error
}

// NewMockCheckout creates a recording checkout service.
func NewMockCheckout() *MockCheckout {
	return &MockCheckout{}
}

func (m *MockCheckout) CreateSession(ctx context.Context, input CheckoutInput) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.Sessions = append(m.Sessions, input)
	return &CheckoutSession{
		ID:  fmt.Sprintf("cs_test_%d", len(m.Sessions)),
		URL: fmt.Sprintf("https://checkout.stripe.test/pay/cs_test_%d", len(m.Sessions)),
	}, nil
}

// SessionCount returns how many sessions were recorded.
func (m *MockCheckout) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}
