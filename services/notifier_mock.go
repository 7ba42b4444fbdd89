package services

import (
	"context"
	"sync"
)

// MockNotifier records notices for assertions in tests.
type MockNotifier struct {
	mu            sync.Mutex
	StatusNotices []StatusNotice
	Codes         []MockDeliveryCode
	FailWith      error
	PlaintextMode bool
}

// MockDeliveryCode is one recorded SendDeliveryCode call.
type MockDeliveryCode struct {
	Recipient string
	Code      string
	OrderID   uint
}

// NewMockNotifier creates a recording notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) SendStatusNotice(ctx context.Context, notice StatusNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.StatusNotices = append(m.StatusNotices, notice)
	return nil
}

func (m *MockNotifier) SendDeliveryCode(ctx context.Context, recipient, code string, orderID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Codes = append(m.Codes, MockDeliveryCode{Recipient: recipient, Code: code, OrderID: orderID})
	return nil
}

func (m *MockNotifier) Plaintext() bool {
	return m.PlaintextMode
}

// SentStatusCount returns how many status notices were recorded.
func (m *MockNotifier) SentStatusCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StatusNotices)
}

// LastCode returns the most recently recorded delivery code, if any.
func (m *MockNotifier) LastCode() (MockDeliveryCode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Codes) == 0 {
		return MockDeliveryCode{}, false
	}
	return m.Codes[len(m.Codes)-1], true
}
