// internal/provider/mock.go
package provider

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hanbitmall/mall-backend/internal/models"
)

// MockGateway is the sandbox drop-in. It approves every confirm and cancel
// without network access and remembers the statuses it handed out so that
// Retrieve behaves like a real provider.
type MockGateway struct {
	mtx      sync.Mutex
	statuses map[string]models.PaymentStatus

	// FailNext, when set, makes the next call fail with the given error.
	// Used to exercise provider-failure paths.
	FailNext error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{statuses: make(map[string]models.PaymentStatus)}
}

func (g *MockGateway) Name() models.PaymentProvider {
	return models.PaymentProviderMock
}

func (g *MockGateway) Confirm(ctx context.Context, providerKey, orderNumber string, amount decimal.Decimal) (*Result, error) {
	if err := g.takeFailure(); err != nil {
		return nil, err
	}

	g.setStatus(providerKey, models.PaymentStatusPaid)
	return &Result{
		ProviderKey:    providerKey,
		Status:         models.PaymentStatusPaid,
		Method:         "card",
		ReceiptURL:     "https://sandbox.local/receipts/" + providerKey,
		TransactionKey: "mock_tx_" + providerKey,
		Raw: map[string]interface{}{
			"provider_key": providerKey,
			"order_number": orderNumber,
			"amount":       amount.String(),
			"status":       "DONE",
		},
	}, nil
}

func (g *MockGateway) Cancel(ctx context.Context, providerKey string, amount decimal.Decimal, reason string) (*Result, error) {
	if err := g.takeFailure(); err != nil {
		return nil, err
	}

	g.setStatus(providerKey, models.PaymentStatusCanceled)
	return &Result{
		ProviderKey:    providerKey,
		Status:         models.PaymentStatusCanceled,
		TransactionKey: "mock_cancel_" + providerKey,
		Raw: map[string]interface{}{
			"provider_key": providerKey,
			"amount":       amount.String(),
			"reason":       reason,
			"status":       "CANCELED",
		},
	}, nil
}

func (g *MockGateway) Retrieve(ctx context.Context, providerKey string) (*Result, error) {
	if err := g.takeFailure(); err != nil {
		return nil, err
	}

	g.mtx.Lock()
	status, ok := g.statuses[providerKey]
	g.mtx.Unlock()
	if !ok {
		status = models.PaymentStatusReady
	}

	return &Result{
		ProviderKey: providerKey,
		Status:      status,
		Raw:         map[string]interface{}{"provider_key": providerKey},
	}, nil
}

func (g *MockGateway) setStatus(key string, status models.PaymentStatus) {
	g.mtx.Lock()
	g.statuses[key] = status
	g.mtx.Unlock()
}

func (g *MockGateway) takeFailure() error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if g.FailNext != nil {
		err := g.FailNext
		g.FailNext = nil
		return err
	}
	return nil
}
