package payment

import (
	"context"
	"fmt"
	"sync"

	"oasis-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for -dev runs and tests.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]int64 // merchant order id -> expected amount
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		intents: make(map[string]int64),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-noop-%d", prefix, g.seq)
}

func (g *NoopPaymentGateway) CreateVirtualAccount(ctx context.Context, req adapter.VirtualAccountRequest) (*adapter.VirtualAccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[req.ExternalID] = req.ExpectedAmount
	return &adapter.VirtualAccount{
		ID:             g.next("va"),
		AccountNumber:  fmt.Sprintf("8808%08d", g.seq),
		BankCode:       req.BankCode,
		ExpectedAmount: req.ExpectedAmount,
		ExpiresAt:      req.ExpiresAt,
	}, nil
}

func (g *NoopPaymentGateway) CreateEWalletCharge(ctx context.Context, req adapter.EWalletChargeRequest) (*adapter.EWalletCharge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[req.ReferenceID] = req.Amount
	id := g.next("ewc")
	return &adapter.EWalletCharge{
		ID:          id,
		Status:      "PENDING",
		Amount:      req.Amount,
		CheckoutURL: "https://example.test/pay/" + id,
	}, nil
}

// Expected reports the amount a checkout asked for.
func (g *NoopPaymentGateway) Expected(merchantOrderID string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.intents[merchantOrderID]
	return v, ok
}
