//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/domain/ports/repository"
	ucport "oasis-billing/internal/domain/ports/usecase"
	"oasis-billing/internal/infra/db/memory"
	"oasis-billing/internal/infra/payment"
	"oasis-billing/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock Alerter ----

type MockAlerter struct {
	mu     sync.Mutex
	Alerts []adapter.ReviewAlert
}

func (m *MockAlerter) Alert(ctx context.Context, a adapter.ReviewAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, a)
	return nil
}

func (m *MockAlerter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// ---- Mock Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	Busy  bool
	Calls int
}

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	if l.Busy {
		return "", domain.ErrLockBusy
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockBusy
	}
	l.held[key] = "tok"
	return "tok", nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// ---- Mock PaymentGateway ----

type MockGateway struct {
	CreateVirtualAccountFunc func(ctx context.Context, req adapter.VirtualAccountRequest) (*adapter.VirtualAccount, error)
	CreateEWalletChargeFunc  func(ctx context.Context, req adapter.EWalletChargeRequest) (*adapter.EWalletCharge, error)
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateVirtualAccount(ctx context.Context, req adapter.VirtualAccountRequest) (*adapter.VirtualAccount, error) {
	if m.CreateVirtualAccountFunc != nil {
		return m.CreateVirtualAccountFunc(ctx, req)
	}
	return &adapter.VirtualAccount{ID: "va-" + req.ExternalID, AccountNumber: "88081234", BankCode: req.BankCode, ExpectedAmount: req.ExpectedAmount}, nil
}

func (m *MockGateway) CreateEWalletCharge(ctx context.Context, req adapter.EWalletChargeRequest) (*adapter.EWalletCharge, error) {
	if m.CreateEWalletChargeFunc != nil {
		return m.CreateEWalletChargeFunc(ctx, req)
	}
	return &adapter.EWalletCharge{ID: "ewc-" + req.ReferenceID, Status: "PENDING", Amount: req.Amount, CheckoutURL: "https://checkout.example/x"}, nil
}

// ---- Activator wrappers ----

// flakyActivator fails the first `failures` calls, then delegates.
type flakyActivator struct {
	mu       sync.Mutex
	inner    *usecase.SubscriptionUseCase
	failures int
	calls    int
}

func (f *flakyActivator) ActivateOrExtend(ctx context.Context, tx repository.Tx, userID, planID, key string) (*model.ActivationResult, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errors.New("subscription store unavailable")
	}
	return f.inner.ActivateOrExtend(ctx, tx, userID, planID, key)
}

// blockingActivator waits for the context, simulating a hung collaborator.
type blockingActivator struct{}

func (blockingActivator) ActivateOrExtend(ctx context.Context, tx repository.Tx, userID, planID, key string) (*model.ActivationResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// ---- fixture ----

type fixture struct {
	store     *memory.Store
	subs      *usecase.SubscriptionUseCase
	callbacks usecase.CallbackUseCase
	alerter   *MockAlerter
	refs      *payment.OrderRefResolver
}

type fixtureConfig struct {
	wrap    func(*usecase.SubscriptionUseCase) ucport.SubscriptionActivator
	locker  adapter.Locker
	timeout time.Duration
}

type fixtureOpt func(*fixtureConfig)

func withActivator(wrap func(*usecase.SubscriptionUseCase) ucport.SubscriptionActivator) fixtureOpt {
	return func(c *fixtureConfig) { c.wrap = wrap }
}

func withLocker(l adapter.Locker) fixtureOpt { return func(c *fixtureConfig) { c.locker = l } }

func withTimeout(d time.Duration) fixtureOpt { return func(c *fixtureConfig) { c.timeout = d } }

func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	cfg := fixtureConfig{timeout: 5 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	store := memory.NewStore()
	if _, err := usecase.NewPlanUseCase(store.Plans()).EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("seed plans: %v", err)
	}

	logger := newTestLogger()
	subs := usecase.NewSubscriptionUseCase(store.Plans(), store.Subscriptions(), store.Activations(), logger)
	refs := payment.NewOrderRefResolver("OASIS", model.PlanStarter)
	alerter := &MockAlerter{}

	var activator ucport.SubscriptionActivator = subs
	if cfg.wrap != nil {
		activator = cfg.wrap(subs)
	}

	cb := usecase.NewCallbackUseCase(
		store, store.Transactions(), store.CallbackEvents(),
		activator, refs, payment.Normalize, cfg.locker, alerter,
		usecase.CallbackOptions{StoreTimeout: cfg.timeout, Currency: "IDR"},
		logger,
	)
	return &fixture{store: store, subs: subs, callbacks: cb, alerter: alerter, refs: refs}
}

// pending creates a pending transaction for planID and returns its order id.
func (f *fixture) pending(t *testing.T, userID, planID string, gw model.Gateway) *model.Transaction {
	t.Helper()
	plan, err := f.store.Plans().FindByID(context.Background(), repository.NoTX, planID)
	if err != nil {
		t.Fatalf("plan %s: %v", planID, err)
	}
	now := time.Now()
	tr, err := model.NewPendingTransaction(f.refs.NewMerchantOrderID(planID, now), userID, planID, plan.Price, plan.Currency, gw, now)
	if err != nil {
		t.Fatalf("NewPendingTransaction: %v", err)
	}
	if err := f.store.Transactions().CreatePending(context.Background(), repository.NoTX, tr); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	return tr
}

func (f *fixture) status(t *testing.T, orderID string) model.TransactionStatus {
	t.Helper()
	tr, err := f.store.Transactions().FindByMerchantOrderID(context.Background(), repository.NoTX, orderID)
	if err != nil {
		t.Fatalf("FindByMerchantOrderID: %v", err)
	}
	return tr.Status
}

func event(tr *model.Transaction, status model.PaymentStatus, amount int64) model.PaymentEvent {
	return model.PaymentEvent{
		Gateway:           tr.Gateway,
		Format:            model.FormatXenditEWallet,
		ExternalReference: "ewc_" + tr.MerchantOrderID,
		MerchantOrderID:   tr.MerchantOrderID,
		Amount:            amount,
		RawStatusCode:     string(status),
		Status:            status,
		ReceivedAt:        time.Now(),
	}
}
