//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/domain/ports/repository"
	"oasis-billing/internal/infra/db/memory"
	"oasis-billing/internal/infra/payment"
	"oasis-billing/internal/usecase"
)

func newCheckout(t *testing.T, gw adapter.PaymentGateway) (usecase.PaymentUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	if _, err := usecase.NewPlanUseCase(store.Plans()).EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("seed plans: %v", err)
	}
	refs := payment.NewOrderRefResolver("OASIS", model.PlanStarter)
	return usecase.NewPaymentUseCase(store.Transactions(), store.Plans(), gw, refs, 0, newTestLogger()), store
}

func TestCheckout_VirtualAccount(t *testing.T) {
	// --- Arrange ---
	var seenPending bool
	var store *memory.Store
	gw := &MockGateway{}
	gw.CreateVirtualAccountFunc = func(ctx context.Context, req adapter.VirtualAccountRequest) (*adapter.VirtualAccount, error) {
		tr, err := store.Transactions().FindByMerchantOrderID(ctx, repository.NoTX, req.ExternalID)
		seenPending = err == nil && tr.Status == model.TransactionStatusPending
		return &adapter.VirtualAccount{ID: "va_1", AccountNumber: "8808999", BankCode: req.BankCode, ExpectedAmount: req.ExpectedAmount}, nil
	}
	uc, s := newCheckout(t, gw)
	store = s

	// --- Act ---
	res, err := uc.Checkout(context.Background(), usecase.CheckoutRequest{
		UserID: "user-1", PlanID: "Professional", Method: "virtual_account", BankCode: "bca", Name: "Budi",
	})

	// --- Assert ---
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !seenPending {
		t.Fatal("pending transaction must exist before the gateway call")
	}
	if !strings.HasPrefix(res.Transaction.MerchantOrderID, "OASIS-PROFESSIONAL-") {
		t.Fatalf("order id = %s", res.Transaction.MerchantOrderID)
	}
	if res.VirtualAccount == nil || res.VirtualAccount.BankCode != "BCA" || res.VirtualAccount.ExpectedAmount != 299000 {
		t.Fatalf("virtual account = %+v", res.VirtualAccount)
	}
	stored, err := uc.Transaction(context.Background(), res.Transaction.MerchantOrderID)
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if stored.GatewayReference == nil || *stored.GatewayReference != "va_1" {
		t.Fatalf("gateway reference = %v", stored.GatewayReference)
	}
	if stored.Gateway != model.GatewayXendit || stored.Amount != 299000 {
		t.Fatalf("stored transaction = %+v", stored)
	}
}

func TestCheckout_EWallet(t *testing.T) {
	uc, _ := newCheckout(t, &MockGateway{})

	res, err := uc.Checkout(context.Background(), usecase.CheckoutRequest{
		UserID: "user-1", PlanID: "starter", Method: "EWALLET", ChannelCode: "ovo", Phone: "+628123456789",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if res.EWallet == nil || res.EWallet.CheckoutURL == "" {
		t.Fatalf("ewallet = %+v", res.EWallet)
	}
	if res.EWallet.Amount != 99000 {
		t.Fatalf("amount = %d", res.EWallet.Amount)
	}
}

func TestCheckout_GatewayRejectionCancelsPending(t *testing.T) {
	var orderID string
	gw := &MockGateway{
		CreateEWalletChargeFunc: func(ctx context.Context, req adapter.EWalletChargeRequest) (*adapter.EWalletCharge, error) {
			orderID = req.ReferenceID
			return nil, fmt.Errorf("xendit: http 400: %w", domain.ErrGatewayRejected)
		},
	}
	uc, _ := newCheckout(t, gw)

	_, err := uc.Checkout(context.Background(), usecase.CheckoutRequest{
		UserID: "user-1", PlanID: "starter", Method: "ewallet", ChannelCode: "DANA", Phone: "0812",
	})
	if !errors.Is(err, domain.ErrGatewayRequestFailed) {
		t.Fatalf("err = %v, want ErrGatewayRequestFailed", err)
	}
	tr, err := uc.Transaction(context.Background(), orderID)
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if tr.Status != model.TransactionStatusCancelled {
		t.Fatalf("status = %s, want cancelled", tr.Status)
	}
}

func TestCheckout_AmbiguousGatewayFailureKeepsPending(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"server error", errors.New("xendit: http 503")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// --- Arrange ---
			var orderID string
			gw := &MockGateway{
				CreateVirtualAccountFunc: func(ctx context.Context, req adapter.VirtualAccountRequest) (*adapter.VirtualAccount, error) {
					orderID = req.ExternalID
					return nil, tt.err
				},
			}
			uc, _ := newCheckout(t, gw)

			// --- Act ---
			_, err := uc.Checkout(context.Background(), usecase.CheckoutRequest{
				UserID: "user-1", PlanID: "starter", Method: "virtual_account", BankCode: "BCA", Name: "Budi",
			})

			// --- Assert ---
			if !errors.Is(err, domain.ErrGatewayRequestFailed) {
				t.Fatalf("err = %v, want ErrGatewayRequestFailed", err)
			}
			tr, err := uc.Transaction(context.Background(), orderID)
			if err != nil {
				t.Fatalf("Transaction: %v", err)
			}
			if tr.Status != model.TransactionStatusPending {
				t.Fatalf("status = %s, want pending so a late callback can still settle it", tr.Status)
			}
		})
	}
}

func TestCheckout_Validation(t *testing.T) {
	uc, _ := newCheckout(t, &MockGateway{})

	cases := []struct {
		name string
		req  usecase.CheckoutRequest
		want error
	}{
		{"missing user", usecase.CheckoutRequest{PlanID: "starter", Method: "ewallet", ChannelCode: "OVO", Phone: "1"}, domain.ErrInvalidArgument},
		{"unknown method", usecase.CheckoutRequest{UserID: "u", PlanID: "starter", Method: "card"}, domain.ErrInvalidArgument},
		{"unknown bank", usecase.CheckoutRequest{UserID: "u", PlanID: "starter", Method: "virtual_account", BankCode: "XYZ", Name: "n"}, domain.ErrInvalidArgument},
		{"va without name", usecase.CheckoutRequest{UserID: "u", PlanID: "starter", Method: "virtual_account", BankCode: "BNI"}, domain.ErrInvalidArgument},
		{"unknown ewallet", usecase.CheckoutRequest{UserID: "u", PlanID: "starter", Method: "ewallet", ChannelCode: "GOPAY", Phone: "1"}, domain.ErrInvalidArgument},
		{"ewallet without phone", usecase.CheckoutRequest{UserID: "u", PlanID: "starter", Method: "ewallet", ChannelCode: "OVO"}, domain.ErrInvalidArgument},
		{"unknown plan", usecase.CheckoutRequest{UserID: "u", PlanID: "platinum", Method: "ewallet", ChannelCode: "OVO", Phone: "1"}, domain.ErrInvalidPlan},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Checkout(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}
