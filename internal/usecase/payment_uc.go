// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oasis-billing/internal/domain"
	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/adapter"
	"oasis-billing/internal/domain/ports/repository"
	"oasis-billing/internal/infra/metrics"
)

const (
	MethodVirtualAccount = "virtual_account"
	MethodEWallet        = "ewallet"
)

var (
	validBankCodes    = map[string]bool{"BCA": true, "MANDIRI": true, "BNI": true, "BRI": true, "PERMATA": true}
	validEWalletCodes = map[string]bool{"OVO": true, "DANA": true, "LINKAJA": true}
)

// OrderRefs generates and parses merchant order ids.
type OrderRefs interface {
	ResolvePlan(merchantOrderID string) (plan string, ok bool)
	NewMerchantOrderID(plan string, now time.Time) string
}

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type CheckoutRequest struct {
	UserID      string
	PlanID      string
	Method      string // virtual_account | ewallet
	BankCode    string
	ChannelCode string
	Name        string
	Phone       string
}

type CheckoutResult struct {
	Transaction    *model.Transaction
	VirtualAccount *adapter.VirtualAccount
	EWallet        *adapter.EWalletCharge
}

type PaymentUseCase interface {
	// Checkout records a pending transaction and asks the gateway for a
	// payment intent for it.
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	// Transaction returns the stored transaction for a merchant order id.
	Transaction(ctx context.Context, merchantOrderID string) (*model.Transaction, error)
}

type paymentUC struct {
	txs      repository.TransactionRepository
	plans    repository.SubscriptionPlanRepository
	gateway  adapter.PaymentGateway
	refs     OrderRefs
	timeout  time.Duration
	vaExpiry time.Duration
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	txs repository.TransactionRepository,
	plans repository.SubscriptionPlanRepository,
	gateway adapter.PaymentGateway,
	refs OrderRefs,
	timeout time.Duration,
	logger *zerolog.Logger,
) *paymentUC {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &paymentUC{
		txs:      txs,
		plans:    plans,
		gateway:  gateway,
		refs:     refs,
		timeout:  timeout,
		vaExpiry: 24 * time.Hour,
		log:      logger,
	}
}

func (u *paymentUC) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if err := validateCheckout(&req); err != nil {
		metrics.IncCheckout(req.Method, "invalid")
		return nil, err
	}

	plan, err := u.plans.FindByID(ctx, repository.NoTX, strings.ToLower(req.PlanID))
	if err != nil {
		metrics.IncCheckout(req.Method, "invalid")
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidPlan
		}
		return nil, err
	}

	now := time.Now()
	orderID := u.refs.NewMerchantOrderID(plan.ID, now)
	t, err := model.NewPendingTransaction(orderID, req.UserID, plan.ID, plan.Price, plan.Currency, model.GatewayXendit, now)
	if err != nil {
		return nil, err
	}

	// The pending row must exist before the gateway can call back for it.
	if err := u.txs.CreatePending(ctx, repository.NoTX, t); err != nil {
		return nil, fmt.Errorf("create pending transaction: %w", err)
	}

	l := u.log.With().Str("merchant_order_id", orderID).Str("method", req.Method).Logger()

	gctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	res := &CheckoutResult{Transaction: t}
	var ref string
	var gerr error
	switch req.Method {
	case MethodVirtualAccount:
		va, e := u.gateway.CreateVirtualAccount(gctx, adapter.VirtualAccountRequest{
			ExternalID:     orderID,
			BankCode:       req.BankCode,
			Name:           req.Name,
			ExpectedAmount: plan.Price,
			ExpiresAt:      now.Add(u.vaExpiry),
		})
		gerr, res.VirtualAccount = e, va
		if va != nil {
			ref = va.ID
		}
	case MethodEWallet:
		ch, e := u.gateway.CreateEWalletCharge(gctx, adapter.EWalletChargeRequest{
			ReferenceID: orderID,
			Amount:      plan.Price,
			Currency:    plan.Currency,
			ChannelCode: req.ChannelCode,
			Phone:       req.Phone,
		})
		gerr, res.EWallet = e, ch
		if ch != nil {
			ref = ch.ID
		}
	}

	if gerr != nil {
		if !errors.Is(gerr, domain.ErrGatewayRejected) {
			// Timeouts and 5xx are ambiguous: the gateway may have created the
			// payment, so a real callback must still find a pending order.
			metrics.IncCheckout(req.Method, "gateway_error")
			l.Error().Err(gerr).Msg("gateway request failed, leaving transaction pending")
			return nil, fmt.Errorf("%w: %w", domain.ErrGatewayRequestFailed, gerr)
		}
		metrics.IncCheckout(req.Method, "gateway_rejected")
		l.Warn().Err(gerr).Msg("gateway rejected checkout, cancelling pending transaction")
		cctx, ccancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer ccancel()
		if _, cerr := u.txs.UpdateStatusIf(cctx, repository.NoTX, orderID, model.TransactionStatusPending, model.TransactionStatusCancelled, nil); cerr != nil {
			l.Error().Err(cerr).Msg("failed to cancel pending transaction")
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayRequestFailed, gerr)
	}

	if ref != "" {
		if err := u.txs.TouchReference(ctx, repository.NoTX, orderID, ref); err != nil {
			l.Warn().Err(err).Msg("failed to record gateway reference")
		} else {
			t.GatewayReference = &ref
		}
	}

	metrics.IncCheckout(req.Method, "created")
	l.Info().Str("user_id", req.UserID).Str("plan_id", plan.ID).Int64("amount", plan.Price).Msg("checkout created")
	return res, nil
}

func (u *paymentUC) Transaction(ctx context.Context, merchantOrderID string) (*model.Transaction, error) {
	return u.txs.FindByMerchantOrderID(ctx, repository.NoTX, merchantOrderID)
}

func validateCheckout(req *CheckoutRequest) error {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.PlanID) == "" {
		return fmt.Errorf("%w: user_id and plan_id are required", domain.ErrInvalidArgument)
	}
	switch req.Method {
	case MethodVirtualAccount:
		req.BankCode = strings.ToUpper(strings.TrimSpace(req.BankCode))
		if !validBankCodes[req.BankCode] {
			return fmt.Errorf("%w: unsupported bank code %q", domain.ErrInvalidArgument, req.BankCode)
		}
		if strings.TrimSpace(req.Name) == "" {
			return fmt.Errorf("%w: name is required for virtual accounts", domain.ErrInvalidArgument)
		}
	case MethodEWallet:
		req.ChannelCode = strings.ToUpper(strings.TrimSpace(req.ChannelCode))
		if !validEWalletCodes[req.ChannelCode] {
			return fmt.Errorf("%w: unsupported e-wallet %q", domain.ErrInvalidArgument, req.ChannelCode)
		}
		if strings.TrimSpace(req.Phone) == "" {
			return fmt.Errorf("%w: phone is required for e-wallet charges", domain.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidArgument, req.Method)
	}
	return nil
}
