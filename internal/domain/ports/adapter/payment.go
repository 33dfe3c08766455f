package adapter

import (
	"context"
	"time"
)

// VirtualAccountRequest asks the gateway for a closed, single-use VA.
type VirtualAccountRequest struct {
	ExternalID     string // merchant order id
	BankCode       string // BCA | MANDIRI | BNI | BRI | PERMATA
	Name           string
	ExpectedAmount int64
	ExpiresAt      time.Time
}

type VirtualAccount struct {
	ID             string
	AccountNumber  string
	BankCode       string
	ExpectedAmount int64
	ExpiresAt      time.Time
}

// EWalletChargeRequest asks the gateway for a one-time e-wallet charge.
type EWalletChargeRequest struct {
	ReferenceID string // merchant order id
	Amount      int64
	Currency    string
	ChannelCode string // OVO | DANA | LINKAJA
	Phone       string
}

type EWalletCharge struct {
	ID          string
	Status      string
	Amount      int64
	CheckoutURL string
}

// PaymentGateway is the hex port for creating payment intents at checkout.
type PaymentGateway interface {
	Name() string
	CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccount, error)
	CreateEWalletCharge(ctx context.Context, req EWalletChargeRequest) (*EWalletCharge, error)
}
