package model

import (
	"strings"
	"time"
)

// Gateway identifies the payment provider that sent a callback.
type Gateway string

const (
	GatewayFaspay Gateway = "faspay"
	GatewayXendit Gateway = "xendit"
)

// Format is the sub-protocol a gateway used for one notification.
type Format string

const (
	FormatFaspayLegacy  Format = "legacy"          // Faspay Debit API JSON, signature in body
	FormatFaspaySNAP    Format = "snap"            // Faspay SNAP notification, X-Signature header
	FormatXenditVA      Format = "virtual_account" // Xendit callback virtual account
	FormatXenditEWallet Format = "ewallet"         // Xendit e-wallet charge
	FormatUnknown       Format = "unknown"
)

// PaymentStatus is the gateway-agnostic meaning of a raw status token.
type PaymentStatus string

const (
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusUnknown   PaymentStatus = "unknown"
)

// PaymentEvent is the canonical form of one verified gateway notification.
// MerchantOrderID is the join key; ExternalReference is for audit only.
type PaymentEvent struct {
	Gateway           Gateway
	Format            Format
	ExternalReference string
	MerchantOrderID   string
	Amount            int64 // whole currency units
	RawStatusCode     string
	Status            PaymentStatus
	ReceivedAt        time.Time
}

// IdempotencyKey keys the activation effect. One checkout attempt can
// activate at most once no matter how many callbacks arrive for it.
func (e PaymentEvent) IdempotencyKey() string {
	return "activation:" + strings.ToUpper(e.MerchantOrderID)
}
