package model

import (
	"time"

	"oasis-billing/internal/domain"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusActive    TransactionStatus = "active"
	TransactionStatusExpired   TransactionStatus = "expired"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further callback may move the transaction.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusActive, TransactionStatusExpired, TransactionStatusCancelled:
		return true
	}
	return false
}

// Transaction is one checkout attempt. It is created pending at checkout and
// afterwards only moved by verified payment events. Rows are never deleted.
type Transaction struct {
	MerchantOrderID  string
	UserID           string
	PlanID           string
	Amount           int64
	Currency         string
	Gateway          Gateway
	Status           TransactionStatus
	GatewayReference *string // last seen external reference
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPendingTransaction validates and constructs the checkout-time record.
func NewPendingTransaction(merchantOrderID, userID, planID string, amount int64, currency string, gw Gateway, now time.Time) (*Transaction, error) {
	if merchantOrderID == "" || userID == "" || planID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Transaction{
		MerchantOrderID: merchantOrderID,
		UserID:          userID,
		PlanID:          planID,
		Amount:          amount,
		Currency:        currency,
		Gateway:         gw,
		Status:          TransactionStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Effect is a side effect that must commit together with a status change.
type Effect string

const (
	EffectNone     Effect = "none"
	EffectActivate Effect = "activate" // activate or extend the subscription by one period
)

// Verdict classifies what a payment event means for a transaction.
type Verdict string

const (
	VerdictTransition    Verdict = "transition"     // status changes
	VerdictRecord        Verdict = "record"         // still pending, reference recorded
	VerdictNoop          Verdict = "noop"           // duplicate or stale delivery
	VerdictUnknownStatus Verdict = "unknown_status" // unmapped gateway status, never guessed
	VerdictConflict      Verdict = "conflict"       // success on an expired/cancelled order
)

// Decision is the outcome of the transition function.
type Decision struct {
	From    TransactionStatus
	To      TransactionStatus
	Effect  Effect
	Verdict Verdict
}

// Changed reports whether the decision moves the status.
func (d Decision) Changed() bool { return d.Verdict == VerdictTransition }

// NeedsReview reports whether a human should look at the event.
func (d Decision) NeedsReview() bool {
	return d.Verdict == VerdictConflict || d.Verdict == VerdictUnknownStatus
}

var targetStatus = map[PaymentStatus]TransactionStatus{
	PaymentStatusSuccess:   TransactionStatusActive,
	PaymentStatusPending:   TransactionStatusPending,
	PaymentStatusExpired:   TransactionStatusExpired,
	PaymentStatusCancelled: TransactionStatusCancelled,
}

// Decide is the transition table.
//
//	current \ event   success            pending  expired   cancelled  unknown
//	pending           active + activate  record   expired   cancelled  unknown_status
//	active            noop               noop     noop      noop       unknown_status
//	expired           conflict           noop     noop      noop       unknown_status
//	cancelled         conflict           noop     noop      noop       unknown_status
//
// Active is sticky: once the activation effect fired nothing moves it back.
func Decide(current TransactionStatus, status PaymentStatus) Decision {
	d := Decision{From: current, To: current, Effect: EffectNone}

	target, ok := targetStatus[status]
	if !ok {
		d.Verdict = VerdictUnknownStatus
		return d
	}

	switch current {
	case TransactionStatusPending:
		if target == TransactionStatusPending {
			d.Verdict = VerdictRecord
			return d
		}
		d.To = target
		d.Verdict = VerdictTransition
		if target == TransactionStatusActive {
			d.Effect = EffectActivate
		}
	case TransactionStatusExpired, TransactionStatusCancelled:
		if target == TransactionStatusActive {
			d.Verdict = VerdictConflict
			return d
		}
		d.Verdict = VerdictNoop
	case TransactionStatusActive:
		d.Verdict = VerdictNoop
	default:
		d.Verdict = VerdictConflict
	}
	return d
}

// Apply runs the transition table for ev against the transaction's status.
func (t *Transaction) Apply(ev PaymentEvent) Decision {
	return Decide(t.Status, ev.Status)
}
