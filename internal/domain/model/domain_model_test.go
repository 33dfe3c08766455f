//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"oasis-billing/internal/domain"
)

// --- SubscriptionPlan Model Tests ---

func TestNewSubscriptionPlan(t *testing.T) {
	t.Run("should create a new plan successfully", func(t *testing.T) {
		plan, err := NewSubscriptionPlan("Professional", "Professional Plan", 30, 299000, "idr")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if plan.ID != "professional" {
			t.Errorf("expected id to be lowercased, got %q", plan.ID)
		}
		if plan.Currency != "IDR" {
			t.Errorf("expected currency IDR, got %q", plan.Currency)
		}
		if plan.Period() != 30*24*time.Hour {
			t.Errorf("unexpected period %s", plan.Period())
		}
	})

	t.Run("should fail with invalid price", func(t *testing.T) {
		_, err := NewSubscriptionPlan("starter", "Starter", 30, 0, "IDR")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

// --- UserSubscription Model Tests ---

func TestUserSubscription_Extend(t *testing.T) {
	plan := &SubscriptionPlan{ID: PlanProfessional, DurationDays: 30}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("stacks on a running subscription", func(t *testing.T) {
		sub, err := NewUserSubscription("sub-1", "user-1", plan, now)
		if err != nil {
			t.Fatalf("NewUserSubscription: %v", err)
		}
		later := now.Add(10 * 24 * time.Hour)
		if err := sub.Extend(plan, later); err != nil {
			t.Fatalf("Extend: %v", err)
		}
		want := now.Add(60 * 24 * time.Hour)
		if !sub.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %s, got %s", want, sub.ExpiresAt)
		}
	})

	t.Run("restarts a lapsed subscription from now", func(t *testing.T) {
		sub, _ := NewUserSubscription("sub-1", "user-1", plan, now)
		later := now.Add(90 * 24 * time.Hour)
		_ = sub.Extend(plan, later)
		want := later.Add(30 * 24 * time.Hour)
		if !sub.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %s, got %s", want, sub.ExpiresAt)
		}
		if !sub.StartAt.Equal(later) {
			t.Errorf("expected restart at %s, got %s", later, sub.StartAt)
		}
	})
}

// --- Transaction transition table ---

func TestDecide(t *testing.T) {
	cases := []struct {
		name    string
		current TransactionStatus
		event   PaymentStatus
		to      TransactionStatus
		effect  Effect
		verdict Verdict
	}{
		{"pending+success activates", TransactionStatusPending, PaymentStatusSuccess, TransactionStatusActive, EffectActivate, VerdictTransition},
		{"pending+pending records", TransactionStatusPending, PaymentStatusPending, TransactionStatusPending, EffectNone, VerdictRecord},
		{"pending+expired", TransactionStatusPending, PaymentStatusExpired, TransactionStatusExpired, EffectNone, VerdictTransition},
		{"pending+cancelled", TransactionStatusPending, PaymentStatusCancelled, TransactionStatusCancelled, EffectNone, VerdictTransition},
		{"pending+unknown", TransactionStatusPending, PaymentStatusUnknown, TransactionStatusPending, EffectNone, VerdictUnknownStatus},
		{"active+success is a duplicate", TransactionStatusActive, PaymentStatusSuccess, TransactionStatusActive, EffectNone, VerdictNoop},
		{"active+expired is sticky", TransactionStatusActive, PaymentStatusExpired, TransactionStatusActive, EffectNone, VerdictNoop},
		{"active+cancelled is sticky", TransactionStatusActive, PaymentStatusCancelled, TransactionStatusActive, EffectNone, VerdictNoop},
		{"active+pending is stale", TransactionStatusActive, PaymentStatusPending, TransactionStatusActive, EffectNone, VerdictNoop},
		{"expired+success conflicts", TransactionStatusExpired, PaymentStatusSuccess, TransactionStatusExpired, EffectNone, VerdictConflict},
		{"cancelled+success conflicts", TransactionStatusCancelled, PaymentStatusSuccess, TransactionStatusCancelled, EffectNone, VerdictConflict},
		{"expired+cancelled noop", TransactionStatusExpired, PaymentStatusCancelled, TransactionStatusExpired, EffectNone, VerdictNoop},
		{"cancelled+expired noop", TransactionStatusCancelled, PaymentStatusExpired, TransactionStatusCancelled, EffectNone, VerdictNoop},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.current, tc.event)
			if d.To != tc.to || d.Effect != tc.effect || d.Verdict != tc.verdict {
				t.Fatalf("Decide(%s,%s) = %+v; want to=%s effect=%s verdict=%s", tc.current, tc.event, d, tc.to, tc.effect, tc.verdict)
			}
			if d.From != tc.current {
				t.Errorf("expected From=%s, got %s", tc.current, d.From)
			}
		})
	}
}

func TestDecide_ReviewFlags(t *testing.T) {
	if !Decide(TransactionStatusExpired, PaymentStatusSuccess).NeedsReview() {
		t.Error("late success on expired order must be reviewed")
	}
	if Decide(TransactionStatusActive, PaymentStatusExpired).NeedsReview() {
		t.Error("out-of-order expiry on active order is a plain noop")
	}
	if !Decide(TransactionStatusPending, PaymentStatus("weird")).NeedsReview() {
		t.Error("unmapped status must be reviewed")
	}
}

func TestNewPendingTransaction(t *testing.T) {
	now := time.Now()
	tx, err := NewPendingTransaction("OASIS-STARTER-1-AAAAAA", "user-1", "starter", 99000, "IDR", GatewayXendit, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Status != TransactionStatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	if _, err := NewPendingTransaction("", "user-1", "starter", 99000, "IDR", GatewayXendit, now); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty order id, got %v", err)
	}
}

func TestPaymentEvent_IdempotencyKey(t *testing.T) {
	a := PaymentEvent{MerchantOrderID: "oasis-pro-1-ab"}
	b := PaymentEvent{MerchantOrderID: "OASIS-PRO-1-AB"}
	if a.IdempotencyKey() != b.IdempotencyKey() {
		t.Errorf("idempotency key must not depend on case: %q vs %q", a.IdempotencyKey(), b.IdempotencyKey())
	}
}
