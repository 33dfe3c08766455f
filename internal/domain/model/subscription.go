package model

import (
	"time"

	"oasis-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusFinished  SubscriptionStatus = "finished"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// UserSubscription is the entitlement a user (and their team) gets once a
// transaction is paid.
type UserSubscription struct {
	ID        string // UUID
	UserID    string
	PlanID    string
	CreatedAt time.Time
	StartAt   time.Time
	ExpiresAt time.Time
	Status    SubscriptionStatus
	UpdatedAt time.Time
}

// NewUserSubscription starts a subscription now for one billing period of plan.
func NewUserSubscription(id, userID string, plan *SubscriptionPlan, now time.Time) (*UserSubscription, error) {
	if id == "" || userID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	return &UserSubscription{
		ID:        id,
		UserID:    userID,
		PlanID:    plan.ID,
		CreatedAt: now,
		StartAt:   now,
		ExpiresAt: now.Add(plan.Period()),
		Status:    SubscriptionStatusActive,
		UpdatedAt: now,
	}, nil
}

// Extend adds one billing period of plan. An already lapsed subscription
// restarts from now instead of stacking on the old expiry.
func (s *UserSubscription) Extend(plan *SubscriptionPlan, now time.Time) error {
	if plan.IsZero() {
		return domain.ErrInvalidArgument
	}
	base := s.ExpiresAt
	if now.After(base) {
		base = now
		s.StartAt = now
	}
	s.ExpiresAt = base.Add(plan.Period())
	s.PlanID = plan.ID
	s.Status = SubscriptionStatusActive
	s.UpdatedAt = now
	return nil
}

// Period is the length of one billing period.
func (p *SubscriptionPlan) Period() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// ActivationRecord marks that the activation effect for one idempotency key
// (the merchant order id) has been applied.
type ActivationRecord struct {
	IdempotencyKey string
	UserID         string
	PlanID         string
	SubscriptionID string
	CreatedAt      time.Time
}

// ActivationResult is what the subscription activator reports back.
type ActivationResult struct {
	SubscriptionID string
	ExpiresAt      time.Time
	// Applied is false when the idempotency key had already been consumed.
	Applied bool
}
