package model

import (
	"strings"
	"time"

	"oasis-billing/internal/domain"
)

const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// SubscriptionPlan represents a purchasable plan with a fixed billing period
// and a price in whole currency units.
type SubscriptionPlan struct {
	ID           string // slug, e.g. "professional"
	Name         string
	DurationDays int
	Price        int64
	Currency     string
	CreatedAt    time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, durationDays int, price int64, currency string) (*SubscriptionPlan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || name == "" || durationDays <= 0 || price <= 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ID:           id,
		Name:         name,
		DurationDays: durationDays,
		Price:        price,
		Currency:     strings.ToUpper(currency),
		CreatedAt:    time.Now(),
	}, nil
}

// DefaultPlans is the catalogue seeded into a fresh database.
func DefaultPlans() []*SubscriptionPlan {
	now := time.Now()
	return []*SubscriptionPlan{
		{ID: PlanStarter, Name: "Starter Plan", DurationDays: 30, Price: 99000, Currency: "IDR", CreatedAt: now},
		{ID: PlanProfessional, Name: "Professional Plan", DurationDays: 30, Price: 299000, Currency: "IDR", CreatedAt: now},
		{ID: PlanEnterprise, Name: "Enterprise Plan", DurationDays: 30, Price: 999000, Currency: "IDR", CreatedAt: now},
	}
}
