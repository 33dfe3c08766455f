package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"oasis-billing/internal/domain/model"
	"oasis-billing/internal/domain/ports/repository"
	"oasis-billing/internal/infra/metrics"
	red "oasis-billing/internal/infra/redis"
)

var _ repository.SubscriptionPlanRepository = (*planRepoCacheDecorator)(nil)

const planListKey = "plans:all"

type planRepoCacheDecorator struct {
	inner repository.SubscriptionPlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewPlanRepoCacheDecorator caches plan reads in Redis. Cache failures fall
// through to the inner repository.
func NewPlanRepoCacheDecorator(inner repository.SubscriptionPlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SubscriptionPlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func planKey(id string) string { return "plan:" + strings.ToLower(id) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	key := planKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return plan, nil
}

// Save invalidates both the plan entry and the list.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	if err := d.cache.Del(ctx, planKey(plan.ID), planListKey); err != nil {
		d.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("plan cache invalidation failed")
	}
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	val, err := d.cache.Get(ctx, planListKey)
	if err == nil {
		var plans []*model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, planListKey, b, d.ttl)
		}
	}
	return plans, nil
}
